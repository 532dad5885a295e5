package log

// Field is a single structured key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// Str creates a string field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an integer field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 creates an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Uint64 creates a uint64 field.
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

// Bool creates a boolean field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Any creates a field carrying an arbitrary value.
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Err creates a field carrying an error's message, or nil for a nil error.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// F is a short alias for Any, used where the value type varies call to call.
func F(key string, value interface{}) Field { return Any(key, value) }

// Component tags an entry with the emitting component's name.
func Component(name string) Field { return Field{Key: ComponentKey, Value: name} }

// Operation tags an entry with the operation being performed.
func Operation(name string) Field { return Field{Key: OperationKey, Value: name} }

func fieldsToMap(fields Fields, extra []Field) Fields {
	merged := make(Fields, len(fields)+len(extra))
	for k, v := range fields {
		merged[k] = v
	}
	for _, f := range extra {
		merged[f.Key] = f.Value
	}
	return merged
}
