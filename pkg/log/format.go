package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// JSONFormatter renders entries as single-line JSON objects.
type JSONFormatter struct{}

func (JSONFormatter) Format(entry *Entry) ([]byte, error) {
	obj := make(map[string]interface{}, len(entry.Fields)+4)
	for k, v := range entry.Fields {
		obj[k] = v
	}
	obj["level"] = entry.Level.String()
	obj["msg"] = entry.Message
	obj["ts"] = entry.Timestamp.Format("2006-01-02T15:04:05.000Z07:00")
	if entry.Caller != "" {
		obj["caller"] = entry.Caller
	}
	if entry.Error != nil {
		obj["error"] = entry.Error.Error()
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// TextFormatter renders entries as a logfmt-ish single line, matching the
// console output the CLI prints by default.
type TextFormatter struct {
	// DisableColors disables ANSI coloring of the level field.
	DisableColors bool
}

func (f TextFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(entry.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
	buf.WriteByte(' ')
	buf.WriteString(f.levelTag(entry.Level))
	buf.WriteByte(' ')
	buf.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, " %s=%v", k, entry.Fields[k])
	}
	if entry.Error != nil {
		fmt.Fprintf(&buf, " error=%q", entry.Error.Error())
	}
	if entry.Caller != "" {
		fmt.Fprintf(&buf, " caller=%s", entry.Caller)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (f TextFormatter) levelTag(level Level) string {
	tag := "[" + level.String() + "]"
	if f.DisableColors {
		return tag
	}
	switch level {
	case ErrorLevel, FatalLevel:
		return "\x1b[31m" + tag + "\x1b[0m"
	case WarnLevel:
		return "\x1b[33m" + tag + "\x1b[0m"
	case DebugLevel:
		return "\x1b[90m" + tag + "\x1b[0m"
	default:
		return tag
	}
}
