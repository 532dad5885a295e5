package log

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

func (l *BaseLogger) log(level Level, msg string, fields ...Field) {
	if level < l.level {
		return
	}
	merged := fieldsToMap(l.fields, fields)
	caller := ""
	if _, file, line, ok := runtime.Caller(2); ok {
		caller = file + ":" + itoa(line)
	}
	entry := &Entry{
		Level:     level,
		Message:   msg,
		Fields:    merged,
		Timestamp: time.Now(),
		Caller:    caller,
	}
	if errVal, ok := merged["error"]; ok {
		if errStr, ok := errVal.(string); ok {
			entry.Error = fmt.Errorf(errStr)
		}
	}
	formatted, err := l.formatter.Format(entry)
	if err != nil {
		return
	}
	for _, out := range l.outputs {
		_ = out.Write(entry, formatted)
	}
}

func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields...) }
func (l *BaseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields...) }
func (l *BaseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields...) }
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields...) }
func (l *BaseLogger) Fatal(msg string, fields ...Field) { l.log(FatalLevel, msg, fields...) }

func (l *BaseLogger) Debugf(msg string, args ...interface{}) { l.log(DebugLevel, fmt.Sprintf(msg, args...)) }
func (l *BaseLogger) Infof(msg string, args ...interface{})  { l.log(InfoLevel, fmt.Sprintf(msg, args...)) }
func (l *BaseLogger) Warnf(msg string, args ...interface{})  { l.log(WarnLevel, fmt.Sprintf(msg, args...)) }
func (l *BaseLogger) Errorf(msg string, args ...interface{}) { l.log(ErrorLevel, fmt.Sprintf(msg, args...)) }
func (l *BaseLogger) Fatalf(msg string, args ...interface{}) { l.log(FatalLevel, fmt.Sprintf(msg, args...)) }

func (l *BaseLogger) clone() *BaseLogger {
	nl := &BaseLogger{
		level:     l.level,
		fields:    make(Fields, len(l.fields)),
		formatter: l.formatter,
		outputs:   l.outputs,
	}
	for k, v := range l.fields {
		nl.fields[k] = v
	}
	return nl
}

func (l *BaseLogger) WithField(key string, value interface{}) Logger {
	nl := l.clone()
	nl.fields[key] = value
	return nl
}

func (l *BaseLogger) WithFields(fields Fields) Logger {
	nl := l.clone()
	for k, v := range fields {
		nl.fields[k] = v
	}
	return nl
}

func (l *BaseLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *BaseLogger) With(fields ...Field) Logger {
	nl := l.clone()
	for _, f := range fields {
		nl.fields[f.Key] = f.Value
	}
	return nl
}

func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	extracted := ContextExtractor(ctx)
	if len(extracted) == 0 {
		return l
	}
	return l.WithFields(extracted)
}

func (l *BaseLogger) WithComponent(component string) Logger {
	return l.WithField(ComponentKey, component)
}

func (l *BaseLogger) SetLevel(level Level) { l.level = level }
func (l *BaseLogger) GetLevel() Level      { return l.level }
