package log

import (
	"fmt"
	stdlog "log"
	"log/slog"
	"strings"
)

// Config is a declarative description of a Logger, suitable for building
// from CLI flags or environment variables.
type Config struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	// File, when set, adds a file output at the given path in addition to
	// the console output.
	File string `json:"file,omitempty"`
}

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}

// ApplyConfig builds a Logger from a Config, defaulting to info/text/console.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var formatter Formatter
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		formatter = &JSONFormatter{}
	case "text", "":
		formatter = &TextFormatter{}
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}

	opts := []LoggerOption{WithLevel(level), WithFormatter(formatter), WithOutput(NewConsoleOutput())}
	if cfg.File != "" {
		fo, err := NewFileOutput(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("log: open file output: %w", err)
		}
		opts = append(opts, WithOutput(fo))
	}
	return NewLogger(opts...), nil
}

// ToStdLogger adapts a Logger into a *log.Logger for libraries that only
// accept the standard library's logger type.
func ToStdLogger(l Logger, level Level) *stdlog.Logger {
	base, ok := l.(*BaseLogger)
	if !ok {
		return stdlog.Default()
	}
	handler := newBridgeHandler(base)
	return slog.NewLogLogger(handler, toSlogLevel(level))
}

// RedirectStdLog points the standard library's global logger at l, so that
// dependencies using log.Printf (e.g. Pebble) emit through our pipeline.
func RedirectStdLog(l Logger) {
	stdlog.SetOutput(stdLogWriter{l: l})
	stdlog.SetFlags(0)
}

// RedirectStdLogSampled is like RedirectStdLog but drops repeated identical
// messages after the first `initial` occurrences, logging only every
// `thereafter`-th repeat. Pebble's compaction/WAL chatter benefits from this.
func RedirectStdLogSampled(l Logger, initial, thereafter int) {
	base, ok := l.(*BaseLogger)
	if !ok {
		RedirectStdLog(l)
		return
	}
	h := newBridgeHandler(base).withSampler(initial, thereafter)
	stdlog.SetOutput(stdLogWriter{l: l, handler: h})
	stdlog.SetFlags(0)
}

type stdLogWriter struct {
	l       Logger
	handler *bridgeHandler
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if w.handler != nil && w.handler.sampler != nil && !w.handler.sampler.allow(toSlogLevel(InfoLevel), msg) {
		return len(p), nil
	}
	w.l.Info(msg, Component("stdlog"))
	return len(p), nil
}
