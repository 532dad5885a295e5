package log

import (
	"strings"
	"sync"
	"testing"
)

type bufOutput struct {
	mu  sync.Mutex
	buf []string
}

func (b *bufOutput) Write(_ *Entry, formatted []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, string(formatted))
	return nil
}
func (b *bufOutput) Close() error { return nil }

func (b *bufOutput) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.buf...)
}

func TestLoggerLevelFiltering(t *testing.T) {
	out := &bufOutput{}
	l := NewLogger(WithLevel(WarnLevel), WithFormatter(&TextFormatter{DisableColors: true}), WithOutput(out))
	l.Info("should be dropped")
	l.Warn("should appear")
	lines := out.lines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "should appear") {
		t.Fatalf("unexpected line: %q", lines[0])
	}
}

func TestWithFieldsMerge(t *testing.T) {
	out := &bufOutput{}
	l := NewLogger(WithLevel(DebugLevel), WithFormatter(&TextFormatter{DisableColors: true}), WithOutput(out))
	l = l.With(Component("validator"), Str("projection", "p1"))
	l.Info("accepted", Str("pid", "p-1"), Int("seq", 3))
	line := out.lines()[0]
	for _, want := range []string{"component=validator", "projection=p1", "pid=p-1", "seq=3"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	out := &bufOutput{}
	base := NewLogger(WithLevel(DebugLevel), WithFormatter(&TextFormatter{DisableColors: true}), WithOutput(out))
	child := base.With(Str("slice", "1"))
	base.Info("base")
	child.Info("child")
	lines := out.lines()
	if strings.Contains(lines[0], "slice=1") {
		t.Fatalf("parent logger leaked child field: %q", lines[0])
	}
	if !strings.Contains(lines[1], "slice=1") {
		t.Fatalf("child logger missing its own field: %q", lines[1])
	}
}

func TestApplyConfigDefaults(t *testing.T) {
	l, err := ApplyConfig(nil)
	if err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	if l.GetLevel() != InfoLevel {
		t.Fatalf("expected default level info, got %v", l.GetLevel())
	}
}

func TestApplyConfigRejectsUnknownFormat(t *testing.T) {
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": DebugLevel,
		"INFO":  InfoLevel,
		"warn":  WarnLevel,
		"error": ErrorLevel,
		"fatal": FatalLevel,
		"":      InfoLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("nonsense"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestJSONFormatterRoundTrips(t *testing.T) {
	out := &bufOutput{}
	l := NewLogger(WithLevel(DebugLevel), WithFormatter(&JSONFormatter{}), WithOutput(out))
	l.Error("failed", Err(errBoom))
	line := out.lines()[0]
	if !strings.Contains(line, `"msg":"failed"`) || !strings.Contains(line, "boom") {
		t.Fatalf("unexpected json line: %q", line)
	}
}

var errBoom = &stringError{"boom"}

type stringError struct{ s string }

func (e *stringError) Error() string { return e.s }
