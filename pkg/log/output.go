package log

import (
	"io"
	"os"
	"sync"
)

// ConsoleOutput writes formatted entries to stderr, guarded by a mutex since
// multiple goroutines may log concurrently.
type ConsoleOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleOutput creates an Output that writes to stderr.
func NewConsoleOutput() *ConsoleOutput { return &ConsoleOutput{w: os.Stderr} }

func (c *ConsoleOutput) Write(_ *Entry, formatted []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		c.w = os.Stderr
	}
	_, err := c.w.Write(formatted)
	return err
}

func (c *ConsoleOutput) Close() error { return nil }

// FileOutput appends formatted entries to a file on disk.
type FileOutput struct {
	mu sync.Mutex
	f  *os.File
}

// NewFileOutput opens (creating if needed) the file at path for appending.
func NewFileOutput(path string) (*FileOutput, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileOutput{f: f}, nil
}

func (o *FileOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.f.Write(formatted)
	return err
}

func (o *FileOutput) Close() error { return o.f.Close() }

// NullOutput discards every entry; useful for tests that only assert on
// returned errors rather than log content.
type NullOutput struct{}

func (NullOutput) Write(*Entry, []byte) error { return nil }
func (NullOutput) Close() error               { return nil }
