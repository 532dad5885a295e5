package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leviramsey/sliceoffset/internal/offsetstate"
)

func writeFixture(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	f.Close()
	return path
}

func noResume(int) offsetstate.TimestampOffset { return offsetstate.TimestampOffset{} }

func TestProviderStreamsEnvelopesInFileOrder(t *testing.T) {
	path := writeFixture(t,
		`{"pid":"p1","seqNr":1,"timestampMs":1000}`,
		`{"pid":"p1","seqNr":2,"timestampMs":2000}`,
	)
	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	p.WithPollInterval(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	out, errc := p.EventsBySlices(ctx, 0, 1023, noResume)

	var seqNrs []uint64
	for i := 0; i < 2; i++ {
		select {
		case e := <-out:
			seqNrs = append(seqNrs, e.SeqNr)
		case err := <-errc:
			t.Fatalf("unexpected error: %v", err)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for envelope %d", i)
		}
	}
	if len(seqNrs) != 2 || seqNrs[0] != 1 || seqNrs[1] != 2 {
		t.Fatalf("unexpected sequence: %v", seqNrs)
	}
}

func TestProviderFiltersOutOfRangeSlices(t *testing.T) {
	path := writeFixture(t, `{"pid":"p1","seqNr":1,"timestampMs":1000}`)
	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	p.WithPollInterval(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	out, errc := p.EventsBySlices(ctx, 0, 0, noResume) // p1 does not hash to slice 0

	select {
	case e := <-out:
		t.Fatalf("did not expect an envelope out of range, got %+v", e)
	case err := <-errc:
		t.Fatalf("unexpected error: %v", err)
	case <-ctx.Done():
	}
}

func TestOpenRejectsMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Fatalf("expected an error opening a nonexistent file")
	}
}
