// Package jsonl is a reference Provider that reads envelopes from a
// newline-delimited JSON file, one record per line. It exists so
// cmd/projector has something concrete to run against; embedding
// applications with a real event log are expected to supply their own
// projection.Provider instead.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/leviramsey/sliceoffset/internal/offsetstate"
	"github.com/leviramsey/sliceoffset/internal/slicing"
	"github.com/leviramsey/sliceoffset/internal/validation"
)

// record is the on-disk shape of one line in the file.
type record struct {
	Pid         string `json:"pid"`
	SeqNr       uint64 `json:"seqNr"`
	TimestampMs int64  `json:"timestampMs"`
	Origin      string `json:"origin"`
	Filtered    bool   `json:"filtered"`
}

func (r record) origin() validation.Origin {
	switch r.Origin {
	case "Backtracking":
		return validation.Backtracking
	case "PubSub":
		return validation.PubSub
	default:
		return validation.Live
	}
}

// Provider reads envelopes from path once per EventsBySlices call, then
// polls for appended lines at pollInterval until ctx is canceled. It does
// not consult resumeFrom: every call starts at the first line of the file.
// It satisfies projection.Provider but not projection.ReplayTrigger: a
// flat file has no mechanism to redeliver a gap out of band.
type Provider struct {
	path         string
	pollInterval time.Duration
}

// Open returns a Provider reading from path. The file must already exist;
// Open does not create it.
func Open(path string) (*Provider, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("jsonl: %w", err)
	}
	return &Provider{path: path, pollInterval: time.Second}, nil
}

// WithPollInterval overrides the default 1s tail-poll cadence.
func (p *Provider) WithPollInterval(d time.Duration) *Provider {
	p.pollInterval = d
	return p
}

func (p *Provider) EventsBySlices(ctx context.Context, minSlice, maxSlice int, resumeFrom func(int) offsetstate.TimestampOffset) (<-chan validation.Envelope, <-chan error) {
	out := make(chan validation.Envelope)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		f, err := os.Open(p.path)
		if err != nil {
			errc <- fmt.Errorf("jsonl: open: %w", err)
			return
		}
		defer f.Close()

		for {
			// A bufio.Scanner stops for good at EOF, so each poll starts a
			// fresh one that continues from the file's current offset.
			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				var r record
				if err := json.Unmarshal(line, &r); err != nil {
					errc <- fmt.Errorf("jsonl: decode line: %w", err)
					return
				}
				slice := slicing.Slice(r.Pid)
				if slice < minSlice || slice > maxSlice {
					continue
				}
				e := validation.Envelope{
					Pid:       r.Pid,
					SeqNr:     r.SeqNr,
					Timestamp: time.UnixMilli(r.TimestampMs).UTC(),
					Origin:    r.origin(),
					Filtered:  r.Filtered,
					HasEvent:  true,
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
			if err := scanner.Err(); err != nil {
				errc <- fmt.Errorf("jsonl: scan: %w", err)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pollInterval):
			}
		}
	}()

	return out, errc
}

// LoadEnvelope re-scans the file for pid/seqNr. Every envelope this
// Provider emits already carries HasEvent=true, so the driver never
// actually calls this in practice; it is implemented for interface
// completeness.
func (p *Provider) LoadEnvelope(ctx context.Context, pid string, seqNr uint64) (validation.Envelope, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return validation.Envelope{}, fmt.Errorf("jsonl: open: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		if r.Pid == pid && r.SeqNr == seqNr {
			return validation.Envelope{
				Pid:       r.Pid,
				SeqNr:     r.SeqNr,
				Timestamp: time.UnixMilli(r.TimestampMs).UTC(),
				Origin:    r.origin(),
				Filtered:  r.Filtered,
				HasEvent:  true,
			}, nil
		}
	}
	return validation.Envelope{}, fmt.Errorf("jsonl: no record for pid=%s seqNr=%d", pid, seqNr)
}
