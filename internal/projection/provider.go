package projection

import (
	"context"

	"github.com/leviramsey/sliceoffset/internal/offsetstate"
	"github.com/leviramsey/sliceoffset/internal/validation"
)

// Provider is the event source the driver pulls from. A single Provider
// serves one projection's assigned slice range; the caller (the process
// wiring the projection, typically by consulting a slice-assignment
// strategy across parallel instances) is responsible for partitioning
// slices across Provider instances.
type Provider interface {
	// EventsBySlices opens a delivery stream for every slice in
	// [minSlice, maxSlice]. resumeFrom is consulted once per slice to
	// determine where that slice resumes (the zero TimestampOffset starts a
	// slice from the beginning of its stream). The returned channel is
	// closed when ctx is canceled or the provider encounters an
	// unrecoverable error, which it reports through the error channel.
	EventsBySlices(ctx context.Context, minSlice, maxSlice int, resumeFrom func(slice int) offsetstate.TimestampOffset) (<-chan validation.Envelope, <-chan error)

	// LoadEnvelope fetches the full envelope (including its event payload)
	// for a pid/seqNr the backtracking stream delivered as a placeholder.
	LoadEnvelope(ctx context.Context, pid string, seqNr uint64) (validation.Envelope, error)
}

// ReplayTrigger is an optional capability a Provider may implement: when
// present, the driver asks the provider to redeliver a pid's missing range
// instead of waiting indefinitely for the live stream to fill the gap.
type ReplayTrigger interface {
	TriggerReplay(ctx context.Context, pid string, fromSeqNr, throughSeqNr uint64) error
}

// HandlerResult is what a Single or Grouped handler invocation returns.
// Writes is only consulted under the ExactlyOnce offset strategy, where it
// is committed in the same Pebble batch as the offset record(s).
type HandlerResult struct {
	Writes []WriteItem
}

// WriteItem mirrors offsetstore.WriteItem so callers implementing Handler
// don't need to import the offsetstore package directly.
type WriteItem struct {
	Key   []byte
	Value []byte
}

// Handler processes one batch of envelopes (a single envelope, for the
// Single handler strategy). Envelopes are already filtered and, for
// Backtracking placeholders, already hydrated via LoadEnvelope.
type Handler func(ctx context.Context, envelopes []validation.Envelope) (HandlerResult, error)
