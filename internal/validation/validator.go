// Package validation classifies incoming envelopes against the projection's
// offset state, deciding whether each is new work, a duplicate, or a gap
// that requires waiting or replay.
package validation

import (
	"sync"
	"time"

	"github.com/leviramsey/sliceoffset/internal/offsetstate"
	"github.com/leviramsey/sliceoffset/internal/slicing"
)

// Origin identifies which stream delivered an envelope.
type Origin int

const (
	// Live is the primary, real-time delivery stream.
	Live Origin = iota
	// Backtracking is the slower catch-up stream used to surface events the
	// live stream missed or delivered out of order.
	Backtracking
	// PubSub is an unordered, best-effort fan-out notification that may
	// arrive ahead of the live stream.
	PubSub
)

func (o Origin) String() string {
	switch o {
	case Live:
		return "Live"
	case Backtracking:
		return "Backtracking"
	case PubSub:
		return "PubSub"
	default:
		return "Unknown"
	}
}

// Envelope is one delivery unit from the event source provider.
type Envelope struct {
	Pid       string
	SeqNr     uint64
	Timestamp time.Time
	Origin    Origin
	// Filtered marks an envelope the producer stripped of payload but whose
	// offset must still advance.
	Filtered bool
	// HasEvent is false when Backtracking delivered a placeholder without
	// the event payload; the driver must loadEnvelope(Pid, SeqNr) before
	// invoking the handler.
	HasEvent bool
}

// Classification is the validator's verdict for a non-duplicate envelope,
// or Duplicate/Accepted for one the state machine has already decided on.
type Classification int

const (
	Accepted Classification = iota
	Duplicate
	RejectedSeqNr
	RejectedBacktrackingSeqNr
)

func (c Classification) String() string {
	switch c {
	case Accepted:
		return "Accepted"
	case Duplicate:
		return "Duplicate"
	case RejectedSeqNr:
		return "RejectedSeqNr"
	case RejectedBacktrackingSeqNr:
		return "RejectedBacktrackingSeqNr"
	default:
		return "Unknown"
	}
}

// Validator classifies envelopes against a State and tracks which accepted
// envelopes are in flight (handled but not yet committed).
type Validator struct {
	state *offsetstate.State

	mu       sync.Mutex
	inFlight map[string]uint64 // pid -> seqNr
}

// New returns a Validator backed by state.
func New(state *offsetstate.State) *Validator {
	return &Validator{state: state, inFlight: make(map[string]uint64)}
}

// Classify computes the slice for e.Pid and decides its classification per
// the classification table: an envelope is a Duplicate if the state already
// holds a seqNr at or above it, Accepted if it extends the pid's sequence
// by exactly one (or starts it at 1), and otherwise Rejected — as
// RejectedBacktrackingSeqNr when the gap was surfaced by the backtracking
// stream (which requires an explicit replay), or RejectedSeqNr when the
// live stream may simply not have delivered the intermediate events yet.
func (v *Validator) Classify(e Envelope) (int, Classification) {
	slice := slicing.Slice(e.Pid)
	prev, hasPrev := v.state.Latest(e.Pid)

	switch {
	case hasPrev && e.SeqNr <= prev.SeqNr:
		return slice, Duplicate
	case !hasPrev && e.SeqNr == 1:
		return slice, Accepted
	case hasPrev && e.SeqNr == prev.SeqNr+1:
		return slice, Accepted
	case e.Origin == Backtracking:
		return slice, RejectedBacktrackingSeqNr
	default:
		return slice, RejectedSeqNr
	}
}

// MarkInFlight records an accepted envelope as handled-but-not-yet-committed.
func (v *Validator) MarkInFlight(pid string, seqNr uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inFlight[pid] = seqNr
}

// ClearInFlight removes the in-flight marker once the offset commits.
func (v *Validator) ClearInFlight(pid string, seqNr uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if cur, ok := v.inFlight[pid]; ok && cur == seqNr {
		delete(v.inFlight, pid)
	}
}

// InFlight reports the seqNr currently in flight for pid, if any.
func (v *Validator) InFlight(pid string) (uint64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	seqNr, ok := v.inFlight[pid]
	return seqNr, ok
}
