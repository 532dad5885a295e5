package projection

import "time"

// OffsetStrategyKind selects when the offset commits relative to handler
// success.
type OffsetStrategyKind int

const (
	// AtLeastOnce persists the offset after the handler succeeds, batched
	// by count or elapsed time. A crash between handler success and commit
	// redelivers the envelope.
	AtLeastOnce OffsetStrategyKind = iota
	// ExactlyOnce requires the handler to return a transactional write
	// payload; the payload and the offset commit in one atomic unit.
	ExactlyOnce
	// AtMostOnce persists the offset before invoking the handler. A handler
	// failure loses the event; only Fail and Skip recovery are valid.
	AtMostOnce
	// OffsetStoredByHandler hands offset-persistence responsibility to the
	// handler itself; the driver only reports progress.
	OffsetStoredByHandler
)

// OffsetStrategy configures commit timing and, for AtLeastOnce, batching.
type OffsetStrategy struct {
	Kind OffsetStrategyKind

	// AfterEnvelopes and AfterDuration bound AtLeastOnce batching: commit
	// after whichever threshold is reached first since the last commit. A
	// zero value falls back to the config's atLeastOnce section.
	AfterEnvelopes int
	AfterDuration  time.Duration

	Recovery RecoveryStrategy
}

// HandlerStrategyKind selects the shape handed to the user handler.
type HandlerStrategyKind int

const (
	// Single invokes the handler once per envelope.
	Single HandlerStrategyKind = iota
	// Grouped batches envelopes and invokes the handler once per group.
	Grouped
	// Flow routes envelopes through bounded-parallelism workers, one per
	// slice partition, preserving per-pid ordering (a pid always hashes to
	// the same slice, hence the same worker) while allowing independent
	// slices to process concurrently.
	Flow
)

// HandlerStrategy configures how envelopes are grouped before the handler
// runs.
type HandlerStrategy struct {
	Kind HandlerStrategyKind

	// AfterEnvelopes and AfterDuration bound Grouped batching.
	AfterEnvelopes int
	AfterDuration  time.Duration

	// Parallelism bounds the number of concurrent Flow workers. Ignored
	// for Single and Grouped.
	Parallelism int
}

// RecoveryKind selects what happens when the handler returns an error.
type RecoveryKind int

const (
	RecoveryFail RecoveryKind = iota
	RecoverySkip
	RecoveryRetryAndFail
	RecoveryRetryAndSkip
)

// RecoveryStrategy governs handler-failure handling. AtMostOnce only
// permits Fail and Skip: retrying after the offset has already committed
// would violate the "at most one attempt" contract.
type RecoveryStrategy struct {
	Kind    RecoveryKind
	Retries int
	Delay   time.Duration
}

// Validate enforces the AtMostOnce invariant at construction time rather
// than at the moment a handler happens to fail.
func (o OffsetStrategy) Validate() error {
	if o.Kind != AtMostOnce {
		return nil
	}
	switch o.Recovery.Kind {
	case RecoveryFail, RecoverySkip:
		return nil
	default:
		return errAtMostOnceRetryForbidden
	}
}
