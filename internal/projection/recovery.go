package projection

import (
	"context"
	"time"
)

// retryBackoff builds the exponential-with-no-jitter wait schedule used
// between handler retries, reusing restartBackoff's min/2^n/max math:
// the base wait is rec.Delay scaled down by 2^Retries and doubles per
// attempt, so the wait before the last retry is about rec.Delay/2 and no
// wait exceeds rec.Delay.
func retryBackoff(rec RecoveryStrategy) restartBackoff {
	base := rec.Delay
	if rec.Retries > 0 {
		base = rec.Delay >> uint(rec.Retries)
	}
	if base <= 0 {
		base = time.Millisecond
	}
	return restartBackoff{min: base, max: rec.Delay, maxRestarts: -1}
}

// runHandlerWithRecovery invokes fn and, on error, applies rec's recovery
// kind. Fail returns the error immediately (the driver will restart after
// backoff). Skip swallows the error and advances past the envelope. The
// retrying variants re-invoke fn up to rec.Retries times, waiting an
// exponentially increasing delay bounded by rec.Delay between attempts,
// falling through to Fail or Skip respectively once exhausted.
func runHandlerWithRecovery(ctx context.Context, rec RecoveryStrategy, fn func() (HandlerResult, error)) (HandlerResult, error, bool) {
	res, err := fn()
	if err == nil {
		return res, nil, true
	}

	switch rec.Kind {
	case RecoveryFail:
		return HandlerResult{}, err, false
	case RecoverySkip:
		return HandlerResult{}, nil, true
	case RecoveryRetryAndFail, RecoveryRetryAndSkip:
		backoff := retryBackoff(rec)
		for attempt := 0; attempt < rec.Retries; attempt++ {
			select {
			case <-ctx.Done():
				return HandlerResult{}, ctx.Err(), false
			case <-time.After(backoff.delay(attempt)):
			}
			res, err = fn()
			if err == nil {
				return res, nil, true
			}
		}
		if rec.Kind == RecoveryRetryAndSkip {
			return HandlerResult{}, nil, true
		}
		return HandlerResult{}, err, false
	default:
		return HandlerResult{}, err, false
	}
}
