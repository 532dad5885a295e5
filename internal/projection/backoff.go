package projection

import (
	"math"
	"math/rand"
	"time"

	"github.com/leviramsey/sliceoffset/internal/config"
)

// restartBackoff computes the exponential-with-jitter delay before the
// driver's (n+1)th restart, given zero-indexed restart count n.
type restartBackoff struct {
	min, max     time.Duration
	randomFactor float64
	maxRestarts  int
}

func newRestartBackoff(cfg config.RestartBackoffConfig) restartBackoff {
	return restartBackoff{
		min:          time.Duration(cfg.MinBackoffMillis) * time.Millisecond,
		max:          time.Duration(cfg.MaxBackoffMillis) * time.Millisecond,
		randomFactor: cfg.RandomFactor,
		maxRestarts:  cfg.MaxRestarts,
	}
}

// exceeded reports whether n restarts have exhausted the configured cap.
// MaxRestarts < 0 means unlimited; MaxRestarts == 0 means no restarts are
// permitted at all, so the very first restart attempt (n == 0) is already
// exceeded.
func (b restartBackoff) exceeded(n int) bool {
	return b.maxRestarts >= 0 && n >= b.maxRestarts
}

func (b restartBackoff) delay(n int) time.Duration {
	d := float64(b.min) * math.Pow(2, float64(n))
	if d > float64(b.max) {
		d = float64(b.max)
	}
	if b.randomFactor > 0 {
		jitter := d * b.randomFactor * (rand.Float64()*2 - 1)
		d += jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
