package projection

import (
	"time"

	"github.com/leviramsey/sliceoffset/internal/config"
)

// RecoveryStrategyFromConfig translates the JSON-facing recovery
// configuration into a RecoveryStrategy. An unrecognized strategy name
// falls back to RecoveryFail, matching a missing/invalid value to the most
// conservative behavior.
func RecoveryStrategyFromConfig(cfg config.RecoveryStrategyConfig) RecoveryStrategy {
	rs := RecoveryStrategy{
		Retries: cfg.Retries,
		Delay:   time.Duration(cfg.RetryDelayMillis) * time.Millisecond,
	}
	switch cfg.Strategy {
	case "skip":
		rs.Kind = RecoverySkip
	case "retryAndFail":
		rs.Kind = RecoveryRetryAndFail
	case "retryAndSkip":
		rs.Kind = RecoveryRetryAndSkip
	default:
		rs.Kind = RecoveryFail
	}
	return rs
}

// AtLeastOnceFromConfig builds an AtLeastOnce OffsetStrategy from the
// configuration's atLeastOnce and recoveryStrategy sections.
func AtLeastOnceFromConfig(cfg config.Config) OffsetStrategy {
	return OffsetStrategy{
		Kind:           AtLeastOnce,
		AfterEnvelopes: cfg.AtLeastOnce.SaveOffsetAfterEnvelopes,
		AfterDuration:  time.Duration(cfg.AtLeastOnce.SaveOffsetAfterDurationMillis) * time.Millisecond,
		Recovery:       RecoveryStrategyFromConfig(cfg.RecoveryStrategy),
	}
}

// GroupedFromConfig builds a Grouped HandlerStrategy from the
// configuration's grouped section.
func GroupedFromConfig(cfg config.Config) HandlerStrategy {
	return HandlerStrategy{
		Kind:           Grouped,
		AfterEnvelopes: cfg.Grouped.GroupAfterEnvelopes,
		AfterDuration:  time.Duration(cfg.Grouped.GroupAfterDurationMillis) * time.Millisecond,
	}
}
