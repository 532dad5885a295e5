package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Config is the top-level configuration tree for a projection driver. All
// durations are expressed in milliseconds so the struct round-trips through
// plain JSON without a custom time.Duration codec.
type Config struct {
	RestartBackoff   RestartBackoffConfig   `json:"restartBackoff"`
	RecoveryStrategy RecoveryStrategyConfig `json:"recoveryStrategy"`
	AtLeastOnce      AtLeastOnceConfig      `json:"atLeastOnce"`
	Grouped          GroupedConfig          `json:"grouped"`
	Management       ManagementConfig       `json:"management"`
	OffsetStore      OffsetStoreConfig      `json:"offsetStore"`
	TimeToLive       TimeToLiveConfig       `json:"timeToLive"`
}

// RestartBackoffConfig governs the exponential backoff applied when a
// projection's driver loop restarts after a recoverable failure.
type RestartBackoffConfig struct {
	MinBackoffMillis int     `json:"minBackoffMillis"`
	MaxBackoffMillis int     `json:"maxBackoffMillis"`
	RandomFactor     float64 `json:"randomFactor"`
	// MaxRestarts caps the total number of restarts before the driver gives
	// up; the count is never reset. -1 means unlimited, 0 disables restarts.
	MaxRestarts int `json:"maxRestarts"`
}

// RecoveryStrategyConfig selects what the driver does when the handler
// returns an error for an envelope.
type RecoveryStrategyConfig struct {
	// Strategy is one of "fail", "skip", "retryAndFail", "retryAndSkip".
	Strategy         string `json:"strategy"`
	Retries          int    `json:"retries"`
	RetryDelayMillis int    `json:"retryDelayMillis"`
}

// AtLeastOnceConfig governs how often the at-least-once offset strategy
// flushes a pending offset to the store.
type AtLeastOnceConfig struct {
	SaveOffsetAfterEnvelopes      int `json:"saveOffsetAfterEnvelopes"`
	SaveOffsetAfterDurationMillis int `json:"saveOffsetAfterDurationMillis"`
}

// GroupedConfig governs how many envelopes the grouped handler strategy
// batches before invoking the handler.
type GroupedConfig struct {
	GroupAfterEnvelopes      int `json:"groupAfterEnvelopes"`
	GroupAfterDurationMillis int `json:"groupAfterDurationMillis"`
}

// ManagementConfig bounds the management surface's blocking calls
// (getOffset/setOffset/pause/resume).
type ManagementConfig struct {
	OperationTimeoutMillis int `json:"operationTimeoutMillis"`
	AskTimeoutMillis       int `json:"askTimeoutMillis"`
}

// OffsetStoreConfig tunes the offset-store's table name, retention window,
// and background eviction sweep.
type OffsetStoreConfig struct {
	TimestampOffsetTable       string `json:"timestampOffsetTable"`
	TimeWindowMillis           int    `json:"timeWindowMillis"`
	KeepNumberOfEntries        int    `json:"keepNumberOfEntries"`
	EvictIntervalMillis        int    `json:"evictIntervalMillis"`
	OffsetBatchSize            int    `json:"offsetBatchSize"`
	OffsetSliceReadParallelism int    `json:"offsetSliceReadParallelism"`
}

// TimeToLiveConfig governs optional expiry of offset records. ProjectionDefaults
// applies to every projection name; Overrides maps a projection name (or a
// prefix ending in "*") to a TTL that takes precedence over the default.
type TimeToLiveConfig struct {
	ProjectionDefaults TTLDefault       `json:"projectionDefaults"`
	Overrides          map[string]int64 `json:"overrides,omitempty"`
}

// TTLDefault is the fallback offset TTL. Zero means offset records never
// expire.
type TTLDefault struct {
	OffsetTimeToLiveMillis int64 `json:"offsetTimeToLiveMillis"`
}

// OffsetTTLMillis resolves the effective offset TTL for a projection name.
// An exact override wins; failing that, the longest matching "prefix*"
// override wins; failing that, ProjectionDefaults applies. A return value of
// 0 means no TTL.
func (t TimeToLiveConfig) OffsetTTLMillis(projectionName string) int64 {
	if v, ok := t.Overrides[projectionName]; ok {
		return v
	}
	best := -1
	var bestMillis int64
	for key, v := range t.Overrides {
		prefix, ok := strings.CutSuffix(key, "*")
		if !ok {
			continue
		}
		if strings.HasPrefix(projectionName, prefix) && len(prefix) > best {
			best = len(prefix)
			bestMillis = v
		}
	}
	if best >= 0 {
		return bestMillis
	}
	return t.ProjectionDefaults.OffsetTimeToLiveMillis
}

// Default returns the built-in baseline configuration.
func Default() Config {
	return Config{
		RestartBackoff: RestartBackoffConfig{
			MinBackoffMillis: 3000,
			MaxBackoffMillis: 30000,
			RandomFactor:     0.2,
			MaxRestarts:      -1,
		},
		RecoveryStrategy: RecoveryStrategyConfig{
			Strategy:         "retryAndFail",
			Retries:          3,
			RetryDelayMillis: 1000,
		},
		AtLeastOnce: AtLeastOnceConfig{
			SaveOffsetAfterEnvelopes:      100,
			SaveOffsetAfterDurationMillis: 500,
		},
		Grouped: GroupedConfig{
			GroupAfterEnvelopes:      20,
			GroupAfterDurationMillis: 500,
		},
		Management: ManagementConfig{
			OperationTimeoutMillis: 10000,
			AskTimeoutMillis:       3000,
		},
		OffsetStore: OffsetStoreConfig{
			TimestampOffsetTable:       "timestamp_offset",
			TimeWindowMillis:           10 * 60 * 1000,
			KeepNumberOfEntries:        10000,
			EvictIntervalMillis:        10000,
			OffsetBatchSize:            20,
			OffsetSliceReadParallelism: 4,
		},
		TimeToLive: TimeToLiveConfig{
			ProjectionDefaults: TTLDefault{OffsetTimeToLiveMillis: 0},
		},
	}
}

// Load reads configuration from a JSON file, overlaying it onto Default().
// If path is empty, Load returns the defaults unchanged.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return Config{}, errors.New("yaml config not supported yet; use JSON for now")
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}
