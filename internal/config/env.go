package config

import (
	"os"
	"strconv"
)

// FromEnv overlays PROJ_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("PROJ_RESTART_BACKOFF_MIN_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RestartBackoff.MinBackoffMillis = n
		}
	}
	if v := os.Getenv("PROJ_RESTART_BACKOFF_MAX_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RestartBackoff.MaxBackoffMillis = n
		}
	}
	if v := os.Getenv("PROJ_RESTART_BACKOFF_RANDOM_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RestartBackoff.RandomFactor = f
		}
	}
	if v := os.Getenv("PROJ_RESTART_BACKOFF_MAX_RESTARTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RestartBackoff.MaxRestarts = n
		}
	}
	if v := os.Getenv("PROJ_RECOVERY_STRATEGY"); v != "" {
		cfg.RecoveryStrategy.Strategy = v
	}
	if v := os.Getenv("PROJ_RECOVERY_STRATEGY_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RecoveryStrategy.Retries = n
		}
	}
	if v := os.Getenv("PROJ_RECOVERY_STRATEGY_RETRY_DELAY_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RecoveryStrategy.RetryDelayMillis = n
		}
	}
	if v := os.Getenv("PROJ_AT_LEAST_ONCE_SAVE_AFTER_ENVELOPES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AtLeastOnce.SaveOffsetAfterEnvelopes = n
		}
	}
	if v := os.Getenv("PROJ_AT_LEAST_ONCE_SAVE_AFTER_DURATION_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AtLeastOnce.SaveOffsetAfterDurationMillis = n
		}
	}
	if v := os.Getenv("PROJ_GROUPED_AFTER_ENVELOPES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Grouped.GroupAfterEnvelopes = n
		}
	}
	if v := os.Getenv("PROJ_GROUPED_AFTER_DURATION_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Grouped.GroupAfterDurationMillis = n
		}
	}
	if v := os.Getenv("PROJ_MANAGEMENT_OPERATION_TIMEOUT_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Management.OperationTimeoutMillis = n
		}
	}
	if v := os.Getenv("PROJ_MANAGEMENT_ASK_TIMEOUT_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Management.AskTimeoutMillis = n
		}
	}
	if v := os.Getenv("PROJ_OFFSET_STORE_TABLE"); v != "" {
		cfg.OffsetStore.TimestampOffsetTable = v
	}
	if v := os.Getenv("PROJ_OFFSET_STORE_TIME_WINDOW_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OffsetStore.TimeWindowMillis = n
		}
	}
	if v := os.Getenv("PROJ_OFFSET_STORE_KEEP_NUMBER_OF_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OffsetStore.KeepNumberOfEntries = n
		}
	}
	if v := os.Getenv("PROJ_OFFSET_STORE_EVICT_INTERVAL_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OffsetStore.EvictIntervalMillis = n
		}
	}
	if v := os.Getenv("PROJ_OFFSET_STORE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OffsetStore.OffsetBatchSize = n
		}
	}
	if v := os.Getenv("PROJ_OFFSET_STORE_SLICE_READ_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OffsetStore.OffsetSliceReadParallelism = n
		}
	}
	if v := os.Getenv("PROJ_TIME_TO_LIVE_DEFAULT_MILLIS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TimeToLive.ProjectionDefaults.OffsetTimeToLiveMillis = n
		}
	}
}
