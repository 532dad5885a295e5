package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.RestartBackoff.MinBackoffMillis != 3000 {
		t.Fatalf("min backoff default")
	}
	if cfg.Grouped.GroupAfterEnvelopes != 20 {
		t.Fatalf("grouped default")
	}
	if cfg.Management.OperationTimeoutMillis != 10000 {
		t.Fatalf("management timeout default")
	}
	if cfg.OffsetStore.KeepNumberOfEntries != 10000 {
		t.Fatalf("offset store keep default")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sliceoffset.json")
	data := []byte(`{"recoveryStrategy":{"strategy":"skip","retries":0},"atLeastOnce":{"saveOffsetAfterEnvelopes":50},"offsetStore":{"keepNumberOfEntries":500}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RecoveryStrategy.Strategy != "skip" {
		t.Fatalf("expected skip, got %q", cfg.RecoveryStrategy.Strategy)
	}
	if cfg.AtLeastOnce.SaveOffsetAfterEnvelopes != 50 {
		t.Fatalf("expected 50")
	}
	if cfg.OffsetStore.KeepNumberOfEntries != 500 {
		t.Fatalf("expected 500")
	}
	// Fields not present in the override file keep their defaults.
	if cfg.Grouped.GroupAfterEnvelopes != 20 {
		t.Fatalf("expected default grouped to survive a partial override")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("PROJ_RECOVERY_STRATEGY", "fail")
	os.Setenv("PROJ_OFFSET_STORE_KEEP_NUMBER_OF_ENTRIES", "24")
	t.Cleanup(func() {
		os.Unsetenv("PROJ_RECOVERY_STRATEGY")
		os.Unsetenv("PROJ_OFFSET_STORE_KEEP_NUMBER_OF_ENTRIES")
	})
	FromEnv(&cfg)
	if cfg.RecoveryStrategy.Strategy != "fail" {
		t.Fatalf("env override strategy")
	}
	if cfg.OffsetStore.KeepNumberOfEntries != 24 {
		t.Fatalf("env override keep entries")
	}
}

func TestOffsetTTLMillisResolution(t *testing.T) {
	ttl := TimeToLiveConfig{
		ProjectionDefaults: TTLDefault{OffsetTimeToLiveMillis: 1000},
		Overrides: map[string]int64{
			"cart-*":       5000,
			"cart-premium": 9000,
		},
	}
	if got := ttl.OffsetTTLMillis("orders"); got != 1000 {
		t.Fatalf("expected default 1000, got %d", got)
	}
	if got := ttl.OffsetTTLMillis("cart-123"); got != 5000 {
		t.Fatalf("expected prefix match 5000, got %d", got)
	}
	if got := ttl.OffsetTTLMillis("cart-premium"); got != 9000 {
		t.Fatalf("expected exact override to win over prefix, got %d", got)
	}
}
