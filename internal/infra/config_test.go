package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ProviderCallsPerMinute != 15 {
		t.Fatalf("ProviderCallsPerMinute = %d, want 15", cfg.ProviderCallsPerMinute)
	}
	if cfg.ProviderDailyCallLimit != 1400 {
		t.Fatalf("ProviderDailyCallLimit = %d, want 1400", cfg.ProviderDailyCallLimit)
	}
	if cfg.OrgMaxJobsPerHour != 100 {
		t.Fatalf("OrgMaxJobsPerHour = %d, want 100", cfg.OrgMaxJobsPerHour)
	}
	if cfg.AIPoolTick != 2*time.Second {
		t.Fatalf("AIPoolTick = %v, want 2s", cfg.AIPoolTick)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for missing DATABASE_URL")
	}
}

func TestLoadConfigRejectsNonPositiveBudget(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PROVIDER_CALLS_PER_MINUTE", "0")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for zero per-minute limit")
	}
}

func TestLoadConfigHonorsOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PROVIDER_CALLS_PER_MINUTE", "60")
	t.Setenv("AI_POOL_CONCURRENCY", "5")
	t.Setenv("EXTRACTION_POOL_TICK_SECONDS", "10")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ProviderCallsPerMinute != 60 {
		t.Fatalf("ProviderCallsPerMinute = %d, want 60", cfg.ProviderCallsPerMinute)
	}
	if cfg.AIPoolConcurrency != 5 {
		t.Fatalf("AIPoolConcurrency = %d, want 5", cfg.AIPoolConcurrency)
	}
	if cfg.ExtractionPoolTick != 10*time.Second {
		t.Fatalf("ExtractionPoolTick = %v, want 10s", cfg.ExtractionPoolTick)
	}
}
