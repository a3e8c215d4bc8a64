package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	AIAPIKey  string
	AIBaseURL string
	AIModel   string

	// Shared provider budget across all tenants.
	ProviderCallsPerMinute int
	ProviderDailyCallLimit int

	// Per-tenant admission limits.
	OrgMaxJobsPerHour int
	OrgMaxJobsPerDay  int

	// Worker pool sizing.
	AIPoolConcurrency          int
	ExtractionPoolConcurrency  int
	MaintenancePoolConcurrency int

	AIPoolTick          time.Duration
	ExtractionPoolTick  time.Duration
	MaintenancePoolTick time.Duration

	ExportStoragePath string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8090"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		AIAPIKey:  os.Getenv("AI_API_KEY"),
		AIBaseURL: getEnv("AI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		AIModel:   getEnv("AI_MODEL", "gemini-1.5-flash"),

		ProviderCallsPerMinute: getEnvInt("PROVIDER_CALLS_PER_MINUTE", 15),
		ProviderDailyCallLimit: getEnvInt("PROVIDER_DAILY_CALL_LIMIT", 1400),

		OrgMaxJobsPerHour: getEnvInt("ORG_MAX_JOBS_PER_HOUR", 100),
		OrgMaxJobsPerDay:  getEnvInt("ORG_MAX_JOBS_PER_DAY", 500),

		AIPoolConcurrency:          getEnvInt("AI_POOL_CONCURRENCY", 3),
		ExtractionPoolConcurrency:  getEnvInt("EXTRACTION_POOL_CONCURRENCY", 8),
		MaintenancePoolConcurrency: getEnvInt("MAINTENANCE_POOL_CONCURRENCY", 2),

		AIPoolTick:          time.Second * time.Duration(getEnvInt("AI_POOL_TICK_SECONDS", 2)),
		ExtractionPoolTick:  time.Second * time.Duration(getEnvInt("EXTRACTION_POOL_TICK_SECONDS", 5)),
		MaintenancePoolTick: time.Second * time.Duration(getEnvInt("MAINTENANCE_POOL_TICK_SECONDS", 15)),

		ExportStoragePath: getEnv("EXPORT_STORAGE_PATH", "./storage/exports"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.ProviderCallsPerMinute <= 0 {
		return nil, fmt.Errorf("PROVIDER_CALLS_PER_MINUTE must be positive")
	}

	if cfg.ProviderDailyCallLimit <= 0 {
		return nil, fmt.Errorf("PROVIDER_DAILY_CALL_LIMIT must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
