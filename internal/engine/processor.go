package engine

import (
	"context"
	"encoding/json"
	"time"

	"server/internal/domain"
)

// Result is what a processor returns on success.
type Result struct {
	// Output is persisted as the job's result payload.
	Output json.RawMessage
	// ProviderCalls counts external AI calls actually made. Work that was
	// short-circuited because results already existed must report zero so
	// the daily budget is not charged for skipped calls.
	ProviderCalls int
	// UsageDeltas are billing-grade counter increments applied to the
	// tenant's durable record after the job completes.
	UsageDeltas map[domain.QuotaDimension]int
}

// Processor handles one job type. Processors must detect and short-circuit
// already-completed prior work, and must return provider throttling as an
// error wrapping domain.ErrProviderRateLimited so the engine can defer
// instead of burning an attempt.
type Processor interface {
	Type() domain.JobType
	ValidatePayload(payload json.RawMessage) error
	Process(ctx context.Context, job *domain.Job) (Result, error)
}

// PoolConfig sizes the worker pool serving one job type.
type PoolConfig struct {
	// Concurrency caps in-flight jobs for the pool.
	Concurrency int
	// Tick is the scheduling interval; urgent types poll faster.
	Tick time.Duration
	// UsesProviderQuota gates leasing behind the shared rate budget.
	UsesProviderQuota bool
	// MaxAttempts overrides domain.DefaultMaxAttempts when positive.
	MaxAttempts int
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.Tick <= 0 {
		c.Tick = 5 * time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = domain.DefaultMaxAttempts
	}
	return c
}
