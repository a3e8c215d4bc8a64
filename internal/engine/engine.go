package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
)

const (
	// planRecheckDelay requeues jobs whose processing-time plan check failed;
	// usage figures may simply be stale, so the job is deferred, not failed.
	planRecheckDelay = time.Minute

	registryClearInterval = 10 * time.Minute
	quotaSweepInterval    = time.Hour
)

// Options wires the engine's collaborators and limits.
type Options struct {
	Jobs   domain.JobRepository
	Orgs   domain.OrganizationRepository
	Logger zerolog.Logger

	ProviderCallsPerMinute int
	ProviderDailyCallLimit int
	OrgMaxJobsPerHour      int
	OrgMaxJobsPerDay       int
}

// EnqueueOptions carries the optional knobs of EnqueueJob.
type EnqueueOptions struct {
	Priority       int
	IdempotencyKey string
	ScheduledFor   time.Time
}

// Status is the engine snapshot exposed for health and ops.
type Status struct {
	IsRunning       bool           `json:"isRunning"`
	TokensAvailable int            `json:"tokensAvailable"`
	DailyCallsUsed  int            `json:"dailyCallsUsed"`
	InFlightByPool  map[string]int `json:"inFlightByPool"`
}

// Enqueuer is the enqueue surface processors use to chain follow-on work.
// Chained jobs go through the same idempotency and quota path as external
// enqueues.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobType domain.JobType, orgID, userID string, payload json.RawMessage, opts EnqueueOptions) (string, error)
}

// Engine is the single-instance job scheduler: it owns the rate budget, the
// tenant quota guard, the idempotency registry, the backoff tracker and one
// worker pool per registered job type. All scheduler state lives on this
// object; nothing is package-global.
type Engine struct {
	jobs   domain.JobRepository
	orgs   domain.OrganizationRepository
	logger zerolog.Logger

	budget   *RateBudget
	quota    *QuotaGuard
	registry *IdempotencyRegistry
	backoff  *BackoffTracker

	mu    sync.Mutex
	pools map[domain.JobType]*workerPool

	running atomic.Bool
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	now     func() time.Time
}

// New constructs an engine. Processors are registered separately before Start.
func New(opts Options) *Engine {
	return &Engine{
		jobs:     opts.Jobs,
		orgs:     opts.Orgs,
		logger:   opts.Logger,
		budget:   NewRateBudget(opts.ProviderCallsPerMinute, opts.ProviderDailyCallLimit),
		quota:    NewQuotaGuard(opts.Orgs, opts.OrgMaxJobsPerHour, opts.OrgMaxJobsPerDay),
		registry: NewIdempotencyRegistry(opts.Jobs),
		backoff:  NewBackoffTracker(),
		pools:    make(map[domain.JobType]*workerPool),
		now:      time.Now,
	}
}

// RegisterProcessor adds a processor and its worker pool. Registering twice
// for one type replaces the previous registration; doing so after Start is
// not supported.
func (e *Engine) RegisterProcessor(p Processor, cfg PoolConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pools[p.Type()] = newWorkerPool(p, cfg)
}

// Start launches one scheduling loop per pool plus the maintenance sweeps.
func (e *Engine) Start(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.mu.Lock()
	pools := make([]*workerPool, 0, len(e.pools))
	for _, p := range e.pools {
		pools = append(pools, p)
	}
	e.mu.Unlock()

	for _, pool := range pools {
		e.loops.Add(1)
		go e.runPoolLoop(runCtx, pool)
	}

	e.loops.Add(1)
	go e.runMaintenanceLoop(runCtx)

	e.logger.Info().Int("pools", len(pools)).Msg("engine: started")
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.loops.Wait()

	e.mu.Lock()
	pools := make([]*workerPool, 0, len(e.pools))
	for _, p := range e.pools {
		pools = append(pools, p)
	}
	e.mu.Unlock()
	for _, pool := range pools {
		pool.drain()
	}
	e.logger.Info().Msg("engine: stopped")
}

// GetStatus snapshots the engine for ops endpoints.
func (e *Engine) GetStatus() Status {
	status := Status{
		IsRunning:       e.running.Load(),
		TokensAvailable: e.budget.Tokens(),
		DailyCallsUsed:  e.budget.DailyCount(),
		InFlightByPool:  make(map[string]int),
	}
	e.mu.Lock()
	for jobType, pool := range e.pools {
		status.InFlightByPool[string(jobType)] = pool.inFlight()
	}
	e.mu.Unlock()
	return status
}

// EnqueueJob validates and persists a new pending job. It fails with
// ErrNoProcessor for unregistered types, ErrInvalidPayload when the payload
// does not match the type's shape, ErrDuplicateJob on idempotency conflicts
// and ErrQuotaExceeded when the tenant is over its admission or plan limits.
func (e *Engine) EnqueueJob(ctx context.Context, jobType domain.JobType, orgID, userID string, payload json.RawMessage, opts EnqueueOptions) (string, error) {
	e.mu.Lock()
	pool, ok := e.pools[jobType]
	e.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("job type %q: %w", jobType, domain.ErrNoProcessor)
	}

	if err := pool.processor.ValidatePayload(payload); err != nil {
		return "", fmt.Errorf("payload for %q: %w", jobType, err)
	}

	if err := e.quota.CheckPlan(ctx, orgID, jobType); err != nil {
		return "", err
	}

	if err := e.registry.Reserve(ctx, orgID, opts.IdempotencyKey); err != nil {
		return "", err
	}

	if err := e.quota.CheckAdmission(orgID); err != nil {
		e.registry.Release(orgID, opts.IdempotencyKey)
		return "", err
	}

	now := e.now()
	scheduledFor := opts.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = now
	}
	job := &domain.Job{
		ID:             uuid.NewString(),
		Type:           jobType,
		OrganizationID: orgID,
		UserID:         userID,
		Payload:        payload,
		Priority:       opts.Priority,
		Status:         domain.JobStatusPending,
		MaxAttempts:    pool.cfg.MaxAttempts,
		IdempotencyKey: opts.IdempotencyKey,
		ScheduledFor:   scheduledFor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.jobs.Enqueue(ctx, job); err != nil {
		e.registry.Release(orgID, opts.IdempotencyKey)
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	e.logger.Debug().
		Str("job_id", job.ID).
		Str("job_type", string(jobType)).
		Str("org_id", orgID).
		Msg("engine: job enqueued")
	return job.ID, nil
}

// CancelJob cancels a job that has not begun processing. Jobs already being
// processed run to completion; the request is rejected for that attempt.
func (e *Engine) CancelJob(ctx context.Context, jobID string) error {
	job, err := e.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if err := e.jobs.CancelPending(ctx, jobID); err != nil {
		return err
	}
	// Cancellation frees the idempotency key like a permanent failure does.
	e.registry.Release(job.OrganizationID, job.IdempotencyKey)
	return nil
}

// GetJobHistory lists a tenant's most recent jobs.
func (e *Engine) GetJobHistory(ctx context.Context, orgID string, limit int) ([]*domain.Job, error) {
	return e.jobs.GetHistory(ctx, orgID, limit)
}

// GetOldestPending exposes scheduling lag for health checks.
func (e *Engine) GetOldestPending(ctx context.Context, jobType *domain.JobType) (*domain.Job, error) {
	return e.jobs.GetOldestPending(ctx, jobType)
}

func (e *Engine) runPoolLoop(ctx context.Context, pool *workerPool) {
	defer e.loops.Done()

	ticker := time.NewTicker(pool.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// The tick body runs synchronously in this goroutine, so a tick
			// that is still draining cannot overlap the next one.
			e.budget.Refill()
			e.topUp(ctx, pool)
		}
	}
}

func (e *Engine) runMaintenanceLoop(ctx context.Context) {
	defer e.loops.Done()

	registryTicker := time.NewTicker(registryClearInterval)
	defer registryTicker.Stop()
	sweepTicker := time.NewTicker(quotaSweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-registryTicker.C:
			e.registry.ClearExpired()
		case <-sweepTicker.C:
			e.quota.Sweep()
		}
	}
}

// topUp leases pending jobs into the pool up to its free capacity. Quota
// consuming pools stop leasing the moment the shared budget runs dry; jobs
// already leased past that point go back to pending untouched. Store errors
// skip the tick; the engine degrades to making no progress rather than
// crashing.
func (e *Engine) topUp(ctx context.Context, pool *workerPool) {
	free := pool.freeSlots()
	if free <= 0 {
		return
	}

	jobs, err := e.jobs.LeaseNext(ctx, pool.jobType, free)
	if err != nil {
		e.logger.Error().Err(err).Str("job_type", string(pool.jobType)).Msg("engine: lease failed, skipping tick")
		return
	}

	budgetDry := false
	for _, job := range jobs {
		if at, deferred := e.backoff.Deferred(subjectOf(job)); deferred {
			e.releaseJob(ctx, job, at)
			continue
		}
		if budgetDry || (pool.cfg.UsesProviderQuota && !e.budget.TryConsume()) {
			budgetDry = true
			e.releaseJob(ctx, job, job.ScheduledFor)
			continue
		}
		if !pool.acquire() {
			e.releaseJob(ctx, job, job.ScheduledFor)
			continue
		}
		// A job that began processing runs to completion even if the engine
		// is stopped mid-flight.
		go e.runJob(context.WithoutCancel(ctx), pool, job)
	}
}

// releaseJob puts a leased job back to pending without consuming an attempt.
func (e *Engine) releaseJob(ctx context.Context, job *domain.Job, at time.Time) {
	if at.IsZero() {
		at = e.now()
	}
	upd := domain.JobUpdate{ScheduledFor: &at}
	if err := e.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusPending, upd); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("engine: release back to pending failed")
	}
}

// runJob executes one leased job and converts the outcome into a status
// transition. Processor errors never escape this method.
func (e *Engine) runJob(ctx context.Context, pool *workerPool, job *domain.Job) {
	defer pool.release()

	// Processing-time plan re-check is read-only; a failure defers the job
	// instead of failing it, since cached usage figures may be stale.
	if err := e.quota.CheckPlan(ctx, job.OrganizationID, job.Type); err != nil {
		e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("engine: plan re-check failed, deferring")
		e.releaseJob(ctx, job, e.now().Add(planRecheckDelay))
		return
	}

	result, err := pool.processor.Process(ctx, job)
	if err != nil {
		e.handleFailure(ctx, pool, job, err)
		return
	}
	e.handleSuccess(ctx, job, result)
}

func (e *Engine) handleSuccess(ctx context.Context, job *domain.Job, result Result) {
	upd := domain.JobUpdate{Result: result.Output}
	if err := e.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusCompleted, upd); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("engine: mark completed failed")
		return
	}

	e.backoff.Clear(subjectOf(job))
	e.budget.RecordDailyUsage(result.ProviderCalls)

	if job.OrganizationID != domain.OrganizationSystem {
		for dim, delta := range result.UsageDeltas {
			if delta == 0 {
				continue
			}
			if err := e.orgs.IncrementUsage(ctx, job.OrganizationID, dim, delta); err != nil {
				e.logger.Error().Err(err).
					Str("job_id", job.ID).
					Str("dimension", string(dim)).
					Msg("engine: usage increment failed")
			}
		}
	}

	if err := e.orgs.LogActivity(ctx, domain.ActivityEntry{
		OrganizationID: job.OrganizationID,
		UserID:         job.UserID,
		Action:         "job_completed",
		Details:        map[string]any{"job_id": job.ID, "job_type": string(job.Type)},
		CreatedAt:      e.now(),
	}); err != nil {
		e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("engine: activity log failed")
	}

	e.logger.Info().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Int("provider_calls", result.ProviderCalls).
		Msg("engine: job completed")
}

func (e *Engine) handleFailure(ctx context.Context, pool *workerPool, job *domain.Job, procErr error) {
	if errors.Is(procErr, domain.ErrProviderRateLimited) {
		// Rate limiting is a scheduling deferral, not an attempt failure.
		delay := e.backoff.Next(subjectOf(job))
		at := e.now().Add(delay)
		upd := domain.JobUpdate{ScheduledFor: &at}
		if err := e.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusPending, upd); err != nil {
			e.logger.Error().Err(err).Str("job_id", job.ID).Msg("engine: backoff requeue failed")
		}
		e.logger.Warn().
			Str("job_id", job.ID).
			Dur("backoff", delay).
			Msg("engine: provider throttled, deferring")
		return
	}

	attempts := job.Attempts + 1
	message := procErr.Error()
	upd := domain.JobUpdate{Attempts: &attempts, ErrorMessage: &message}

	if attempts > job.MaxAttempts {
		if err := e.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, upd); err != nil {
			e.logger.Error().Err(err).Str("job_id", job.ID).Msg("engine: mark failed failed")
		}
		// A permanently failed job frees its idempotency key for reuse.
		e.registry.Release(job.OrganizationID, job.IdempotencyKey)
		if err := e.orgs.LogActivity(ctx, domain.ActivityEntry{
			OrganizationID: job.OrganizationID,
			UserID:         job.UserID,
			Action:         "job_failed",
			Details:        map[string]any{"job_id": job.ID, "job_type": string(job.Type), "error": message},
			CreatedAt:      e.now(),
		}); err != nil {
			e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("engine: activity log failed")
		}
		e.logger.Error().
			Str("job_id", job.ID).
			Int("attempts", attempts).
			Str("error", message).
			Msg("engine: job failed permanently")
		return
	}

	at := e.now().Add(retryDelay(attempts))
	upd.ScheduledFor = &at
	if err := e.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusPending, upd); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("engine: retry requeue failed")
	}
	e.logger.Warn().
		Str("job_id", job.ID).
		Int("attempts", attempts).
		Str("error", message).
		Msg("engine: job requeued for retry")
}

// subjectOf identifies what a job operates on for backoff bookkeeping.
// Document-scoped payloads share backoff across job types touching the same
// document; everything else falls back to the job identity.
func subjectOf(job *domain.Job) string {
	var probe struct {
		DocumentID string `json:"documentId"`
	}
	if err := json.Unmarshal(job.Payload, &probe); err == nil && probe.DocumentID != "" {
		return probe.DocumentID
	}
	if job.IdempotencyKey != "" {
		return job.OrganizationID + ":" + job.IdempotencyKey
	}
	return job.ID
}
