package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"server/internal/domain"
)

// IdempotencyRegistry collapses duplicate logical enqueues into one admitted
// job. The durable store is authoritative; the in-memory recently-admitted
// set closes the window between two near-simultaneous enqueues racing the
// store write. The set is cleared wholesale on a fixed interval, which is an
// acceptable approximation of per-entry expiry because the store lookup
// still catches anything the set has forgotten.
type IdempotencyRegistry struct {
	mu     sync.Mutex
	recent map[string]struct{}
	jobs   domain.JobRepository
}

// NewIdempotencyRegistry constructs a registry over the given job store.
func NewIdempotencyRegistry(jobs domain.JobRepository) *IdempotencyRegistry {
	return &IdempotencyRegistry{
		recent: make(map[string]struct{}),
		jobs:   jobs,
	}
}

// Reserve claims (orgID, key) for a new job. It fails with ErrDuplicateJob
// when the key is held by a pending, processing or completed job, or was
// admitted moments ago. An empty key never conflicts. The caller must invoke
// Release if the subsequent store write fails.
func (r *IdempotencyRegistry) Reserve(ctx context.Context, orgID, key string) error {
	if key == "" {
		return nil
	}
	composite := compositeKey(orgID, key)

	r.mu.Lock()
	if _, held := r.recent[composite]; held {
		r.mu.Unlock()
		return fmt.Errorf("idempotency key %q recently admitted: %w", key, domain.ErrDuplicateJob)
	}
	r.recent[composite] = struct{}{}
	r.mu.Unlock()

	existing, err := r.jobs.FindActiveByKey(ctx, orgID, key)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		r.Release(orgID, key)
		return fmt.Errorf("idempotency lookup: %w", err)
	}
	if existing != nil && existing.BlocksIdempotencyKey() {
		r.Release(orgID, key)
		return fmt.Errorf("idempotency key %q held by job %s: %w", key, existing.ID, domain.ErrDuplicateJob)
	}
	return nil
}

// Release frees a reservation whose store write never landed.
func (r *IdempotencyRegistry) Release(orgID, key string) {
	if key == "" {
		return
	}
	r.mu.Lock()
	delete(r.recent, compositeKey(orgID, key))
	r.mu.Unlock()
}

// ClearExpired empties the recently-admitted set. The engine calls this on a
// fixed interval (every ten minutes).
func (r *IdempotencyRegistry) ClearExpired() {
	r.mu.Lock()
	r.recent = make(map[string]struct{})
	r.mu.Unlock()
}

func compositeKey(orgID, key string) string {
	return orgID + "\x00" + key
}
