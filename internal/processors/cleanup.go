package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/engine"
	"server/internal/storage"
)

const defaultRetentionDays = 30

type cleanupPayload struct {
	RetentionDays int `json:"retentionDays"`
}

// DataCleanup prunes terminal job rows and expired export archives that are
// older than the retention window. It is meant to run under the system
// organization on a schedule.
type DataCleanup struct {
	jobs  domain.JobRepository
	store *storage.FileStore
	now   func() time.Time
}

func NewDataCleanup(jobs domain.JobRepository, store *storage.FileStore) *DataCleanup {
	return &DataCleanup{jobs: jobs, store: store, now: time.Now}
}

func (p *DataCleanup) Type() domain.JobType {
	return domain.JobTypeDataCleanup
}

func (p *DataCleanup) ValidatePayload(payload json.RawMessage) error {
	if len(payload) == 0 {
		return nil
	}
	req, err := decodeCleanupPayload(payload)
	if err != nil {
		return err
	}
	if req.RetentionDays < 0 {
		return fmt.Errorf("negative retention: %w", domain.ErrInvalidPayload)
	}
	return nil
}

func (p *DataCleanup) Process(ctx context.Context, job *domain.Job) (engine.Result, error) {
	retention := defaultRetentionDays
	if len(job.Payload) > 0 {
		req, err := decodeCleanupPayload(job.Payload)
		if err != nil {
			return engine.Result{}, err
		}
		if req.RetentionDays > 0 {
			retention = req.RetentionDays
		}
	}

	cutoff := p.now().AddDate(0, 0, -retention)

	deletedJobs, err := p.jobs.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return engine.Result{}, fmt.Errorf("delete terminal jobs: %w", err)
	}

	removedFiles := 0
	if p.store != nil {
		removedFiles, err = p.store.RemoveOlderThan(ctx, cutoff)
		if err != nil {
			return engine.Result{}, fmt.Errorf("prune export files: %w", err)
		}
	}

	output, err := json.Marshal(map[string]any{
		"deletedJobs":   deletedJobs,
		"removedFiles":  removedFiles,
		"retentionDays": retention,
	})
	if err != nil {
		return engine.Result{}, err
	}
	return engine.Result{Output: output}, nil
}

func decodeCleanupPayload(payload json.RawMessage) (cleanupPayload, error) {
	var req cleanupPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return req, nil
}
