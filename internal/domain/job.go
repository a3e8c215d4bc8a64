package domain

import (
	"encoding/json"
	"time"
)

// JobType enumerates supported background job categories. New types are added
// by registering a processor with the engine, not by changing the engine.
type JobType string

const (
	JobTypeContentExtraction   JobType = "content_extraction"
	JobTypeAnalysis            JobType = "analysis"
	JobTypeEmbeddingGeneration JobType = "embedding_generation"
	JobTypeBulkUpload          JobType = "bulk_upload"
	JobTypeDataExport          JobType = "data_export"
	JobTypeDataCleanup         JobType = "data_cleanup"
	JobTypeAuditReport         JobType = "audit_report"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// OrganizationSystem is the reserved tenant identifier for engine-owned
// maintenance jobs; no tenant quota applies to it.
const OrganizationSystem = "system"

// DefaultMaxAttempts is used when a job type does not specify its own limit.
const DefaultMaxAttempts = 3

// Job is the unit of work tracked by the engine.
type Job struct {
	ID             string          `json:"id"`
	Type           JobType         `json:"type"`
	OrganizationID string          `json:"organizationId"`
	UserID         string          `json:"userId,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Priority       int             `json:"priority"`
	Status         JobStatus       `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"maxAttempts"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	ScheduledFor   time.Time       `json:"scheduledFor"`
	Result         json.RawMessage `json:"result,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// BlocksIdempotencyKey reports whether this job's status still reserves its
// idempotency key. Failed and cancelled jobs release the key for reuse.
func (j *Job) BlocksIdempotencyKey() bool {
	switch j.Status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted:
		return true
	}
	return false
}
