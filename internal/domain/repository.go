package domain

import (
	"context"
	"encoding/json"
	"time"
)

// JobUpdate carries the optional fields of a status transition. Nil fields
// leave the stored value untouched.
type JobUpdate struct {
	Result       json.RawMessage
	ErrorMessage *string
	ScheduledFor *time.Time
	Attempts     *int
}

// JobRepository defines persistence for job rows. Lease must atomically move
// rows from pending to processing so no job is visible to two lease calls.
type JobRepository interface {
	Enqueue(ctx context.Context, job *Job) error
	LeaseNext(ctx context.Context, jobType JobType, limit int) ([]*Job, error)
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, upd JobUpdate) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	FindActiveByKey(ctx context.Context, orgID, idempotencyKey string) (*Job, error)
	CancelPending(ctx context.Context, jobID string) error
	GetHistory(ctx context.Context, orgID string, limit int) ([]*Job, error)
	GetOldestPending(ctx context.Context, jobType *JobType) (*Job, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AnalysisUpdate carries the outcome of an AI analysis call for persistence.
type AnalysisUpdate struct {
	Summary      string
	KeyTopics    []string
	DocumentType string
	Category     string
	Confidence   float64
	WordCount    int
}

// DocumentRepository defines the engine's view of the document store.
type DocumentRepository interface {
	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, docID string) (*Document, error)
	UpdateExtraction(ctx context.Context, docID, text string, wordCount int) error
	UpdateAnalysis(ctx context.Context, docID string, upd AnalysisUpdate) error
	SaveEmbedding(ctx context.Context, docID string, vector []float32) error
	ListByOrganization(ctx context.Context, orgID string, limit int) ([]*Document, error)
}

// ActivityEntry is one audit log line for a tenant.
type ActivityEntry struct {
	OrganizationID string
	UserID         string
	Action         string
	Details        map[string]any
	CreatedAt      time.Time
}

// OrganizationRepository exposes tenant records, billing-grade usage counters
// and the activity log.
type OrganizationRepository interface {
	GetByID(ctx context.Context, orgID string) (*Organization, error)
	IncrementUsage(ctx context.Context, orgID string, dim QuotaDimension, delta int) error
	LogActivity(ctx context.Context, entry ActivityEntry) error
	ListActivity(ctx context.Context, orgID string, since time.Time, limit int) ([]ActivityEntry, error)
}
