package processors

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"server/internal/domain"
	"server/internal/engine"
	"server/internal/providers/ai"
)

type fakeDocRepo struct {
	mu   sync.Mutex
	docs map[string]*domain.Document
}

func newFakeDocRepo(docs ...*domain.Document) *fakeDocRepo {
	r := &fakeDocRepo{docs: map[string]*domain.Document{}}
	for _, doc := range docs {
		r.docs[doc.ID] = doc
	}
	return r
}

func (r *fakeDocRepo) Create(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
	return nil
}

func (r *fakeDocRepo) GetByID(_ context.Context, docID string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (r *fakeDocRepo) UpdateExtraction(_ context.Context, docID, text string, wordCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok {
		return domain.ErrNotFound
	}
	doc.ExtractedText = text
	doc.WordCount = wordCount
	return nil
}

func (r *fakeDocRepo) UpdateAnalysis(_ context.Context, docID string, upd domain.AnalysisUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok {
		return domain.ErrNotFound
	}
	doc.Summary = upd.Summary
	doc.KeyTopics = upd.KeyTopics
	doc.DocumentType = upd.DocumentType
	doc.Category = upd.Category
	doc.AnalysisConfidence = upd.Confidence
	doc.WordCount = upd.WordCount
	return nil
}

func (r *fakeDocRepo) SaveEmbedding(_ context.Context, docID string, _ []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok {
		return domain.ErrNotFound
	}
	doc.EmbeddingsGenerated = true
	return nil
}

func (r *fakeDocRepo) ListByOrganization(_ context.Context, orgID string, limit int) ([]*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Document{}
	for _, doc := range r.docs {
		if doc.OrganizationID != orgID {
			continue
		}
		copied := *doc
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeAIClient struct {
	analysis      *ai.Analysis
	analyzeErr    error
	vector        []float32
	embedErr      error
	analyzeCalls  int
	embedCalls    int
	lastEmbedText string
}

func (c *fakeAIClient) AnalyzeContent(_ context.Context, _ string) (*ai.Analysis, error) {
	c.analyzeCalls++
	if c.analyzeErr != nil {
		return nil, c.analyzeErr
	}
	return c.analysis, nil
}

func (c *fakeAIClient) GenerateEmbedding(_ context.Context, text, _ string) ([]float32, error) {
	c.embedCalls++
	c.lastEmbedText = text
	if c.embedErr != nil {
		return nil, c.embedErr
	}
	return c.vector, nil
}

type enqueuedCall struct {
	jobType domain.JobType
	orgID   string
	payload string
	opts    engine.EnqueueOptions
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []enqueuedCall
	err   error
}

func (e *fakeEnqueuer) EnqueueJob(_ context.Context, jobType domain.JobType, orgID, _ string, payload json.RawMessage, opts engine.EnqueueOptions) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	e.calls = append(e.calls, enqueuedCall{jobType: jobType, orgID: orgID, payload: string(payload), opts: opts})
	return "job-" + string(jobType), nil
}

type fakeJobHistory struct {
	history   []*domain.Job
	deleted   int64
	lastCut   time.Time
	deleteErr error
}

func (r *fakeJobHistory) Enqueue(context.Context, *domain.Job) error { return errors.New("unused") }

func (r *fakeJobHistory) LeaseNext(context.Context, domain.JobType, int) ([]*domain.Job, error) {
	return nil, errors.New("unused")
}

func (r *fakeJobHistory) UpdateStatus(context.Context, string, domain.JobStatus, domain.JobUpdate) error {
	return errors.New("unused")
}

func (r *fakeJobHistory) GetByID(context.Context, string) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeJobHistory) FindActiveByKey(context.Context, string, string) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeJobHistory) CancelPending(context.Context, string) error { return errors.New("unused") }

func (r *fakeJobHistory) GetHistory(_ context.Context, _ string, limit int) ([]*domain.Job, error) {
	if len(r.history) > limit {
		return r.history[:limit], nil
	}
	return r.history, nil
}

func (r *fakeJobHistory) GetOldestPending(context.Context, *domain.JobType) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeJobHistory) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	if r.deleteErr != nil {
		return 0, r.deleteErr
	}
	r.lastCut = cutoff
	return r.deleted, nil
}

type fakeOrgActivity struct {
	entries []domain.ActivityEntry
	since   time.Time
}

func (r *fakeOrgActivity) GetByID(context.Context, string) (*domain.Organization, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeOrgActivity) IncrementUsage(context.Context, string, domain.QuotaDimension, int) error {
	return nil
}

func (r *fakeOrgActivity) LogActivity(context.Context, domain.ActivityEntry) error { return nil }

func (r *fakeOrgActivity) ListActivity(_ context.Context, orgID string, since time.Time, _ int) ([]domain.ActivityEntry, error) {
	r.since = since
	out := []domain.ActivityEntry{}
	for _, entry := range r.entries {
		if entry.OrganizationID == orgID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func docJob(jobType domain.JobType, docID string) *domain.Job {
	return &domain.Job{
		ID:             "job-1",
		Type:           jobType,
		OrganizationID: "org-a",
		UserID:         "user-1",
		Payload:        []byte(`{"documentId":"` + docID + `"}`),
	}
}
