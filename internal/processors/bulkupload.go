package processors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/engine"
)

const extractionChainPriority = 20

type bulkUploadPayload struct {
	Documents []bulkUploadDocument `json:"documents"`
}

type bulkUploadDocument struct {
	Title      string `json:"title"`
	RawContent string `json:"rawContent"`
	SizeMB     int    `json:"sizeMb"`
}

// BulkUpload creates the uploaded documents for a tenant and chains a
// content extraction job per document. Storage usage is charged once for the
// whole batch.
type BulkUpload struct {
	docs     domain.DocumentRepository
	enqueuer engine.Enqueuer
}

func NewBulkUpload(docs domain.DocumentRepository, enqueuer engine.Enqueuer) *BulkUpload {
	return &BulkUpload{docs: docs, enqueuer: enqueuer}
}

func (p *BulkUpload) Type() domain.JobType {
	return domain.JobTypeBulkUpload
}

func (p *BulkUpload) ValidatePayload(payload json.RawMessage) error {
	upload, err := decodeBulkUploadPayload(payload)
	if err != nil {
		return err
	}
	for i, doc := range upload.Documents {
		if doc.RawContent == "" {
			return fmt.Errorf("document %d has no content: %w", i, domain.ErrInvalidPayload)
		}
		if doc.SizeMB < 0 {
			return fmt.Errorf("document %d has negative size: %w", i, domain.ErrInvalidPayload)
		}
	}
	return nil
}

func (p *BulkUpload) Process(ctx context.Context, job *domain.Job) (engine.Result, error) {
	upload, err := decodeBulkUploadPayload(job.Payload)
	if err != nil {
		return engine.Result{}, err
	}

	created := make([]string, 0, len(upload.Documents))
	totalMB := 0
	for _, item := range upload.Documents {
		title := item.Title
		if title == "" {
			title = titleFromText(item.RawContent, 8)
		}
		doc := &domain.Document{
			ID:             uuid.NewString(),
			OrganizationID: job.OrganizationID,
			Title:          title,
			RawContent:     item.RawContent,
			SizeMB:         item.SizeMB,
		}
		if err := p.docs.Create(ctx, doc); err != nil {
			return engine.Result{}, fmt.Errorf("create document %q: %w", title, err)
		}
		created = append(created, doc.ID)
		totalMB += item.SizeMB

		p.chainExtraction(ctx, job, doc.ID)
	}

	output, err := json.Marshal(map[string]any{
		"documentIds": created,
		"totalSizeMb": totalMB,
	})
	if err != nil {
		return engine.Result{}, err
	}

	result := engine.Result{Output: output}
	if totalMB > 0 {
		result.UsageDeltas = map[domain.QuotaDimension]int{domain.QuotaStorageMB: totalMB}
	}
	return result, nil
}

func (p *BulkUpload) chainExtraction(ctx context.Context, job *domain.Job, docID string) {
	payload, err := json.Marshal(documentPayload{DocumentID: docID})
	if err != nil {
		return
	}
	_, _ = p.enqueuer.EnqueueJob(ctx, domain.JobTypeContentExtraction, job.OrganizationID, job.UserID, payload, engine.EnqueueOptions{
		Priority:       extractionChainPriority,
		IdempotencyKey: "extract:" + docID,
	})
}

func decodeBulkUploadPayload(payload json.RawMessage) (bulkUploadPayload, error) {
	var upload bulkUploadPayload
	if err := json.Unmarshal(payload, &upload); err != nil {
		return upload, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if len(upload.Documents) == 0 {
		return upload, fmt.Errorf("empty upload: %w", domain.ErrInvalidPayload)
	}
	return upload, nil
}
