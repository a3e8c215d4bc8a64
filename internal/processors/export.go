package processors

import (
	"context"
	"encoding/json"
	"fmt"

	"server/internal/domain"
	"server/internal/engine"
	"server/internal/storage"
	"server/pkg/zip"
)

const (
	exportDocumentLimit = 1000
	exportHistoryLimit  = 500
)

type exportPayload struct {
	IncludeHistory bool `json:"includeHistory"`
}

// DataExport bundles a tenant's documents, and optionally its job history,
// into a zip archive on the export store. The archive key is derived from the
// job ID so a retried export overwrites its own partial output instead of
// accumulating copies.
type DataExport struct {
	docs  domain.DocumentRepository
	jobs  domain.JobRepository
	store *storage.FileStore
}

func NewDataExport(docs domain.DocumentRepository, jobs domain.JobRepository, store *storage.FileStore) *DataExport {
	return &DataExport{docs: docs, jobs: jobs, store: store}
}

func (p *DataExport) Type() domain.JobType {
	return domain.JobTypeDataExport
}

func (p *DataExport) ValidatePayload(payload json.RawMessage) error {
	if len(payload) == 0 {
		return nil
	}
	var req exportPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return nil
}

func (p *DataExport) Process(ctx context.Context, job *domain.Job) (engine.Result, error) {
	var req exportPayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return engine.Result{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
	}

	docs, err := p.docs.ListByOrganization(ctx, job.OrganizationID, exportDocumentLimit)
	if err != nil {
		return engine.Result{}, fmt.Errorf("list documents: %w", err)
	}

	entries := make([]zip.Entry, 0, len(docs)+2)
	manifest, err := json.MarshalIndent(map[string]any{
		"organizationId": job.OrganizationID,
		"documentCount":  len(docs),
		"exportJobId":    job.ID,
	}, "", "  ")
	if err != nil {
		return engine.Result{}, err
	}
	entries = append(entries, zip.Entry{Name: "manifest.json", Data: manifest})

	for _, doc := range docs {
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return engine.Result{}, fmt.Errorf("encode document %s: %w", doc.ID, err)
		}
		entries = append(entries, zip.Entry{Name: "documents/" + doc.ID + ".json", Data: data})
	}

	historyCount := 0
	if req.IncludeHistory {
		history, err := p.jobs.GetHistory(ctx, job.OrganizationID, exportHistoryLimit)
		if err != nil {
			return engine.Result{}, fmt.Errorf("list job history: %w", err)
		}
		data, err := json.MarshalIndent(history, "", "  ")
		if err != nil {
			return engine.Result{}, err
		}
		entries = append(entries, zip.Entry{Name: "jobs.json", Data: data})
		historyCount = len(history)
	}

	archive, err := zip.Bundle(entries)
	if err != nil {
		return engine.Result{}, err
	}

	key := fmt.Sprintf("%s/export-%s.zip", job.OrganizationID, job.ID)
	storedKey, err := p.store.Write(ctx, key, archive)
	if err != nil {
		return engine.Result{}, err
	}

	output, err := json.Marshal(map[string]any{
		"storageKey":    storedKey,
		"documentCount": len(docs),
		"historyCount":  historyCount,
		"sizeBytes":     len(archive),
	})
	if err != nil {
		return engine.Result{}, err
	}
	return engine.Result{
		Output:      output,
		UsageDeltas: map[domain.QuotaDimension]int{domain.QuotaExports: 1},
	}, nil
}
