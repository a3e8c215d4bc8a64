package processors

import (
	"context"
	"encoding/json"
	"fmt"

	"server/internal/domain"
	"server/internal/engine"
)

// EmbeddingGeneration produces the vector representation of a document. A
// document that already carries embeddings is skipped without touching the
// provider, so retried or double-chained jobs stay free.
type EmbeddingGeneration struct {
	docs   domain.DocumentRepository
	client AIClient
}

func NewEmbeddingGeneration(docs domain.DocumentRepository, client AIClient) *EmbeddingGeneration {
	return &EmbeddingGeneration{docs: docs, client: client}
}

func (p *EmbeddingGeneration) Type() domain.JobType {
	return domain.JobTypeEmbeddingGeneration
}

func (p *EmbeddingGeneration) ValidatePayload(payload json.RawMessage) error {
	_, err := decodeDocumentPayload(payload)
	return err
}

func (p *EmbeddingGeneration) Process(ctx context.Context, job *domain.Job) (engine.Result, error) {
	payload, err := decodeDocumentPayload(job.Payload)
	if err != nil {
		return engine.Result{}, err
	}

	doc, err := p.docs.GetByID(ctx, payload.DocumentID)
	if err != nil {
		return engine.Result{}, fmt.Errorf("load document %s: %w", payload.DocumentID, err)
	}

	if doc.EmbeddingsGenerated {
		return embeddingOutput(0, true)
	}

	text := doc.ExtractedText
	if text == "" {
		text = doc.RawContent
	}
	if text == "" {
		return engine.Result{}, fmt.Errorf("document %s has no content: %w", doc.ID, domain.ErrNotFound)
	}

	vector, err := p.client.GenerateEmbedding(ctx, text, "document_search")
	if err != nil {
		return engine.Result{}, fmt.Errorf("embed document %s: %w", doc.ID, err)
	}

	if err := p.docs.SaveEmbedding(ctx, doc.ID, vector); err != nil {
		return engine.Result{}, fmt.Errorf("store embedding: %w", err)
	}

	return embeddingOutput(len(vector), false)
}

func embeddingOutput(dimensions int, skipped bool) (engine.Result, error) {
	output, err := json.Marshal(map[string]any{
		"dimensions": dimensions,
		"skipped":    skipped,
	})
	if err != nil {
		return engine.Result{}, err
	}
	result := engine.Result{Output: output}
	if !skipped {
		result.ProviderCalls = 1
	}
	return result, nil
}
