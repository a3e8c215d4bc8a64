package processors

import (
	"context"
	"encoding/json"
	"fmt"

	"server/internal/domain"
	"server/internal/engine"
)

// embeddingChainPriority places chained embedding jobs behind interactive
// analysis work in the same pool ordering.
const embeddingChainPriority = 10

// Analysis runs the AI content analysis over an extracted document and, on
// success, chains an embedding job for the same document through the normal
// enqueue path.
type Analysis struct {
	docs     domain.DocumentRepository
	client   AIClient
	enqueuer engine.Enqueuer
}

// NewAnalysis constructs the processor.
func NewAnalysis(docs domain.DocumentRepository, client AIClient, enqueuer engine.Enqueuer) *Analysis {
	return &Analysis{docs: docs, client: client, enqueuer: enqueuer}
}

func (p *Analysis) Type() domain.JobType {
	return domain.JobTypeAnalysis
}

func (p *Analysis) ValidatePayload(payload json.RawMessage) error {
	_, err := decodeDocumentPayload(payload)
	return err
}

func (p *Analysis) Process(ctx context.Context, job *domain.Job) (engine.Result, error) {
	payload, err := decodeDocumentPayload(job.Payload)
	if err != nil {
		return engine.Result{}, err
	}

	doc, err := p.docs.GetByID(ctx, payload.DocumentID)
	if err != nil {
		return engine.Result{}, fmt.Errorf("load document %s: %w", payload.DocumentID, err)
	}

	// Already analyzed: idempotent no-op, no provider quota consumed.
	if doc.Summary != "" {
		p.chainEmbedding(ctx, job, doc)
		return analysisOutput(doc.Summary, doc.DocumentType, doc.Category, 0)
	}

	text := doc.ExtractedText
	if text == "" {
		text = doc.RawContent
	}
	if text == "" {
		return engine.Result{}, fmt.Errorf("document %s has no content: %w", doc.ID, domain.ErrNotFound)
	}

	analysis, err := p.client.AnalyzeContent(ctx, text)
	if err != nil {
		return engine.Result{}, fmt.Errorf("analyze document %s: %w", doc.ID, err)
	}

	if err := p.docs.UpdateAnalysis(ctx, doc.ID, domain.AnalysisUpdate{
		Summary:      analysis.Summary,
		KeyTopics:    analysis.KeyTopics,
		DocumentType: analysis.DocumentType,
		Category:     analysis.Category,
		Confidence:   analysis.Confidence,
		WordCount:    analysis.WordCount,
	}); err != nil {
		return engine.Result{}, fmt.Errorf("store analysis: %w", err)
	}

	p.chainEmbedding(ctx, job, doc)

	result, err := analysisOutput(analysis.Summary, analysis.DocumentType, analysis.Category, 1)
	if err != nil {
		return engine.Result{}, err
	}
	result.UsageDeltas = map[domain.QuotaDimension]int{domain.QuotaAIAnalyses: 1}
	return result, nil
}

// chainEmbedding enqueues the follow-on embedding job. The enqueue path's
// idempotency key guards against double-chaining, and the embedding
// processor itself skips documents that already have vectors, so a best
// effort here is enough; failures only delay embedding generation.
func (p *Analysis) chainEmbedding(ctx context.Context, job *domain.Job, doc *domain.Document) {
	if doc.EmbeddingsGenerated {
		return
	}
	payload, err := json.Marshal(documentPayload{DocumentID: doc.ID})
	if err != nil {
		return
	}
	_, _ = p.enqueuer.EnqueueJob(ctx, domain.JobTypeEmbeddingGeneration, job.OrganizationID, job.UserID, payload, engine.EnqueueOptions{
		Priority:       embeddingChainPriority,
		IdempotencyKey: "embed:" + doc.ID,
	})
}

func analysisOutput(summary, documentType, category string, providerCalls int) (engine.Result, error) {
	output, err := json.Marshal(map[string]any{
		"summary":      summary,
		"documentType": documentType,
		"category":     category,
	})
	if err != nil {
		return engine.Result{}, err
	}
	return engine.Result{Output: output, ProviderCalls: providerCalls}, nil
}
