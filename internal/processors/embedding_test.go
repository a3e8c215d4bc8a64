package processors

import (
	"context"
	"errors"
	"strings"
	"testing"

	"server/internal/domain"
)

func TestEmbeddingGenerationProcess(t *testing.T) {
	docs := newFakeDocRepo(&domain.Document{
		ID:             "doc-1",
		OrganizationID: "org-a",
		ExtractedText:  "searchable text",
	})
	client := &fakeAIClient{vector: []float32{0.1, 0.2, 0.3}}
	p := NewEmbeddingGeneration(docs, client)

	result, err := p.Process(context.Background(), docJob(domain.JobTypeEmbeddingGeneration, "doc-1"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.ProviderCalls != 1 {
		t.Fatalf("provider calls = %d, want 1", result.ProviderCalls)
	}
	if client.lastEmbedText != "searchable text" {
		t.Fatalf("embedded text = %q", client.lastEmbedText)
	}
	if !strings.Contains(string(result.Output), `"dimensions":3`) {
		t.Fatalf("output = %s", result.Output)
	}

	doc, _ := docs.GetByID(context.Background(), "doc-1")
	if !doc.EmbeddingsGenerated {
		t.Fatal("embeddings flag not set")
	}
}

func TestEmbeddingGenerationAlreadyEmbedded(t *testing.T) {
	docs := newFakeDocRepo(&domain.Document{
		ID:                  "doc-1",
		OrganizationID:      "org-a",
		ExtractedText:       "searchable text",
		EmbeddingsGenerated: true,
	})
	client := &fakeAIClient{}
	p := NewEmbeddingGeneration(docs, client)

	result, err := p.Process(context.Background(), docJob(domain.JobTypeEmbeddingGeneration, "doc-1"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if client.embedCalls != 0 {
		t.Fatalf("embed calls = %d, want 0", client.embedCalls)
	}
	if result.ProviderCalls != 0 {
		t.Fatalf("provider calls = %d, want 0", result.ProviderCalls)
	}
	if !strings.Contains(string(result.Output), `"skipped":true`) {
		t.Fatalf("output = %s", result.Output)
	}
}

func TestEmbeddingGenerationRateLimitPassthrough(t *testing.T) {
	docs := newFakeDocRepo(&domain.Document{
		ID:             "doc-1",
		OrganizationID: "org-a",
		ExtractedText:  "text",
	})
	client := &fakeAIClient{embedErr: domain.ErrProviderRateLimited}
	p := NewEmbeddingGeneration(docs, client)

	_, err := p.Process(context.Background(), docJob(domain.JobTypeEmbeddingGeneration, "doc-1"))
	if !errors.Is(err, domain.ErrProviderRateLimited) {
		t.Fatalf("err = %v, want ErrProviderRateLimited", err)
	}
}

func TestEmbeddingGenerationFallsBackToRawContent(t *testing.T) {
	docs := newFakeDocRepo(&domain.Document{
		ID:             "doc-1",
		OrganizationID: "org-a",
		RawContent:     "raw only",
	})
	client := &fakeAIClient{vector: []float32{1}}
	p := NewEmbeddingGeneration(docs, client)

	if _, err := p.Process(context.Background(), docJob(domain.JobTypeEmbeddingGeneration, "doc-1")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if client.lastEmbedText != "raw only" {
		t.Fatalf("embedded text = %q", client.lastEmbedText)
	}
}
