package processors

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"server/internal/domain"
	"server/internal/storage"
)

func TestDataExportProcess(t *testing.T) {
	docs := newFakeDocRepo(
		&domain.Document{ID: "doc-1", OrganizationID: "org-a", Title: "First"},
		&domain.Document{ID: "doc-2", OrganizationID: "org-a", Title: "Second"},
		&domain.Document{ID: "doc-3", OrganizationID: "org-b", Title: "Other tenant"},
	)
	jobs := &fakeJobHistory{history: []*domain.Job{
		{ID: "old-job", Type: domain.JobTypeAnalysis, OrganizationID: "org-a", Status: domain.JobStatusCompleted},
	}}
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	p := NewDataExport(docs, jobs, store)

	job := &domain.Job{
		ID:             "export-1",
		Type:           domain.JobTypeDataExport,
		OrganizationID: "org-a",
		Payload:        []byte(`{"includeHistory":true}`),
	}
	result, err := p.Process(context.Background(), job)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.UsageDeltas[domain.QuotaExports] != 1 {
		t.Fatalf("usage deltas = %v, want exports 1", result.UsageDeltas)
	}

	var output struct {
		StorageKey    string `json:"storageKey"`
		DocumentCount int    `json:"documentCount"`
		HistoryCount  int    `json:"historyCount"`
	}
	if err := json.Unmarshal(result.Output, &output); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if output.DocumentCount != 2 || output.HistoryCount != 1 {
		t.Fatalf("output = %+v", output)
	}

	data, err := os.ReadFile(filepath.Join(store.BasePath(), filepath.FromSlash(output.StorageKey)))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"manifest.json", "documents/doc-1.json", "documents/doc-2.json", "jobs.json"} {
		if !names[want] {
			t.Fatalf("archive missing %s, has %v", want, names)
		}
	}
	if names["documents/doc-3.json"] {
		t.Fatal("archive leaked another tenant's document")
	}
}

func TestDataExportWithoutHistory(t *testing.T) {
	docs := newFakeDocRepo(&domain.Document{ID: "doc-1", OrganizationID: "org-a"})
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	p := NewDataExport(docs, &fakeJobHistory{}, store)

	job := &domain.Job{ID: "export-1", Type: domain.JobTypeDataExport, OrganizationID: "org-a"}
	result, err := p.Process(context.Background(), job)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if strings.Contains(string(result.Output), `"historyCount":1`) {
		t.Fatalf("output = %s", result.Output)
	}
}
