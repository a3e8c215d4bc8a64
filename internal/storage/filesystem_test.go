package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreWriteAndRemove(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	key, err := store.Write(ctx, "org-a/export-1.zip", []byte("payload"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if key != "org-a/export-1.zip" {
		t.Fatalf("key = %q", key)
	}
	data, err := os.ReadFile(filepath.Join(store.BasePath(), "org-a", "export-1.zip"))
	if err != nil || string(data) != "payload" {
		t.Fatalf("read back: %q, %v", data, err)
	}

	if err := store.Remove(ctx, key); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.Remove(ctx, key); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, key := range []string{"", "../escape", "/../../etc/passwd", "."} {
		if _, err := store.Write(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("key %q accepted", key)
		}
	}
}

func TestFileStoreRemoveOlderThan(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	now := time.Now()

	if _, err := store.Write(ctx, "old.zip", []byte("a")); err != nil {
		t.Fatalf("write: %v", err)
	}
	stale := now.Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(store.BasePath(), "old.zip"), stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if _, err := store.Write(ctx, "fresh.zip", []byte("b")); err != nil {
		t.Fatalf("write: %v", err)
	}

	removed, err := store.RemoveOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("remove older: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(filepath.Join(store.BasePath(), "old.zip")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("old file survived")
	}
	if _, err := os.Stat(filepath.Join(store.BasePath(), "fresh.zip")); err != nil {
		t.Fatalf("fresh file removed: %v", err)
	}
}
