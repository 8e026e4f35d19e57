package inbox

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/maruel/conclave/internal/models"
)

type fakeIngester struct {
	mu    sync.Mutex
	seen  map[string]string
	added chan string
}

func (f *fakeIngester) IngestFile(_ context.Context, folderID, path string) (*models.WorkspaceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.seen[filepath.Base(path)] = folderID + ":" + string(data)
	f.mu.Unlock()
	f.added <- filepath.Base(path)
	return &models.WorkspaceFile{ID: "id", Name: filepath.Base(path)}, nil
}

func waitFor(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case name := <-ch:
		return name
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for ingestion")
		return ""
	}
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "early.txt"), []byte("before"), 0o600); err != nil {
		t.Fatal(err)
	}
	ing := &fakeIngester{seen: map[string]string{}, added: make(chan string, 4)}
	w := New(dir, "f1", ing)
	w.Quiet = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- w.Run(ctx) }()

	if got := waitFor(t, ing.added); got != "early.txt" {
		t.Errorf("first ingested = %q", got)
	}
	if err := os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "late.md"), []byte("after"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := waitFor(t, ing.added); got != "late.md" {
		t.Errorf("second ingested = %q", got)
	}
	// Give process time to move the file after IngestFile returns.
	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, err := os.Stat(filepath.Join(dir, DoneDir, "late.md")); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("late.md was not moved to done/")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	ing.mu.Lock()
	defer ing.mu.Unlock()
	if ing.seen["early.txt"] != "f1:before" || ing.seen["late.md"] != "f1:after" {
		t.Errorf("seen = %v", ing.seen)
	}
	if _, ok := ing.seen[".hidden"]; ok {
		t.Error("hidden file was ingested")
	}
	if _, err := os.Stat(filepath.Join(dir, ".hidden")); err != nil {
		t.Error("hidden file was moved")
	}
}
