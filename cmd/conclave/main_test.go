package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/maruel/conclave/internal/config"
)

func TestCommands(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.History = true
	a, err := openApp(ctx, dir, &cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.close()

	f, err := a.svc.CreateFolder(ctx, "Acme", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(t.TempDir(), "notes.md")
	if err := os.WriteFile(src, []byte("# notes"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := runIngest(ctx, a, []string{f.ID, src}); err != nil {
		t.Fatal(err)
	}
	if err := runIngest(ctx, a, []string{f.ID}); err == nil {
		t.Fatal("expected usage error")
	}

	zipPath := filepath.Join(t.TempDir(), "backup.zip")
	if err := runExport(ctx, a, []string{"-assets", zipPath}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.svc.CreateFolder(ctx, "Later", "", nil); err != nil {
		t.Fatal(err)
	}
	if err := runImport(ctx, a, []string{zipPath}); err != nil {
		t.Fatal(err)
	}
	if got := len(a.svc.ListFolders()); got != 1 {
		t.Fatalf("folders after import = %d, want 1", got)
	}
	files, err := a.svc.ListFiles(ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Content != "# notes" {
		t.Fatalf("files = %+v", files)
	}

	commits, err := a.history.Log(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) == 0 {
		t.Fatal("no checkpoints recorded")
	}
	if err := runHistory(ctx, a, []string{"-n", "1"}); err != nil {
		t.Fatal(err)
	}
}

func TestHistoryDisabled(t *testing.T) {
	cfg := config.Default()
	a, err := openApp(t.Context(), t.TempDir(), &cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.close()
	if err := runHistory(t.Context(), a, nil); err == nil {
		t.Fatal("expected error with history disabled")
	}
}
