package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestRepo(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	commits, err := r.Log(ctx, 10)
	if err != nil || len(commits) != 0 {
		t.Fatalf("Log() on empty repo = %v, %v", commits, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "conclave_folders.json"), []byte("[]"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := r.Checkpoint(ctx, "create folder Acme"); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	// Nothing changed.
	if err := r.Checkpoint(ctx, "noop"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "conclave_folders.json"), []byte(`[{"id":"a"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pending.tmp"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := r.Checkpoint(ctx, "update\n\nbody"); err != nil {
		t.Fatal(err)
	}

	commits, err = r.Log(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 2 {
		t.Fatalf("Log() len = %d, want 2", len(commits))
	}
	if commits[0].Message != "update" || commits[1].Message != "create folder Acme" {
		t.Errorf("Log() = %q, %q", commits[0].Message, commits[1].Message)
	}

	// Reopening keeps the history.
	r2, err := Open(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if commits, _ := r2.Log(ctx, 1); len(commits) != 1 || commits[0].Message != "update" {
		t.Errorf("Log(1) after reopen = %v", commits)
	}
}
