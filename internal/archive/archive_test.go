package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/maruel/conclave/internal/assets"
	"github.com/maruel/conclave/internal/jsondb"
	"github.com/maruel/conclave/internal/models"
	"github.com/maruel/conclave/internal/storage"
)

var exportTime = time.Date(2026, 10, 16, 12, 34, 56, 789000000, time.UTC)

func populated(t *testing.T) *jsondb.MemMedium {
	t.Helper()
	m := jsondb.NewMemMedium()
	s := storage.New(m)
	if err := s.InsertFolder(&models.Folder{ID: "f", Name: "Acme", CreatedAt: exportTime}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertAgent(&models.Agent{ID: "a", FolderID: "f", Name: "Assistant", IsAssistant: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertRoom(&models.Room{ID: "r", FolderID: "f", Name: "Company Chat", Type: models.RoomCompany}); err != nil {
		t.Fatal(err)
	}
	if err := s.LinkRoomAgent("r", "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendMessage(&models.Message{ID: "m", RoomID: "r", Role: models.RoleUser, Content: "hello"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSettings(models.AISettings{Provider: models.ProviderOllama, Model: "llama3"}); err != nil {
		t.Fatal(err)
	}
	return m
}

func export(t *testing.T, m jsondb.Medium, opts *Options) []byte {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	opts.AppVersion = "test"
	opts.Now = func() time.Time { return exportTime }
	var buf bytes.Buffer
	if _, err := Export(context.Background(), &buf, m, opts); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	return buf.Bytes()
}

// build writes a zip with the given entries.
func build(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	src := populated(t)
	data := export(t, src, nil)

	dst := jsondb.NewMemMedium()
	_ = dst.Set(storage.KeyFolders, []byte(`[{"id":"old","name":"Old"}]`))
	res, err := Import(context.Background(), bytes.NewReader(data), int64(len(data)), dst, nil)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if res.Restored != 6 || res.Total != 6 {
		t.Errorf("Import() restored %d of %d, want 6 of 6", res.Restored, res.Total)
	}
	if res.Manifest.AppVersion != "test" || !res.Manifest.ExportedAt.Equal(exportTime) {
		t.Errorf("Manifest = %+v", res.Manifest)
	}
	for _, key := range storage.Keys() {
		want, _ := src.Get(key)
		got, err := dst.Get(key)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", key, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%s = %s, want %s", key, got, want)
		}
	}
}

func TestExportLayout(t *testing.T) {
	m := jsondb.NewMemMedium()
	_ = m.Set(storage.KeyFolders, []byte(`[]`))
	data := export(t, m, nil)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if len(names) != 2 || names[0] != "manifest.json" || names[1] != "data/folders.json" {
		t.Errorf("entries = %v", names)
	}
	raw, err := readEntry(zr.File[0])
	if err != nil {
		t.Fatal(err)
	}
	var manifest map[string]any
	if err := json.Unmarshal(raw, &manifest); err != nil {
		t.Fatal(err)
	}
	if manifest["version"] != float64(1) {
		t.Errorf("version = %v", manifest["version"])
	}
	if keys, _ := manifest["dataKeys"].([]any); len(keys) != 6 {
		t.Errorf("dataKeys = %v", manifest["dataKeys"])
	}
	if _, ok := manifest["includesAssets"]; ok {
		t.Error("includesAssets present without assets")
	}
}

func TestImportRejects(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string]string
		want    error
	}{
		{"missing manifest", map[string]string{"data/folders.json": `[]`}, ErrMissingManifest},
		{"version 2", map[string]string{"manifest.json": `{"version":2}`, "data/folders.json": `[]`}, ErrUnsupportedVersion},
		{"no version", map[string]string{"manifest.json": `{}`}, ErrUnsupportedVersion},
		{"bad payload", map[string]string{"manifest.json": `{"version":1}`, "data/folders.json": `[]`, "data/rooms.json": `[{`}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := populated(t)
			before := map[string][]byte{}
			for _, key := range storage.Keys() {
				before[key], _ = dst.Get(key)
			}
			data := build(t, tt.entries)
			_, err := Import(context.Background(), bytes.NewReader(data), int64(len(data)), dst, nil)
			if err == nil {
				t.Fatal("Import succeeded")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Import() error = %v, want %v", err, tt.want)
			}
			for _, key := range storage.Keys() {
				got, _ := dst.Get(key)
				if !bytes.Equal(got, before[key]) {
					t.Errorf("%s changed on a rejected import", key)
				}
			}
		})
	}
}

func TestImportEntryLimit(t *testing.T) {
	old := maxEntryBytes
	maxEntryBytes = 32
	t.Cleanup(func() { maxEntryBytes = old })
	big := `["` + strings.Repeat("x", 64) + `"]`
	tests := []struct {
		name    string
		entries map[string]string
	}{
		{"manifest", map[string]string{"manifest.json": `{"version":1,"appVersion":"` + strings.Repeat("v", 64) + `"}`}},
		{"data", map[string]string{"manifest.json": `{"version":1}`, "data/folders.json": `[]`, "data/rooms.json": big}},
		{"blob", map[string]string{
			"manifest.json":     `{"version":1}`,
			"data/folders.json": `[]`,
			"assets/index.json": `[{"id":"b1","name":"x"}]`,
			"assets/blobs/b1":   big,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := assets.Open(t.Context(), filepath.Join(t.TempDir(), "assets.db"))
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { _ = a.Close() })
			dst := populated(t)
			folders, _ := dst.Get(storage.KeyFolders)
			data := build(t, tt.entries)
			res, err := Import(context.Background(), bytes.NewReader(data), int64(len(data)), dst, a)
			if !errors.Is(err, ErrEntryTooLarge) {
				t.Fatalf("Import() error = %v, want ErrEntryTooLarge", err)
			}
			if res != nil {
				t.Errorf("Import() = %+v, want nil before any write", res)
			}
			if got, _ := dst.Get(storage.KeyFolders); !bytes.Equal(got, folders) {
				t.Error("folders changed on a rejected import")
			}
		})
	}
}

func TestImportPartial(t *testing.T) {
	dst := populated(t)
	settings, _ := dst.Get(storage.KeySettings)
	data := build(t, map[string]string{
		"manifest.json":     `{"version":1,"dataKeys":["conclave_folders","conclave_rooms"]}`,
		"data/folders.json": `[]`,
		"data/rooms.json":   `[]`,
	})
	res, err := Import(context.Background(), bytes.NewReader(data), int64(len(data)), dst, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Restored != 2 || res.Total != 6 {
		t.Errorf("Import() restored %d of %d, want 2 of 6", res.Restored, res.Total)
	}
	if len(res.Keys) != 2 || res.Keys[0] != storage.KeyFolders || res.Keys[1] != storage.KeyRooms {
		t.Errorf("Keys = %v", res.Keys)
	}
	s := storage.New(dst)
	if len(s.ListFolders()) != 0 {
		t.Error("folders were merged instead of replaced")
	}
	if len(s.ListAgents("f")) != 1 {
		t.Error("agents absent from the archive were touched")
	}
	if got, _ := dst.Get(storage.KeySettings); !bytes.Equal(got, settings) {
		t.Error("settings changed")
	}
}

func TestAssetsRoundTrip(t *testing.T) {
	ctx := context.Background()
	open := func() *assets.Store {
		a, err := assets.Open(ctx, filepath.Join(t.TempDir(), "assets.db"))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = a.Close() })
		return a
	}
	src := open()
	if _, err := src.Save(ctx, "f", &assets.Upload{Name: "a.txt", Type: "text/plain", Data: []byte("alpha")}, "file1"); err != nil {
		t.Fatal(err)
	}
	data := export(t, populated(t), &Options{Assets: src})

	dst := open()
	res, err := Import(ctx, bytes.NewReader(data), int64(len(data)), jsondb.NewMemMedium(), dst)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Manifest.IncludesAssets || res.Files != 1 {
		t.Errorf("Import() = %+v", res)
	}
	b, err := dst.GetBlob(ctx, "file1")
	if err != nil || string(b.Data) != "alpha" {
		t.Errorf("GetBlob() = %+v, %v", b, err)
	}
}

func TestFileName(t *testing.T) {
	if got, want := FileName(exportTime), "conclave-backup-2026-10-16T12345678.zip"; got != want {
		t.Errorf("FileName() = %q, want %q", got, want)
	}
}

func TestSchema(t *testing.T) {
	raw, err := Schema()
	if err != nil {
		t.Fatal(err)
	}
	var s map[string]any
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatal(err)
	}
	props, _ := s["properties"].(map[string]any)
	for _, name := range []string{"manifest.json", "data/folders.json", "data/settings.json"} {
		if _, ok := props[name]; !ok {
			t.Errorf("schema lacks %s", name)
		}
	}
}
