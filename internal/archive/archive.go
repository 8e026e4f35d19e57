// Package archive exports the record store to a zip file and restores it.
//
// An archive holds manifest.json at its root, the verbatim bytes of every
// stored collection under data/, and optionally the asset store under
// assets/. Import replaces each key present in the archive in full and
// leaves the others alone. It is not atomic across keys: a failure midway
// leaves the keys written so far in place.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/maruel/conclave/internal/jsondb"
	"github.com/maruel/conclave/internal/models"
	"github.com/maruel/conclave/internal/storage"
)

// Version is the only manifest version this package reads and writes.
const Version = 1

const (
	manifestName   = "manifest.json"
	dataDir        = "data/"
	assetIndexName = "assets/index.json"
	blobDir        = "assets/blobs/"
	keyPrefix      = "conclave_"
)

var (
	// ErrMissingManifest is returned when the archive has no manifest.json.
	ErrMissingManifest = errors.New("invalid backup: manifest.json not found")
	// ErrUnsupportedVersion is returned for a manifest version other than Version.
	ErrUnsupportedVersion = errors.New("unsupported backup version")
	// ErrEntryTooLarge is returned for an entry that decompresses past the
	// per-entry limit.
	ErrEntryTooLarge = errors.New("invalid backup: entry too large")
)

// maxEntryBytes bounds the decompressed size of any single archive entry.
var maxEntryBytes int64 = 256 << 20

// Manifest describes an archive.
type Manifest struct {
	Version        int       `json:"version" jsonschema:"description=Archive format version,enum=1"`
	ExportedAt     time.Time `json:"exportedAt" jsonschema:"description=Export timestamp"`
	AppVersion     string    `json:"appVersion" jsonschema:"description=Version of the exporting application"`
	DataKeys       []string  `json:"dataKeys" jsonschema:"description=Namespaced keys covered by the archive"`
	IncludesAssets bool      `json:"includesAssets,omitempty" jsonschema:"description=Whether assets/ holds the file store"`
}

// AssetStore is the subset of the asset store used by archives.
type AssetStore interface {
	ListAll(ctx context.Context) ([]*models.WorkspaceFile, error)
	GetBlob(ctx context.Context, id string) (*models.BlobRecord, error)
	Restore(ctx context.Context, f *models.WorkspaceFile, blob *models.BlobRecord) error
}

// Options configures Export.
type Options struct {
	AppVersion string
	// Assets, when set, adds the asset store to the archive.
	Assets AssetStore
	// Now defaults to time.Now.
	Now func() time.Time
}

// Result summarizes an import.
type Result struct {
	Manifest *Manifest `json:"manifest"`
	// Restored is the number of keys overwritten.
	Restored int `json:"restored"`
	// Total is the number of keys an archive can carry.
	Total int `json:"total"`
	// Keys lists the keys overwritten, in archive order.
	Keys []string `json:"keys"`
	// Files is the number of assets restored.
	Files int `json:"files,omitempty"`
}

// FileName returns the download name of an archive exported at now.
func FileName(now time.Time) string {
	ts := now.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "", ".", "").Replace(ts)
	return "conclave-backup-" + ts[:19] + ".zip"
}

// dataPath returns the archive path of a namespaced key.
func dataPath(key string) string {
	return dataDir + strings.TrimPrefix(key, keyPrefix) + ".json"
}

// Export writes an archive of every key in m to w. Keys absent from m are
// skipped; their bytes are otherwise copied verbatim.
func Export(ctx context.Context, w io.Writer, m jsondb.Medium, opts *Options) (*Manifest, error) {
	if opts == nil {
		opts = &Options{}
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	ts := now().UTC()
	manifest := &Manifest{
		Version:        Version,
		ExportedAt:     ts,
		AppVersion:     opts.AppVersion,
		DataKeys:       storage.Keys(),
		IncludesAssets: opts.Assets != nil,
	}
	zw := zip.NewWriter(w)
	add := func(name string, data []byte) error {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: ts})
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		return nil
	}
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := add(manifestName, raw); err != nil {
		return nil, err
	}
	for _, key := range manifest.DataKeys {
		data, err := m.Get(key)
		if errors.Is(err, jsondb.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if err := add(dataPath(key), data); err != nil {
			return nil, err
		}
	}
	if opts.Assets != nil {
		if err := exportAssets(ctx, opts.Assets, add); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	slog.InfoContext(ctx, "Exported archive", "keys", len(manifest.DataKeys), "assets", manifest.IncludesAssets)
	return manifest, nil
}

func exportAssets(ctx context.Context, a AssetStore, add func(string, []byte) error) error {
	files, err := a.ListAll(ctx)
	if err != nil {
		return err
	}
	index, err := json.Marshal(files)
	if err != nil {
		return err
	}
	if err := add(assetIndexName, index); err != nil {
		return err
	}
	for _, f := range files {
		b, err := a.GetBlob(ctx, f.ID)
		if err != nil {
			return fmt.Errorf("failed to read blob %s: %w", f.ID, err)
		}
		if err := add(blobDir+f.ID, b.Data); err != nil {
			return err
		}
	}
	return nil
}

// Import restores the archive in r into m, and into assets when both the
// archive and assets carry files.
//
// The manifest and every payload are checked before anything is written.
func Import(ctx context.Context, r io.ReaderAt, size int64, m jsondb.Medium, assets AssetStore) (*Result, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[path.Clean(f.Name)] = f
	}

	mf := entries[manifestName]
	if mf == nil {
		return nil, ErrMissingManifest
	}
	raw, err := readEntry(mf)
	if err != nil {
		return nil, err
	}
	manifest := &Manifest{}
	if err := json.Unmarshal(raw, manifest); err != nil {
		return nil, fmt.Errorf("invalid backup: malformed manifest: %w", err)
	}
	if manifest.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, manifest.Version)
	}

	keys := storage.Keys()
	payloads := make(map[string][]byte, len(keys))
	for _, key := range keys {
		f := entries[dataPath(key)]
		if f == nil {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("invalid backup: %s is not valid JSON", f.Name)
		}
		payloads[key] = data
	}
	var files []*models.WorkspaceFile
	if idx := entries[assetIndexName]; idx != nil && assets != nil {
		data, err := readEntry(idx)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &files); err != nil {
			return nil, fmt.Errorf("invalid backup: malformed %s: %w", assetIndexName, err)
		}
		for _, f := range files {
			b := entries[blobDir+f.ID]
			if b == nil {
				return nil, fmt.Errorf("invalid backup: missing blob for file %s", f.ID)
			}
			if err := checkSize(b); err != nil {
				return nil, err
			}
		}
	}

	res := &Result{Manifest: manifest, Total: len(keys), Keys: []string{}}
	for _, key := range keys {
		data, ok := payloads[key]
		if !ok {
			continue
		}
		if err := m.Set(key, data); err != nil {
			return res, fmt.Errorf("failed to restore %s after %d keys: %w", key, res.Restored, err)
		}
		res.Restored++
		res.Keys = append(res.Keys, key)
	}
	for _, f := range files {
		data, err := readEntry(entries[blobDir+f.ID])
		if err != nil {
			return res, err
		}
		blob := &models.BlobRecord{ID: f.ID, Data: data, Name: f.Name, Type: f.Type}
		if err := assets.Restore(ctx, f, blob); err != nil {
			return res, fmt.Errorf("failed to restore file %s: %w", f.ID, err)
		}
		res.Files++
	}
	slog.InfoContext(ctx, "Imported archive", "restored", res.Restored, "total", res.Total, "files", res.Files)
	return res, nil
}

func checkSize(f *zip.File) error {
	if f.UncompressedSize64 > uint64(maxEntryBytes) { //nolint:gosec // G115: maxEntryBytes is positive
		return fmt.Errorf("%w: %s is %d bytes", ErrEntryTooLarge, f.Name, f.UncompressedSize64)
	}
	return nil
}

func readEntry(f *zip.File) ([]byte, error) {
	if err := checkSize(f); err != nil {
		return nil, err
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	if n > maxEntryBytes {
		return nil, fmt.Errorf("%w: %s", ErrEntryTooLarge, f.Name)
	}
	return buf.Bytes(), nil
}
