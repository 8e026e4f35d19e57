// Package assets stores workspace files in an embedded SQLite database: one
// table of metadata and one of raw bytes, always written together.
package assets

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/maruel/conclave/internal/models"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no file has the requested id.
var ErrNotFound = errors.New("file not found")

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id         TEXT PRIMARY KEY,
	folder_id  TEXT NOT NULL,
	name       TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT '',
	size       INTEGER NOT NULL DEFAULT 0,
	content    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_folder ON files(folder_id);
CREATE TABLE IF NOT EXISTS blobs (
	id   TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	name TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT ''
);
`

// Upload is a file handed to [Store.Save].
type Upload struct {
	Name string
	Type string
	Data []byte
}

// Store is the binary asset store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. Use ":memory:" for an
// ephemeral store.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		dsn = path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a distinct database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping asset database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create asset schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores the upload's metadata and bytes under id in one transaction.
func (s *Store) Save(ctx context.Context, folderID string, up *Upload, id string) (*models.WorkspaceFile, error) {
	f := &models.WorkspaceFile{
		ID:        id,
		FolderID:  folderID,
		Name:      up.Name,
		Type:      up.Type,
		Size:      int64(len(up.Data)),
		Content:   ExtractText(up.Name, up.Type, bytes.NewReader(up.Data)),
		CreatedAt: time.Now().UTC(),
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid file: %w", err)
	}
	blob := &models.BlobRecord{ID: id, Data: up.Data, Name: up.Name, Type: up.Type}
	err := s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO files (id, folder_id, name, type, size, content, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.FolderID, f.Name, f.Type, f.Size, f.Content, f.CreatedAt.UnixNano()); err != nil {
			return fmt.Errorf("failed to insert file: %w", err)
		}
		return insertBlob(ctx, tx, blob, false)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Restore upserts a metadata/blob pair as-is, keeping its id and timestamp.
func (s *Store) Restore(ctx context.Context, f *models.WorkspaceFile, blob *models.BlobRecord) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid file: %w", err)
	}
	if blob.ID != f.ID {
		return fmt.Errorf("blob %s does not match file %s", blob.ID, f.ID)
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO files (id, folder_id, name, type, size, content, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.FolderID, f.Name, f.Type, f.Size, f.Content, f.CreatedAt.UnixNano()); err != nil {
			return fmt.Errorf("failed to restore file: %w", err)
		}
		return insertBlob(ctx, tx, blob, true)
	})
}

// Ingest saves the file at path into folderID under a fresh id.
func (s *Store) Ingest(ctx context.Context, folderID, path string) (*models.WorkspaceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s.Save(ctx, folderID, &Upload{Name: filepath.Base(path), Type: DetectType(path, data), Data: data}, models.NewID())
}

// DetectType returns the MIME type of a file, from its extension when known
// and by sniffing its content otherwise. Parameters are stripped.
func DetectType(name string, data []byte) string {
	t := mime.TypeByExtension(filepath.Ext(name))
	if t == "" {
		t = mimetype.Detect(data).String()
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return t
}

// GetBlob returns the raw bytes of a file.
func (s *Store) GetBlob(ctx context.Context, id string) (*models.BlobRecord, error) {
	b := &models.BlobRecord{}
	err := s.db.QueryRowContext(ctx, `SELECT id, data, name, type FROM blobs WHERE id = ?`, id).Scan(&b.ID, &b.Data, &b.Name, &b.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("blob %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return b, nil
}

// Get returns the metadata of a file.
func (s *Store) Get(ctx context.Context, id string) (*models.WorkspaceFile, error) {
	files, err := s.query(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("file %s: %w", id, ErrNotFound)
	}
	return files[0], nil
}

// ListByFolder returns the files of a folder, newest first.
func (s *Store) ListByFolder(ctx context.Context, folderID string) ([]*models.WorkspaceFile, error) {
	return s.query(ctx, `WHERE folder_id = ? ORDER BY created_at DESC, rowid DESC`, folderID)
}

// ListAll returns every file, oldest first.
func (s *Store) ListAll(ctx context.Context) ([]*models.WorkspaceFile, error) {
	return s.query(ctx, `ORDER BY created_at ASC, rowid ASC`)
}

// DeleteByID removes a file and its bytes. Deleting a missing file is not an
// error.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete blob: %w", err)
		}
		return nil
	})
}

// DeleteByFolder removes every file of a folder and returns how many were
// removed.
func (s *Store) DeleteByFolder(ctx context.Context, folderID string) (int, error) {
	n := 0
	err := s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM blobs WHERE id IN (SELECT id FROM files WHERE folder_id = ?)`, folderID); err != nil {
			return fmt.Errorf("failed to delete blobs: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE folder_id = ?`, folderID)
		if err != nil {
			return fmt.Errorf("failed to delete files: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		n = int(affected)
		return nil
	})
	return n, err
}

func (s *Store) query(ctx context.Context, where string, args ...any) ([]*models.WorkspaceFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, folder_id, name, type, size, content, created_at FROM files `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()
	out := []*models.WorkspaceFile{}
	for rows.Next() {
		f := &models.WorkspaceFile{}
		var created int64
		if err := rows.Scan(&f.ID, &f.FolderID, &f.Name, &f.Type, &f.Size, &f.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		f.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}
	return out, nil
}

// tx runs fn in a transaction, rolling back when it fails.
func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func insertBlob(ctx context.Context, tx *sql.Tx, b *models.BlobRecord, replace bool) error {
	verb := "INSERT"
	if replace {
		verb = "INSERT OR REPLACE"
	}
	data := b.Data
	if data == nil {
		data = []byte{}
	}
	if _, err := tx.ExecContext(ctx, verb+` INTO blobs (id, data, name, type) VALUES (?, ?, ?, ?)`, b.ID, data, b.Name, b.Type); err != nil {
		return fmt.Errorf("failed to insert blob: %w", err)
	}
	return nil
}
