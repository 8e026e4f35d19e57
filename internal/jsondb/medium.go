package jsondb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// ErrNotFound is returned by [Medium.Get] when the key holds no value.
var ErrNotFound = errors.New("key not found")

// Medium is a synchronous key-value persistence medium.
type Medium interface {
	// Get returns the raw bytes stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)
	// Set replaces the value stored under key.
	Set(key string, data []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// DirMedium stores each key as <dir>/<key>.json.
//
// Writes go to a temporary file in the same directory which is then renamed
// over the target, so readers never observe a partially written value.
type DirMedium struct {
	dir string
}

// NewDirMedium creates the directory if needed and returns a medium backed by it.
func NewDirMedium(dir string) (*DirMedium, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create medium directory %s: %w", dir, err)
	}
	return &DirMedium{dir: dir}, nil
}

// Dir returns the backing directory.
func (m *DirMedium) Dir() string {
	return m.dir
}

// Get implements [Medium].
func (m *DirMedium) Get(key string) ([]byte, error) {
	p, err := m.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Set implements [Medium].
func (m *DirMedium) Set(key string, data []byte) error {
	p, err := m.path(key)
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(m.dir, "*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Join(fmt.Errorf("failed to write %s: %w", key, err), os.Remove(tmp))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(tmp))
	}
	if err := os.Rename(tmp, p); err != nil {
		return errors.Join(fmt.Errorf("failed to rename %s into place: %w", key, err), os.Remove(tmp))
	}
	return nil
}

// Delete implements [Medium].
func (m *DirMedium) Delete(key string) error {
	p, err := m.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (m *DirMedium) path(key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(m.dir, key+".json"), nil
}

// validKey restricts keys to a filesystem-safe alphabet.
func validKey(key string) bool {
	if key == "" || len(key) > 128 {
		return false
	}
	for i := range len(key) {
		c := key[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' && c != '-' {
			return false
		}
	}
	return true
}

// MemMedium is an in-memory [Medium].
type MemMedium struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemMedium returns an empty in-memory medium.
func NewMemMedium() *MemMedium {
	return &MemMedium{values: make(map[string][]byte)}
}

// Get implements [Medium].
func (m *MemMedium) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

// Set implements [Medium].
func (m *MemMedium) Set(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = slices.Clone(data)
	return nil
}

// Delete implements [Medium].
func (m *MemMedium) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
