package jsondb

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// DecodeError reports a payload that is present but not a valid collection.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// TableObserver is notified after rows are appended to a [Table].
type TableObserver[T any] interface {
	OnAppend(row T)
}

// Table stores a collection of rows as one JSON array under a single key.
type Table[T any] struct {
	medium Medium
	key    string

	mu        sync.Mutex
	observers []TableObserver[T]
}

// NewTable returns a table bound to key in m. Nothing is read until first use.
func NewTable[T any](m Medium, key string) *Table[T] {
	return &Table[T]{medium: m, key: key}
}

// Key returns the medium key holding the collection.
func (t *Table[T]) Key() string {
	return t.key
}

// AddObserver registers o to be notified of appends.
func (t *Table[T]) AddObserver(o TableObserver[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

// Load returns all rows. A missing key is an empty collection; a malformed
// payload is a *DecodeError.
func (t *Table[T]) Load() ([]T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load()
}

// All returns all rows, treating any read or decode failure as empty.
func (t *Table[T]) All() []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadOrEmpty()
}

// Find returns the first row matching pred.
func (t *Table[T]) Find(pred func(T) bool) (T, bool) {
	for _, row := range t.All() {
		if pred(row) {
			return row, true
		}
	}
	var zero T
	return zero, false
}

// Filter returns the rows matching pred, in stored order.
func (t *Table[T]) Filter(pred func(T) bool) []T {
	var out []T
	for _, row := range t.All() {
		if pred(row) {
			out = append(out, row)
		}
	}
	if out == nil {
		out = []T{}
	}
	return out
}

// Append adds row at the end of the collection and persists it.
func (t *Table[T]) Append(row T) error {
	t.mu.Lock()
	rows := append(t.loadOrEmpty(), row)
	err := t.save(rows)
	observers := slices.Clone(t.observers)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	for _, o := range observers {
		o.OnAppend(row)
	}
	return nil
}

// Save replaces the whole collection.
func (t *Table[T]) Save(rows []T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.save(rows)
}

// Modify runs a read-modify-write cycle while holding the table lock.
//
// fn receives the current rows (empty if unreadable) and returns the rows to
// persist. If fn returns an error nothing is written.
func (t *Table[T]) Modify(fn func(rows []T) ([]T, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows, err := fn(t.loadOrEmpty())
	if err != nil {
		return err
	}
	return t.save(rows)
}

// DeleteFunc removes every row matching pred and returns how many were removed.
// The collection is only rewritten when at least one row matched.
func (t *Table[T]) DeleteFunc(pred func(T) bool) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := t.loadOrEmpty()
	before := len(rows)
	rows = slices.DeleteFunc(rows, pred)
	n := before - len(rows)
	if n == 0 {
		return 0, nil
	}
	if err := t.save(rows); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *Table[T]) load() ([]T, error) {
	data, err := t.medium.Get(t.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []T{}, nil
		}
		return nil, err
	}
	var rows []T
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, &DecodeError{Key: t.key, Err: err}
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

func (t *Table[T]) loadOrEmpty() []T {
	rows, err := t.load()
	if err != nil {
		slog.Warn("Treating unreadable collection as empty", "key", t.key, "err", err)
		return []T{}
	}
	return rows
}

func (t *Table[T]) save(rows []T) error {
	if rows == nil {
		rows = []T{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", t.key, err)
	}
	if err := t.medium.Set(t.key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", t.key, err)
	}
	return nil
}

// Value stores a single JSON object under a key.
type Value[T any] struct {
	medium Medium
	key    string
	mu     sync.Mutex
}

// NewValue returns a value bound to key in m.
func NewValue[T any](m Medium, key string) *Value[T] {
	return &Value[T]{medium: m, key: key}
}

// Key returns the medium key holding the value.
func (v *Value[T]) Key() string {
	return v.key
}

// Load decodes the stored value. It returns ErrNotFound when unset and a
// *DecodeError when the payload is malformed.
func (v *Value[T]) Load() (T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out T
	data, err := v.medium.Get(v.key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		var zero T
		return zero, &DecodeError{Key: v.key, Err: err}
	}
	return out, nil
}

// Save overwrites the stored value.
func (v *Value[T]) Save(val T) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", v.key, err)
	}
	if err := v.medium.Set(v.key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", v.key, err)
	}
	return nil
}
