// Package meta provides a small pebble-backed key-value store for index
// maintenance metadata: the rebuild checkpoint, the index job record, and
// the needs-rebuild flag.
package meta

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Store wraps a pebble.DB with get/put/delete by string key.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the metadata store at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("meta: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying pebble database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key, or ok=false when the key is absent.
func (s *Store) Get(key string) ([]byte, bool, error) {
	val, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("meta: get %s: %w", key, err)
	}
	out := make([]byte, len(val))
	copy(out, val)
	if err := closer.Close(); err != nil {
		return nil, false, fmt.Errorf("meta: get %s: %w", key, err)
	}
	return out, true, nil
}

// Put stores value under key, synced to disk before returning.
func (s *Store) Put(key string, value []byte) error {
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("meta: put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("meta: delete %s: %w", key, err)
	}
	return nil
}

// GetJSON unmarshals the value for key into target; ok=false when absent.
func (s *Store) GetJSON(key string, target any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return false, fmt.Errorf("meta: decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON stores value under key as JSON.
func (s *Store) PutJSON(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("meta: encode %s: %w", key, err)
	}
	return s.Put(key, raw)
}
