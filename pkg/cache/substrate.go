package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/chicogong/vidioai/pkg/storage"
)

// Substrate is a persistent string-keyed store for JSON values
type Substrate interface {
	// Get returns the value for key; ok is false if the key was never set
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set replaces the value for key
	Set(ctx context.Context, key string, value []byte) error
}

// MemorySubstrate keeps values in process memory
type MemorySubstrate struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMemorySubstrate creates an empty in-memory substrate
func NewMemorySubstrate() *MemorySubstrate {
	return &MemorySubstrate{values: make(map[string][]byte)}
}

// Get implements Substrate
func (m *MemorySubstrate) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set implements Substrate
func (m *MemorySubstrate) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = append([]byte(nil), value...)
	return nil
}

// StorageSubstrate stores each key as <root>/<key>.json in a storage backend
type StorageSubstrate struct {
	store storage.Storage
	root  string
}

// NewStorageSubstrate creates a substrate rooted at a storage URI (file:// or s3://)
func NewStorageSubstrate(store storage.Storage, root string) *StorageSubstrate {
	return &StorageSubstrate{store: store, root: root}
}

// NewFileSubstrate creates a substrate in a local directory
func NewFileSubstrate(dir string) *StorageSubstrate {
	return NewStorageSubstrate(storage.NewLocalStorage(), storage.FileURI(dir))
}

func (s *StorageSubstrate) uri(key string) string {
	return storage.JoinURI(s.root, key+".json")
}

// Get implements Substrate
func (s *StorageSubstrate) Get(ctx context.Context, key string) ([]byte, bool, error) {
	rc, err := s.store.Get(ctx, s.uri(key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, true, nil
}

// Set implements Substrate
func (s *StorageSubstrate) Set(ctx context.Context, key string, value []byte) error {
	return s.store.Put(ctx, s.uri(key), bytes.NewReader(value))
}
