package kv

import (
	"context"
	"maps"
	"sync"

	"github.com/dmitrijs2005/timegrid/internal/common"
)

// MemoryStore is a non-durable Store used in tests and as the degraded
// fallback when the SQLite database cannot be opened: the client keeps
// working, it just loses state on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string][]byte, len(s.data))
	maps.Copy(result, s.data)
	return result, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
	return nil
}

// Update runs fn against a staged copy of the map and swaps it in only when
// fn succeeds. The store lock is held for the duration, so the transaction
// is isolated from concurrent readers and writers; fn must not call back
// into the outer store.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := NewMemoryStore()
	maps.Copy(staged.data, s.data)

	if err := fn(staged); err != nil {
		return err
	}
	s.data = staged.data
	return nil
}
