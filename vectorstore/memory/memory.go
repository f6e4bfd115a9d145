// Package memory is a process-local vector store using brute-force cosine
// similarity. Nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"github.com/itish2003/docrag/models"
	"github.com/itish2003/docrag/vectorstore"
)

// Storage keeps entries in memory.
type Storage struct {
	mu   sync.RWMutex
	snap *vectorstore.Snapshot
}

var _ vectorstore.Storage = (*Storage)(nil)

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Backend() string  { return "memory" }
func (s *Storage) Location() string { return "memory" }

func (s *Storage) Open(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return models.ErrIndexNotFound
	}
	return nil
}

func (s *Storage) Create(_ context.Context, entries []vectorstore.Entry) error {
	snap := vectorstore.NewSnapshot(append([]vectorstore.Entry(nil), entries...))
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return nil
}

func (s *Storage) Append(_ context.Context, entries []vectorstore.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return models.ErrIndexNotFound
	}
	s.snap = s.snap.With(entries)
	return nil
}

func (s *Storage) Snapshot() vectorstore.Searcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Storage) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Len(), nil
}

func (s *Storage) Close() error { return nil }
