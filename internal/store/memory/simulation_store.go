// Package memory provides an in-process SimulationStore for runs without
// PostgreSQL.
package memory

import (
	"context"
	"sync"

	"github.com/gammazero/deque"

	"github.com/alanyoungcy/venuebook/internal/domain"
)

// DefaultCapacity is the number of results kept when no capacity is given.
const DefaultCapacity = 50

// SimulationStore keeps the most recent results, newest at the front.
// Appending beyond capacity evicts the oldest.
type SimulationStore struct {
	mu       sync.RWMutex
	capacity int
	items    deque.Deque[domain.SimulationResult]
}

// NewSimulationStore creates a store holding at most capacity results.
func NewSimulationStore(capacity int) *SimulationStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &SimulationStore{capacity: capacity}
}

func (s *SimulationStore) Append(_ context.Context, res domain.SimulationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.PushFront(res)
	for s.items.Len() > s.capacity {
		s.items.PopBack()
	}
	return nil
}

// ListRecent returns up to limit results, newest first. A non-positive
// limit returns everything held.
func (s *SimulationStore) ListRecent(_ context.Context, limit int) ([]domain.SimulationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.items.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.SimulationResult, n)
	for i := range n {
		out[i] = s.items.At(i)
	}
	return out, nil
}

func (s *SimulationStore) GetByID(_ context.Context, id string) (domain.SimulationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.items.Len() {
		if r := s.items.At(i); r.ID == id {
			return r, nil
		}
	}
	return domain.SimulationResult{}, domain.ErrNotFound
}

var _ domain.SimulationStore = (*SimulationStore)(nil)
