package offline

import (
	"context"
	"sync"

	"roombook/pkg/model"
)

// memoryStore keeps queue entries in process memory. It is the default for
// tests and for clients without a local database; entries do not survive a
// restart.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]*model.QueuedRequest
	order   []string
}

func NewMemoryStore() Store {
	return &memoryStore{
		entries: make(map[string]*model.QueuedRequest),
	}
}

func (s *memoryStore) Insert(_ context.Context, entry *model.QueuedRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.QueueID]; !exists {
		s.order = append(s.order, entry.QueueID)
	}
	cp := *entry
	s.entries[entry.QueueID] = &cp
	return nil
}

func (s *memoryStore) Update(_ context.Context, entry *model.QueuedRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.QueueID]; !exists {
		return ErrEntryNotFound
	}
	cp := *entry
	s.entries[entry.QueueID] = &cp
	return nil
}

func (s *memoryStore) Delete(_ context.Context, queueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[queueID]; !exists {
		return nil
	}
	delete(s.entries, queueID)
	for i, id := range s.order {
		if id == queueID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memoryStore) Get(_ context.Context, queueID string) (*model.QueuedRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[queueID]
	if !exists {
		return nil, ErrEntryNotFound
	}
	cp := *entry
	return &cp, nil
}

func (s *memoryStore) List(_ context.Context) ([]*model.QueuedRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.QueuedRequest, 0, len(s.order))
	for _, id := range s.order {
		cp := *s.entries[id]
		out = append(out, &cp)
	}
	return out, nil
}
