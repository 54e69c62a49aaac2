package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
)

// ParticipantStore is an in-memory participant registry for tests and dev.
type ParticipantStore struct {
	mu      sync.RWMutex
	byID    map[int64]store.Participant
	byPhone map[string]int64
	byToken map[string]int64
}

func NewParticipantStore() *ParticipantStore {
	return &ParticipantStore{
		byID:    make(map[int64]store.Participant),
		byPhone: make(map[string]int64),
		byToken: make(map[string]int64),
	}
}

// Add registers a participant. Phone and scan token must be unique.
func (s *ParticipantStore) Add(p store.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[p.ID]; ok {
		return fmt.Errorf("participant %d: %w", p.ID, store.ErrConstraint)
	}
	if _, ok := s.byPhone[p.Phone]; ok {
		return fmt.Errorf("participant %d phone: %w", p.ID, store.ErrConstraint)
	}
	if _, ok := s.byToken[p.ScanToken]; ok {
		return fmt.Errorf("participant %d scan token: %w", p.ID, store.ErrConstraint)
	}
	s.byID[p.ID] = p
	s.byPhone[p.Phone] = p.ID
	s.byToken[p.ScanToken] = p.ID
	return nil
}

func (s *ParticipantStore) GetByID(_ context.Context, id int64) (store.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return store.Participant{}, store.ErrNotFound
	}
	return p, nil
}

func (s *ParticipantStore) GetByPhone(_ context.Context, phone string) (store.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPhone[phone]
	if !ok {
		return store.Participant{}, store.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *ParticipantStore) GetByScanToken(_ context.Context, token string) (store.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	if !ok {
		return store.Participant{}, store.ErrNotFound
	}
	return s.byID[id], nil
}
