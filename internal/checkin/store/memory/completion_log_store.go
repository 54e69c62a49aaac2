package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
)

// CompletionLogStore is an in-memory append-only log of completions.
// It is intended for use in tests and dev environments.
type CompletionLogStore struct {
	mu      sync.Mutex
	entries []store.CompletionLogEntry
}

func NewCompletionLogStore() *CompletionLogStore {
	return &CompletionLogStore{}
}

func (s *CompletionLogStore) Append(ctx context.Context, e store.CompletionLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflictLocked(e) {
		return fmt.Errorf("append entry %s: %w", e.EntryID, store.ErrConstraint)
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *CompletionLogStore) AppendIfAbsent(ctx context.Context, e store.CompletionLogEntry) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasLocked(e.EventID, e.ItemID, e.ParticipantID) {
		return false, nil
	}
	if s.conflictLocked(e) {
		return false, fmt.Errorf("append entry %s: %w", e.EntryID, store.ErrConstraint)
	}
	s.entries = append(s.entries, e)
	return true, nil
}

// conflictLocked reports whether e repeats an entry id or triple. Caller
// must hold s.mu.
func (s *CompletionLogStore) conflictLocked(e store.CompletionLogEntry) bool {
	for _, x := range s.entries {
		if e.EntryID != "" && x.EntryID == e.EntryID {
			return true
		}
	}
	return s.hasLocked(e.EventID, e.ItemID, e.ParticipantID)
}

func (s *CompletionLogStore) ListForParticipant(_ context.Context, participantID int64) ([]store.CompletionLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.CompletionLogEntry
	for _, e := range s.entries {
		if e.ParticipantID == participantID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entries returns a copy of all recorded entries.  Test-only helper.
func (s *CompletionLogStore) Entries() []store.CompletionLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.CompletionLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *CompletionLogStore) has(eventID, itemID, participantID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasLocked(eventID, itemID, participantID)
}

func (s *CompletionLogStore) hasLocked(eventID, itemID, participantID int64) bool {
	for _, e := range s.entries {
		if e.EventID == eventID && e.ItemID == itemID && e.ParticipantID == participantID {
			return true
		}
	}
	return false
}

// GapFinder joins the two in-memory stores to find completed allocations
// with no log entry.
type GapFinder struct {
	allocations *AllocationStore
	logs        *CompletionLogStore
}

func NewGapFinder(a *AllocationStore, l *CompletionLogStore) *GapFinder {
	return &GapFinder{allocations: a, logs: l}
}

func (g *GapFinder) FindUnlogged(_ context.Context, completedBefore time.Time, limit int) ([]store.Allocation, error) {
	var out []store.Allocation
	for _, a := range g.allocations.completed() {
		if a.CompletedAt.After(completedBefore) {
			continue
		}
		if g.logs.has(a.EventID, a.ItemID, a.ParticipantID) {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
