package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
)

type allocKey struct {
	eventID, itemID, participantID int64
}

type item struct {
	eventID int64
	code    string
	name    string
}

// AllocationStore keeps allocations in a map guarded by one mutex. The
// mutex is held across the pending check and the write in MarkComplete,
// which is what makes completion at-most-once here.
type AllocationStore struct {
	mu           sync.RWMutex
	participants *ParticipantStore
	items        map[int64]item
	rows         map[allocKey]*store.Allocation
}

func NewAllocationStore(participants *ParticipantStore) *AllocationStore {
	return &AllocationStore{
		participants: participants,
		items:        make(map[int64]item),
		rows:         make(map[allocKey]*store.Allocation),
	}
}

// AddItem registers an allocatable item for an event.
func (s *AllocationStore) AddItem(eventID, itemID int64, code, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[itemID] = item{eventID: eventID, code: code, name: name}
}

// Provision creates a pending allocation. It stands in for the external
// provisioning flow.
func (s *AllocationStore) Provision(eventID, itemID, participantID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[itemID]; !ok {
		return fmt.Errorf("item %d: %w", itemID, store.ErrConstraint)
	}
	k := allocKey{eventID, itemID, participantID}
	if _, ok := s.rows[k]; ok {
		return fmt.Errorf("allocation %d/%d/%d: %w", eventID, itemID, participantID, store.ErrConstraint)
	}
	s.rows[k] = &store.Allocation{
		EventID:       eventID,
		ItemID:        itemID,
		ParticipantID: participantID,
		Status:        store.StatusPending,
		CreatedAt:     at.UTC(),
		UpdatedAt:     at.UTC(),
	}
	return nil
}

// SetUpdatedAt overrides timestamps so ordering tests are deterministic.
// Test-only helper.
func (s *AllocationStore) SetUpdatedAt(eventID, itemID, participantID int64, created, updated time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.rows[allocKey{eventID, itemID, participantID}]; ok {
		a.CreatedAt = created.UTC()
		a.UpdatedAt = updated.UTC()
	}
}

func (s *AllocationStore) MarkComplete(ctx context.Context, rec store.CompletionRecord, at time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	at = at.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.rows[allocKey{rec.EventID, rec.ItemID, rec.ParticipantID}]
	if !ok || a.Status != store.StatusPending {
		return 0, nil
	}
	a.Status = store.StatusCompleted
	a.CompletedAt = &at
	a.UpdatedAt = at
	a.StaffID = copyInt64(rec.StaffID)
	a.DeviceInfo = copyString(rec.DeviceInfo)
	return 1, nil
}

func (s *AllocationStore) ListForParticipant(_ context.Context, eventID, participantID int64) ([]store.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Allocation
	for k, a := range s.rows {
		if k.eventID == eventID && k.participantID == participantID {
			out = append(out, s.decorate(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (s *AllocationStore) ListNotCompleted(ctx context.Context, f store.NotCompletedFilter, p store.Page) ([]store.NotCompletedRow, int, error) {
	s.mu.RLock()
	var matched []store.Allocation
	for k, a := range s.rows {
		if k.itemID != f.ItemID || a.Status != store.StatusPending {
			continue
		}
		if f.EventID != 0 && k.eventID != f.EventID {
			continue
		}
		matched = append(matched, s.decorate(a))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].ParticipantID != matched[j].ParticipantID {
			return matched[i].ParticipantID < matched[j].ParticipantID
		}
		return matched[i].EventID < matched[j].EventID
	})

	start, end := p.Window(len(matched))
	out := make([]store.NotCompletedRow, 0, end-start)
	for _, a := range matched[start:end] {
		part, err := s.participants.GetByID(ctx, a.ParticipantID)
		if err != nil {
			return nil, 0, fmt.Errorf("participant %d: %w", a.ParticipantID, err)
		}
		out = append(out, store.NotCompletedRow{Participant: part, Allocation: a})
	}
	return out, len(matched), nil
}

func (s *AllocationStore) Summary(_ context.Context, participantID, eventID int64) (store.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum store.Summary
	events := make(map[int64]struct{})
	for k, a := range s.rows {
		if k.participantID != participantID {
			continue
		}
		events[k.eventID] = struct{}{}
		if eventID != 0 && k.eventID != eventID {
			continue
		}
		switch a.Status {
		case store.StatusPending:
			sum.Pending++
		case store.StatusCompleted:
			sum.Completed++
		}
	}
	for id := range events {
		sum.EventIDs = append(sum.EventIDs, id)
	}
	sort.Slice(sum.EventIDs, func(i, j int) bool { return sum.EventIDs[i] > sum.EventIDs[j] })
	return sum, nil
}

func (s *AllocationStore) ListHistory(_ context.Context, participantID int64, f store.HistoryFilter, p store.Page) ([]store.Allocation, error) {
	s.mu.RLock()
	var matched []store.Allocation
	for k, a := range s.rows {
		if k.participantID != participantID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.EventID != 0 && k.eventID != f.EventID {
			continue
		}
		matched = append(matched, s.decorate(a))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return historyLess(matched[i], matched[j]) })

	start, end := p.Window(len(matched))
	return matched[start:end], nil
}

// historyLess orders by updated_at desc, created_at desc, then the triple
// so equal timestamps page deterministically.
func historyLess(a, b store.Allocation) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if a.EventID != b.EventID {
		return a.EventID < b.EventID
	}
	return a.ItemID < b.ItemID
}

// completed returns copies of all completed allocations. Caller must not
// hold s.mu.
func (s *AllocationStore) completed() []store.Allocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Allocation
	for _, a := range s.rows {
		if a.Status == store.StatusCompleted {
			out = append(out, s.decorate(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(*out[j].CompletedAt) })
	return out
}

// decorate copies a and joins item code/name. Caller must hold s.mu.
func (s *AllocationStore) decorate(a *store.Allocation) store.Allocation {
	out := *a
	out.StaffID = copyInt64(a.StaffID)
	out.DeviceInfo = copyString(a.DeviceInfo)
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		out.CompletedAt = &t
	}
	if it, ok := s.items[a.ItemID]; ok {
		out.ItemCode = it.code
		out.ItemName = it.name
	}
	return out
}

func copyInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
