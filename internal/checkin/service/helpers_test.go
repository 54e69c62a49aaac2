package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/BrandonDHaskell/checkin/internal/checkin/metrics"
	"github.com/BrandonDHaskell/checkin/internal/checkin/service"
	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
	"github.com/BrandonDHaskell/checkin/internal/checkin/store/memory"
	"github.com/BrandonDHaskell/checkin/internal/fixture"
)

// Participant 3's scan token is participant 2's phone number, so resolving
// that string exercises phone-first precedence.
const testFixture = `
events:
  - id: 1
    items:
      - {id: 101, code: WK, name: Welcome Kit}
      - {id: 102, code: BF, name: Breakfast}
      - {id: 103, code: LN, name: Lunch}
  - id: 2
    items:
      - {id: 201, code: WK, name: Welcome Kit}
      - {id: 202, code: DN, name: Dinner}
participants:
  - {id: 1, name: Asha, phone: "9876543210", scan_token: tok-asha, events: [1, 2]}
  - {id: 2, name: Ravi, phone: "9123456780", scan_token: a1b2c3d4-0000-4000-8000-000000000000, events: [1]}
  - {id: 3, name: Mei, phone: "9000000003", scan_token: "9123456780", events: [2]}
`

type harness struct {
	svc          *service.CheckInService
	resolver     *service.Resolver
	participants *memory.ParticipantStore
	allocations  *memory.AllocationStore
	logs         *memory.CompletionLogStore
	hook         *test.Hook
	metrics      *metrics.Metrics
}

// newHarness wires a CheckInService over seeded memory stores. sink
// replaces the completion log store when non-nil.
func newHarness(t *testing.T, sink store.CompletionLogStore) *harness {
	t.Helper()

	fx, err := fixture.Parse([]byte(testFixture))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	h := &harness{
		participants: memory.NewParticipantStore(),
		logs:         memory.NewCompletionLogStore(),
		metrics:      metrics.New(prometheus.NewRegistry()),
	}
	h.allocations = memory.NewAllocationStore(h.participants)
	if err := memory.Seed(fx, h.participants, h.allocations); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if sink == nil {
		sink = h.logs
	}

	var logger *logrus.Logger
	logger, h.hook = test.NewNullLogger()

	h.resolver = service.NewResolver(h.participants, h.metrics)
	audit := service.NewAuditLog(sink, time.Second, logger, h.metrics)
	h.svc = service.NewCheckInService(h.resolver, h.allocations, audit, logger, h.metrics)
	return h
}

func (h *harness) allocation(t *testing.T, eventID, itemID, participantID int64) store.Allocation {
	t.Helper()
	rows, err := h.allocations.ListForParticipant(context.Background(), eventID, participantID)
	if err != nil {
		t.Fatalf("ListForParticipant: %v", err)
	}
	for _, a := range rows {
		if a.ItemID == itemID {
			return a
		}
	}
	t.Fatalf("no allocation %d/%d/%d", eventID, itemID, participantID)
	return store.Allocation{}
}

// ── Fakes ────────────────────────────────────────────────────────────────────

type failingSink struct{ err error }

func (f failingSink) Append(context.Context, store.CompletionLogEntry) error { return f.err }
func (f failingSink) ListForParticipant(context.Context, int64) ([]store.CompletionLogEntry, error) {
	return nil, nil
}

type panickingSink struct{}

func (panickingSink) Append(context.Context, store.CompletionLogEntry) error { panic("disk on fire") }
func (panickingSink) ListForParticipant(context.Context, int64) ([]store.CompletionLogEntry, error) {
	return nil, nil
}

// ctxRecordingSink remembers the context error seen by each Append.
type ctxRecordingSink struct {
	inner store.CompletionLogStore
	seen  []error
}

func (s *ctxRecordingSink) Append(ctx context.Context, e store.CompletionLogEntry) error {
	s.seen = append(s.seen, ctx.Err())
	return s.inner.Append(ctx, e)
}

func (s *ctxRecordingSink) ListForParticipant(ctx context.Context, id int64) ([]store.CompletionLogEntry, error) {
	return s.inner.ListForParticipant(ctx, id)
}

// cancelAfterCommit cancels the caller's context right after the
// conditional update commits, as a client timing out would.
type cancelAfterCommit struct {
	store.AllocationStore
	cancel context.CancelFunc
}

func (c cancelAfterCommit) MarkComplete(ctx context.Context, rec store.CompletionRecord, at time.Time) (int64, error) {
	n, err := c.AllocationStore.MarkComplete(ctx, rec, at)
	c.cancel()
	return n, err
}

var errStorageDown = errors.New("storage down")

type brokenParticipants struct{}

func (brokenParticipants) GetByID(context.Context, int64) (store.Participant, error) {
	return store.Participant{}, errStorageDown
}
func (brokenParticipants) GetByPhone(context.Context, string) (store.Participant, error) {
	return store.Participant{}, errStorageDown
}
func (brokenParticipants) GetByScanToken(context.Context, string) (store.Participant, error) {
	return store.Participant{}, errStorageDown
}

type missingPhones struct{ store.ParticipantStore }

func (missingPhones) GetByPhone(context.Context, string) (store.Participant, error) {
	return store.Participant{}, store.ErrNotFound
}
