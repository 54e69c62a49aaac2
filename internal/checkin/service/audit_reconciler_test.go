package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/BrandonDHaskell/checkin/internal/checkin/service"
	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
	"github.com/BrandonDHaskell/checkin/internal/checkin/store/memory"
	"github.com/BrandonDHaskell/checkin/internal/checkin/types"
)

// completeWithoutLog completes an allocation while the audit sink is
// failing, leaving a gap for the reconciler.
func completeWithoutLog(t *testing.T, h *harness, itemID int64) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	svc := service.NewCheckInService(h.resolver, h.allocations,
		service.NewAuditLog(failingSink{err: errors.New("down")}, time.Second, logger, nil), logger, nil)
	if _, err := svc.CompleteItem(context.Background(), types.CompleteRequest{
		Token: "tok-asha", EventID: 1, ItemID: itemID, DeviceInfo: "gate-3",
	}, int64p(9)); err != nil {
		t.Fatalf("CompleteItem: %v", err)
	}
}

func TestAuditReconciler_ReportsGapWithoutBackfill(t *testing.T) {
	h := newHarness(t, nil)
	completeWithoutLog(t, h, 101)
	if _, err := h.svc.CompleteItem(context.Background(), types.CompleteRequest{
		Token: "tok-asha", EventID: 1, ItemID: 102,
	}, nil); err != nil {
		t.Fatalf("CompleteItem: %v", err)
	}

	logger, hook := test.NewNullLogger()
	r := service.NewAuditReconciler(memory.NewGapFinder(h.allocations, h.logs), h.logs,
		service.ReconcilerConfig{IntervalMinutes: 1}, logger, h.metrics)

	found, written := r.RunOnce(context.Background())
	if found != 1 || written != 0 {
		t.Fatalf("expected 1 gap and no writes, got %d/%d", found, written)
	}
	if got := testutil.ToFloat64(h.metrics.AuditGap); got != 1 {
		t.Errorf("expected gap gauge 1, got %v", got)
	}
	if hook.LastEntry() == nil || hook.LastEntry().Data["missing"] != 1 {
		t.Errorf("expected a warning naming the gap size")
	}
	if n := len(h.logs.Entries()); n != 1 {
		t.Errorf("report-only pass must not write, have %d entries", n)
	}
}

func TestAuditReconciler_BackfillsFromAllocation(t *testing.T) {
	h := newHarness(t, nil)
	completeWithoutLog(t, h, 103)

	logger, _ := test.NewNullLogger()
	r := service.NewAuditReconciler(memory.NewGapFinder(h.allocations, h.logs), h.logs,
		service.ReconcilerConfig{IntervalMinutes: 1, Backfill: true}, logger, h.metrics)

	found, written := r.RunOnce(context.Background())
	if found != 1 || written != 1 {
		t.Fatalf("expected 1 gap backfilled, got %d/%d", found, written)
	}

	entries := h.logs.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	a := h.allocation(t, 1, 103, 1)
	e := entries[0]
	if !e.LoggedAt.Equal(*a.CompletedAt) {
		t.Errorf("backfilled logged_at %v should equal completed_at %v", e.LoggedAt, *a.CompletedAt)
	}
	if *e.StaffID != 9 || *e.DeviceInfo != "gate-3" {
		t.Errorf("backfill should copy staff and device, got %+v", e)
	}

	// Second pass finds nothing.
	if found, _ := r.RunOnce(context.Background()); found != 0 {
		t.Errorf("expected no gaps after backfill, got %d", found)
	}
	if got := testutil.ToFloat64(h.metrics.AuditGap); got != 0 {
		t.Errorf("expected gap gauge 0, got %v", got)
	}
}

// inFlight commits a completion straight through the store, as the
// service does before its audit append runs.
func inFlight(t *testing.T, h *harness, itemID int64) store.CompletionRecord {
	t.Helper()
	rec := store.CompletionRecord{EventID: 1, ItemID: itemID, ParticipantID: 1}
	n, err := h.allocations.MarkComplete(context.Background(), rec, time.Now().UTC())
	if err != nil || n != 1 {
		t.Fatalf("MarkComplete: n=%d err=%v", n, err)
	}
	return rec
}

func entriesFor(h *harness, itemID int64) int {
	n := 0
	for _, e := range h.logs.Entries() {
		if e.EventID == 1 && e.ItemID == itemID && e.ParticipantID == 1 {
			n++
		}
	}
	return n
}

func TestAuditReconciler_SkipsCompletionsWithinGrace(t *testing.T) {
	h := newHarness(t, nil)
	rec := inFlight(t, h, 101)

	logger, _ := test.NewNullLogger()
	r := service.NewAuditReconciler(memory.NewGapFinder(h.allocations, h.logs), h.logs,
		service.ReconcilerConfig{IntervalMinutes: 1, Backfill: true, Grace: time.Hour}, logger, h.metrics)

	if found, written := r.RunOnce(context.Background()); found != 0 || written != 0 {
		t.Fatalf("a fresh completion is not a gap yet, got %d/%d", found, written)
	}

	// The live append lands after the pass.
	audit := service.NewAuditLog(h.logs, time.Second, logger, h.metrics)
	if _, ok := audit.Append(context.Background(), rec); !ok {
		t.Fatal("live append should succeed")
	}
	if n := entriesFor(h, 101); n != 1 {
		t.Errorf("expected exactly 1 entry for the triple, got %d", n)
	}
}

func TestAuditReconciler_BackfillBeforeLiveAppendKeepsOneEntry(t *testing.T) {
	h := newHarness(t, nil)
	rec := inFlight(t, h, 102)

	logger, hook := test.NewNullLogger()
	r := service.NewAuditReconciler(memory.NewGapFinder(h.allocations, h.logs), h.logs,
		service.ReconcilerConfig{IntervalMinutes: 1, Backfill: true}, logger, h.metrics)

	if found, written := r.RunOnce(context.Background()); found != 1 || written != 1 {
		t.Fatalf("expected the gap backfilled, got %d/%d", found, written)
	}

	audit := service.NewAuditLog(h.logs, time.Second, logger, h.metrics)
	if _, ok := audit.Append(context.Background(), rec); ok {
		t.Error("live append must not add a second entry")
	}
	if n := entriesFor(h, 102); n != 1 {
		t.Errorf("expected exactly 1 entry for the triple, got %d", n)
	}
	if got := testutil.ToFloat64(h.metrics.AuditWriteFailures); got != 0 {
		t.Errorf("an already-logged triple is not a write failure, got %v", got)
	}
	if len(errorEntries(hook)) != 0 {
		t.Error("expected no error-level logs")
	}
}

// loggedMeanwhile reports a gap that the live path closes before backfill.
type loggedMeanwhile struct {
	store.GapFinder
	logs *memory.CompletionLogStore
	rec  store.CompletionRecord
}

func (g loggedMeanwhile) FindUnlogged(ctx context.Context, before time.Time, limit int) ([]store.Allocation, error) {
	rows, err := g.GapFinder.FindUnlogged(ctx, before, limit)
	if err != nil {
		return nil, err
	}
	err = g.logs.Append(ctx, store.CompletionLogEntry{
		EntryID: "live", EventID: g.rec.EventID, ItemID: g.rec.ItemID, ParticipantID: g.rec.ParticipantID,
	})
	return rows, err
}

func TestAuditReconciler_LiveAppendBetweenFindAndBackfill(t *testing.T) {
	h := newHarness(t, nil)
	rec := inFlight(t, h, 103)

	logger, _ := test.NewNullLogger()
	gaps := loggedMeanwhile{GapFinder: memory.NewGapFinder(h.allocations, h.logs), logs: h.logs, rec: rec}
	r := service.NewAuditReconciler(gaps, h.logs,
		service.ReconcilerConfig{IntervalMinutes: 1, Backfill: true}, logger, h.metrics)

	found, written := r.RunOnce(context.Background())
	if found != 1 || written != 0 {
		t.Fatalf("expected 1 gap and no write, got %d/%d", found, written)
	}
	if n := entriesFor(h, 103); n != 1 {
		t.Errorf("expected exactly 1 entry for the triple, got %d", n)
	}
	if e := h.logs.Entries()[0]; e.EntryID != "live" {
		t.Errorf("the live entry should be kept, got %q", e.EntryID)
	}
	if got := testutil.ToFloat64(h.metrics.AuditGap); got != 0 {
		t.Errorf("expected gap gauge 0, got %v", got)
	}
}

type brokenGaps struct{}

func (brokenGaps) FindUnlogged(context.Context, time.Time, int) ([]store.Allocation, error) {
	return nil, errStorageDown
}

func TestAuditReconciler_FindErrorIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := service.NewAuditReconciler(brokenGaps{}, memory.NewCompletionLogStore(),
		service.ReconcilerConfig{IntervalMinutes: 1}, logger, nil)

	if found, written := r.RunOnce(context.Background()); found != 0 || written != 0 {
		t.Errorf("expected 0/0, got %d/%d", found, written)
	}
	if len(errorEntries(hook)) != 1 {
		t.Error("expected the lookup failure to be logged")
	}
}

func TestAuditReconciler_DisabledWhenIntervalZero(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := service.NewAuditReconciler(brokenGaps{}, memory.NewCompletionLogStore(),
		service.ReconcilerConfig{}, logger, nil)

	r.Start(context.Background())
	// Stop should return immediately.
	r.Stop()
}

func TestAuditReconciler_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	logger, _ := test.NewNullLogger()
	r := service.NewAuditReconciler(memory.NewGapFinder(h.allocations, h.logs), h.logs,
		service.ReconcilerConfig{IntervalMinutes: 60}, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	cancel()
	r.Stop()
	r.Stop()
}
