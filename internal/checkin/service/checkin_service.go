package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/checkin/internal/checkin/metrics"
	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
	"github.com/BrandonDHaskell/checkin/internal/checkin/types"
)

const (
	DefaultHistoryLimit      = 50
	DefaultNotCompletedLimit = 10
	MaxPageLimit             = 200
)

// HistoryQuery filters and pages a participant's allocation history.
// An unrecognized Status is ignored rather than rejected.
type HistoryQuery struct {
	Status  string
	EventID int64
	Limit   int
	Page    int
}

type NotCompletedQuery struct {
	EventID int64 // 0 = every event
	ItemID  int64
	Limit   int
	Page    int
}

// CheckInService orchestrates resolve → conditional complete → audit for a
// scan, and serves the read-side queries built on the allocation store.
type CheckInService struct {
	resolver    *Resolver
	allocations store.AllocationStore
	audit       *AuditLog
	logger      logrus.FieldLogger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewCheckInService(
	resolver *Resolver,
	allocations store.AllocationStore,
	audit *AuditLog,
	logger logrus.FieldLogger,
	m *metrics.Metrics,
) *CheckInService {
	return &CheckInService{
		resolver:    resolver,
		allocations: allocations,
		audit:       audit,
		logger:      logger,
		metrics:     m,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// GetPendingItems resolves the token and lists the participant's
// allocations for the event. It never writes.
func (s *CheckInService) GetPendingItems(ctx context.Context, eventID int64, token string) (types.PendingItemsResponse, error) {
	if eventID <= 0 {
		return types.PendingItemsResponse{}, ErrInvalidEventID
	}
	p, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		return types.PendingItemsResponse{}, err
	}

	rows, err := s.allocations.ListForParticipant(ctx, eventID, p.ID)
	if err != nil {
		return types.PendingItemsResponse{}, fmt.Errorf("list allocations: %w", err)
	}

	resp := types.PendingItemsResponse{
		OK:          true,
		EventID:     eventID,
		Participant: types.NewParticipant(p),
		Allocations: types.NewAllocations(rows),
		Pending:     []types.Allocation{},
	}
	for _, a := range rows {
		if a.Status == store.StatusPending {
			resp.Pending = append(resp.Pending, types.NewAllocation(a))
		}
	}
	return resp, nil
}

// CompleteItem marks one allocation completed on behalf of staffID (nil
// when the scanner is unauthenticated).
//
// A second call for the same triple returns ErrConflict, so callers that
// timed out may retry safely. A caller whose context is already done gets
// ctx.Err() and nothing is written.
func (s *CheckInService) CompleteItem(ctx context.Context, req types.CompleteRequest, staffID *int64) (types.CompleteResponse, error) {
	if err := ctx.Err(); err != nil {
		return types.CompleteResponse{}, err
	}
	if req.EventID <= 0 {
		s.metrics.IncCompletion(metrics.OutcomeInvalid)
		return types.CompleteResponse{}, ErrInvalidEventID
	}
	if req.ItemID <= 0 {
		s.metrics.IncCompletion(metrics.OutcomeInvalid)
		return types.CompleteResponse{}, ErrInvalidItemID
	}

	p, err := s.resolver.Resolve(ctx, req.Token)
	if err != nil {
		s.metrics.IncCompletion(outcomeFor(err))
		return types.CompleteResponse{}, err
	}

	rec := store.CompletionRecord{
		EventID:       req.EventID,
		ItemID:        req.ItemID,
		ParticipantID: p.ID,
		StaffID:       staffID,
	}
	if req.DeviceInfo != "" {
		device := req.DeviceInfo
		rec.DeviceInfo = &device
	}

	at := s.now()
	changed, err := s.allocations.MarkComplete(ctx, rec, at)
	if err != nil {
		s.metrics.IncCompletion(metrics.OutcomeError)
		return types.CompleteResponse{}, fmt.Errorf("mark complete: %w", err)
	}
	if changed == 0 {
		s.metrics.IncCompletion(metrics.OutcomeConflict)
		return types.CompleteResponse{}, ErrConflict
	}
	s.metrics.IncCompletion(metrics.OutcomeCompleted)

	resp := types.CompleteResponse{
		OK:            true,
		ParticipantID: p.ID,
		EventID:       req.EventID,
		ItemID:        req.ItemID,
		CompletedAt:   at.Format(time.RFC3339Nano),
	}
	if entry, ok := s.audit.Append(ctx, rec); ok {
		resp.EntryID = entry.EntryID
	}

	s.logger.WithFields(logrus.Fields{
		"event_id":       req.EventID,
		"item_id":        req.ItemID,
		"participant_id": p.ID,
		"entry_id":       resp.EntryID,
	}).Info("allocation completed")

	return resp, nil
}

// Summary counts a participant's allocations by status. eventID 0 counts
// every event; EventIDs always lists every event the participant has.
func (s *CheckInService) Summary(ctx context.Context, participantID, eventID int64) (types.SummaryResponse, error) {
	if participantID <= 0 {
		return types.SummaryResponse{}, ErrInvalidParticipantID
	}
	if eventID < 0 {
		return types.SummaryResponse{}, ErrInvalidEventID
	}

	sum, err := s.allocations.Summary(ctx, participantID, eventID)
	if err != nil {
		return types.SummaryResponse{}, fmt.Errorf("summary: %w", err)
	}
	events := sum.EventIDs
	if events == nil {
		events = []int64{}
	}
	return types.SummaryResponse{
		OK:            true,
		ParticipantID: participantID,
		EventID:       eventID,
		Pending:       sum.Pending,
		Completed:     sum.Completed,
		Total:         sum.Pending + sum.Completed,
		EventIDs:      events,
	}, nil
}

// History pages a participant's allocations, most recently updated first.
func (s *CheckInService) History(ctx context.Context, participantID int64, q HistoryQuery) (types.HistoryResponse, error) {
	if participantID <= 0 {
		return types.HistoryResponse{}, ErrInvalidParticipantID
	}

	page, err := clampPage(q.Limit, q.Page, DefaultHistoryLimit)
	if err != nil {
		return types.HistoryResponse{}, err
	}
	f := store.HistoryFilter{EventID: q.EventID}
	if st := store.AllocationStatus(q.Status); st.Valid() {
		f.Status = st
	}
	if f.EventID < 0 {
		f.EventID = 0
	}

	rows, err := s.allocations.ListHistory(ctx, participantID, f, page)
	if err != nil {
		return types.HistoryResponse{}, fmt.Errorf("history: %w", err)
	}
	return types.HistoryResponse{
		OK:            true,
		ParticipantID: participantID,
		Page:          page.Page,
		Limit:         page.Limit,
		Items:         types.NewAllocations(rows),
	}, nil
}

// NotCompleted reports participants who still have q.ItemID pending.
func (s *CheckInService) NotCompleted(ctx context.Context, q NotCompletedQuery) (types.NotCompletedResponse, error) {
	if q.ItemID <= 0 {
		return types.NotCompletedResponse{}, ErrInvalidItemID
	}
	if q.EventID < 0 {
		return types.NotCompletedResponse{}, ErrInvalidEventID
	}

	page, err := clampPage(q.Limit, q.Page, DefaultNotCompletedLimit)
	if err != nil {
		return types.NotCompletedResponse{}, err
	}
	rows, total, err := s.allocations.ListNotCompleted(ctx,
		store.NotCompletedFilter{EventID: q.EventID, ItemID: q.ItemID}, page)
	if err != nil {
		return types.NotCompletedResponse{}, fmt.Errorf("not completed: %w", err)
	}

	resp := types.NotCompletedResponse{
		OK:      true,
		EventID: q.EventID,
		ItemID:  q.ItemID,
		Page:    page.Page,
		Limit:   page.Limit,
		Total:   total,
		Rows:    make([]types.NotCompletedRow, 0, len(rows)),
	}
	for _, r := range rows {
		resp.Rows = append(resp.Rows, types.NotCompletedRow{
			Participant: types.NewParticipant(r.Participant),
			Allocation:  types.NewAllocation(r.Allocation),
		})
	}
	return resp, nil
}

func (s *CheckInService) LookupByPhone(ctx context.Context, phone string) (types.LookupResponse, error) {
	p, err := s.resolver.ResolvePhone(ctx, phone)
	if err != nil {
		return types.LookupResponse{}, err
	}
	return types.LookupResponse{OK: true, Participant: types.NewParticipant(p)}, nil
}

func (s *CheckInService) SummaryByPhone(ctx context.Context, phone string, eventID int64) (types.SummaryResponse, error) {
	p, err := s.resolver.ResolvePhone(ctx, phone)
	if err != nil {
		return types.SummaryResponse{}, err
	}
	return s.Summary(ctx, p.ID, eventID)
}

func (s *CheckInService) HistoryByPhone(ctx context.Context, phone string, q HistoryQuery) (types.HistoryResponse, error) {
	p, err := s.resolver.ResolvePhone(ctx, phone)
	if err != nil {
		return types.HistoryResponse{}, err
	}
	return s.History(ctx, p.ID, q)
}

// clampPage applies the default and maximum limit and coerces page to at
// least 1. A page that would skip more than store.MaxOffset rows is invalid.
func clampPage(limit, page, def int) (store.Page, error) {
	if limit <= 0 {
		limit = def
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if page < 1 {
		page = 1
	}
	if page-1 > store.MaxOffset/limit {
		return store.Page{}, ErrInvalidPage
	}
	return store.Page{Limit: limit, Page: page}, nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return metrics.OutcomeInvalid
	case errors.Is(err, ErrParticipantNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
