package store

import (
	"context"
	"time"
)

// AllocationStore holds (event, item, participant) allocations.
//
// MarkComplete is the only write path for status, completed_at, staff_id
// and device_info. It must check status = pending in the same atomic step
// as the write and report 1 when it flipped the row, 0 when the row is
// missing or already completed.
type AllocationStore interface {
	ListForParticipant(ctx context.Context, eventID, participantID int64) ([]Allocation, error)
	MarkComplete(ctx context.Context, rec CompletionRecord, at time.Time) (int64, error)
	ListNotCompleted(ctx context.Context, f NotCompletedFilter, p Page) ([]NotCompletedRow, int, error)
	Summary(ctx context.Context, participantID, eventID int64) (Summary, error)
	ListHistory(ctx context.Context, participantID int64, f HistoryFilter, p Page) ([]Allocation, error)
}

// GapFinder lists completed allocations that have no completion log entry.
// Only rows completed at or before completedBefore are considered, so a
// completion whose audit append is still in flight is not reported.
type GapFinder interface {
	FindUnlogged(ctx context.Context, completedBefore time.Time, limit int) ([]Allocation, error)
}
