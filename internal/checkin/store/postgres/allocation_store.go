package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
)

type AllocationStore struct {
	db *sql.DB
}

func NewAllocationStore(db *sql.DB) *AllocationStore {
	return &AllocationStore{db: db}
}

// MarkComplete is a single conditional UPDATE. Concurrent callers on the
// same row serialize on its row lock; the loser re-evaluates the WHERE
// clause against the committed row and affects nothing.
func (s *AllocationStore) MarkComplete(ctx context.Context, rec store.CompletionRecord, at time.Time) (int64, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	ms := at.UTC().UnixMilli()

	res, err := s.db.ExecContext(ctx, `
UPDATE event_item_allocations
SET status          = 'completed',
    completed_at_ms = $1,
    staff_id        = $2,
    device_info     = $3,
    updated_at_ms   = $1
WHERE event_id = $4 AND item_id = $5 AND participant_id = $6
  AND status = 'pending'`,
		ms, nullableInt64(rec.StaffID), nullableString(rec.DeviceInfo),
		rec.EventID, rec.ItemID, rec.ParticipantID)
	if err != nil {
		return 0, wrapErr("MarkComplete update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("MarkComplete rows affected: %w", err)
	}
	return n, nil
}

func (s *AllocationStore) ListForParticipant(ctx context.Context, eventID, participantID int64) ([]store.Allocation, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT`+allocationColumns+`
FROM event_item_allocations a
LEFT JOIN event_items i ON i.item_id = a.item_id
WHERE a.event_id = $1 AND a.participant_id = $2
ORDER BY a.item_id`, eventID, participantID)
	if err != nil {
		return nil, fmt.Errorf("ListForParticipant query: %w", err)
	}
	return collectAllocations(rows, "ListForParticipant")
}

func (s *AllocationStore) ListHistory(ctx context.Context, participantID int64, f store.HistoryFilter, p store.Page) ([]store.Allocation, error) {
	args := []any{participantID}
	where := "a.participant_id = $1"
	if f.Status != "" {
		args = append(args, string(f.Status))
		where += " AND a.status = $" + strconv.Itoa(len(args))
	}
	if f.EventID != 0 {
		args = append(args, f.EventID)
		where += " AND a.event_id = $" + strconv.Itoa(len(args))
	}
	args = append(args, p.Limit, p.Offset())
	n := len(args)

	rows, err := s.db.QueryContext(ctx, `
SELECT`+allocationColumns+`
FROM event_item_allocations a
LEFT JOIN event_items i ON i.item_id = a.item_id
WHERE `+where+`
ORDER BY a.updated_at_ms DESC, a.created_at_ms DESC, a.event_id, a.item_id
LIMIT $`+strconv.Itoa(n-1)+` OFFSET $`+strconv.Itoa(n), args...)
	if err != nil {
		return nil, fmt.Errorf("ListHistory query: %w", err)
	}
	return collectAllocations(rows, "ListHistory")
}

func (s *AllocationStore) Summary(ctx context.Context, participantID, eventID int64) (store.Summary, error) {
	var sum store.Summary

	err := s.db.QueryRowContext(ctx, `
SELECT
  COUNT(*) FILTER (WHERE status = 'pending'),
  COUNT(*) FILTER (WHERE status = 'completed')
FROM event_item_allocations
WHERE participant_id = $1 AND ($2::bigint = 0 OR event_id = $2)`,
		participantID, eventID).Scan(&sum.Pending, &sum.Completed)
	if err != nil {
		return store.Summary{}, fmt.Errorf("Summary counts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT event_id FROM event_item_allocations
WHERE participant_id = $1
ORDER BY event_id DESC`, participantID)
	if err != nil {
		return store.Summary{}, fmt.Errorf("Summary events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return store.Summary{}, fmt.Errorf("Summary events scan: %w", err)
		}
		sum.EventIDs = append(sum.EventIDs, id)
	}
	if err := rows.Err(); err != nil {
		return store.Summary{}, fmt.Errorf("Summary events: %w", err)
	}
	return sum, nil
}

func (s *AllocationStore) ListNotCompleted(ctx context.Context, f store.NotCompletedFilter, p store.Page) ([]store.NotCompletedRow, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM event_item_allocations a
WHERE a.item_id = $1 AND a.status = 'pending' AND ($2::bigint = 0 OR a.event_id = $2)`,
		f.ItemID, f.EventID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListNotCompleted count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT`+allocationColumns+`,
  p.id, p.name, p.email, p.phone, p.scan_token, COALESCE(p.company, ''), p.created_at_ms
FROM event_item_allocations a
JOIN participants p ON p.id = a.participant_id
LEFT JOIN event_items i ON i.item_id = a.item_id
WHERE a.item_id = $1 AND a.status = 'pending' AND ($2::bigint = 0 OR a.event_id = $2)
ORDER BY a.participant_id, a.event_id
LIMIT $3 OFFSET $4`, f.ItemID, f.EventID, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("ListNotCompleted query: %w", err)
	}
	defer rows.Close()

	var out []store.NotCompletedRow
	for rows.Next() {
		var (
			row                       store.NotCompletedRow
			a                         = &row.Allocation
			pt                        = &row.Participant
			status                    string
			createdMs, updatedMs, pMs int64
			completed, staffID        sql.NullInt64
			device                    sql.NullString
		)
		if err := rows.Scan(
			&a.EventID, &a.ItemID, &a.ParticipantID, &a.ItemCode, &a.ItemName,
			&status, &createdMs, &updatedMs, &completed, &staffID, &device,
			&pt.ID, &pt.Name, &pt.Email, &pt.Phone, &pt.ScanToken, &pt.Company, &pMs,
		); err != nil {
			return nil, 0, fmt.Errorf("ListNotCompleted scan: %w", err)
		}
		a.Status = store.AllocationStatus(status)
		a.CreatedAt = time.UnixMilli(createdMs).UTC()
		a.UpdatedAt = time.UnixMilli(updatedMs).UTC()
		setCompletion(a, completed, staffID, device)
		pt.CreatedAt = time.UnixMilli(pMs).UTC()
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListNotCompleted rows: %w", err)
	}
	return out, total, nil
}

// FindUnlogged returns allocations completed at or before completedBefore
// with no completion_logs row, oldest first. A non-positive limit means no
// limit.
func (s *AllocationStore) FindUnlogged(ctx context.Context, completedBefore time.Time, limit int) ([]store.Allocation, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT`+allocationColumns+`
FROM event_item_allocations a
LEFT JOIN event_items i ON i.item_id = a.item_id
WHERE a.status = 'completed'
  AND a.completed_at_ms <= $1
  AND NOT EXISTS (
    SELECT 1 FROM completion_logs l
    WHERE l.event_id = a.event_id AND l.item_id = a.item_id AND l.participant_id = a.participant_id
  )
ORDER BY a.completed_at_ms
LIMIT $2`, completedBefore.UTC().UnixMilli(), lim)
	if err != nil {
		return nil, fmt.Errorf("FindUnlogged query: %w", err)
	}
	return collectAllocations(rows, "FindUnlogged")
}
