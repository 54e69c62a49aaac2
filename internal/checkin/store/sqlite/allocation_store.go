package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
	dbpkg "github.com/BrandonDHaskell/checkin/internal/db"
)

type AllocationStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAllocationStore(db *sql.DB, writer *dbpkg.Worker) *AllocationStore {
	return &AllocationStore{db: db, writer: writer}
}

// MarkComplete flips one pending allocation to completed. The status
// precondition lives in the UPDATE's WHERE clause, so the check and the
// write are a single statement; RowsAffected tells us whether we won.
func (s *AllocationStore) MarkComplete(ctx context.Context, rec store.CompletionRecord, at time.Time) (int64, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	ms := at.UTC().UnixMilli()

	var changed int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE event_item_allocations
SET status          = 'completed',
    completed_at_ms = ?,
    staff_id        = ?,
    device_info     = ?,
    updated_at_ms   = ?
WHERE event_id = ? AND item_id = ? AND participant_id = ?
  AND status = 'pending';
`, ms, nullableInt64(rec.StaffID), nullableString(rec.DeviceInfo), ms,
			rec.EventID, rec.ItemID, rec.ParticipantID)
		if err != nil {
			return wrapErr("MarkComplete update", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("MarkComplete rows affected: %w", err)
		}
		changed = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

func (s *AllocationStore) ListForParticipant(ctx context.Context, eventID, participantID int64) ([]store.Allocation, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT`+allocationColumns+`
FROM event_item_allocations a
LEFT JOIN event_items i ON i.item_id = a.item_id
WHERE a.event_id = ? AND a.participant_id = ?
ORDER BY a.item_id;
`, eventID, participantID)
	if err != nil {
		return nil, fmt.Errorf("ListForParticipant query: %w", err)
	}
	return collectAllocations(rows, "ListForParticipant")
}

func (s *AllocationStore) ListHistory(ctx context.Context, participantID int64, f store.HistoryFilter, p store.Page) ([]store.Allocation, error) {
	where, args := "a.participant_id = ?", []any{participantID}
	if f.Status != "" {
		where += " AND a.status = ?"
		args = append(args, string(f.Status))
	}
	if f.EventID != 0 {
		where += " AND a.event_id = ?"
		args = append(args, f.EventID)
	}
	args = append(args, p.Limit, p.Offset())

	rows, err := s.db.QueryContext(ctx, `
SELECT`+allocationColumns+`
FROM event_item_allocations a
LEFT JOIN event_items i ON i.item_id = a.item_id
WHERE `+where+`
ORDER BY a.updated_at_ms DESC, a.created_at_ms DESC, a.event_id, a.item_id
LIMIT ? OFFSET ?;
`, args...)
	if err != nil {
		return nil, fmt.Errorf("ListHistory query: %w", err)
	}
	return collectAllocations(rows, "ListHistory")
}

func (s *AllocationStore) Summary(ctx context.Context, participantID, eventID int64) (store.Summary, error) {
	var sum store.Summary

	err := s.db.QueryRowContext(ctx, `
SELECT
  COALESCE(SUM(CASE WHEN status = 'pending'   THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)
FROM event_item_allocations
WHERE participant_id = ? AND (? = 0 OR event_id = ?);
`, participantID, eventID, eventID).Scan(&sum.Pending, &sum.Completed)
	if err != nil {
		return store.Summary{}, fmt.Errorf("Summary counts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT event_id FROM event_item_allocations
WHERE participant_id = ?
ORDER BY event_id DESC;
`, participantID)
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
WHERE a.item_id = ? AND a.status = 'pending' AND (? = 0 OR a.event_id = ?);
`, f.ItemID, f.EventID, f.EventID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListNotCompleted count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT`+allocationColumns+`,
  p.id, p.name, p.email, p.phone, p.scan_token, COALESCE(p.company, ''), p.created_at_ms
FROM event_item_allocations a
JOIN participants p ON p.id = a.participant_id
LEFT JOIN event_items i ON i.item_id = a.item_id
WHERE a.item_id = ? AND a.status = 'pending' AND (? = 0 OR a.event_id = ?)
ORDER BY a.participant_id, a.event_id
LIMIT ? OFFSET ?;
`, f.ItemID, f.EventID, f.EventID, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("ListNotCompleted query: %w", err)
	}
	defer rows.Close()

	var out []store.NotCompletedRow
	for rows.Next() {
		row, err := scanNotCompleted(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListNotCompleted scan: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListNotCompleted rows: %w", err)
	}
	return out, total, nil
}

// FindUnlogged returns allocations completed at or before completedBefore
// without any completion_logs row for the same triple, oldest first.
func (s *AllocationStore) FindUnlogged(ctx context.Context, completedBefore time.Time, limit int) ([]store.Allocation, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT`+allocationColumns+`
FROM event_item_allocations a
LEFT JOIN event_items i ON i.item_id = a.item_id
WHERE a.status = 'completed'
  AND a.completed_at_ms <= ?
  AND NOT EXISTS (
    SELECT 1 FROM completion_logs l
    WHERE l.event_id = a.event_id AND l.item_id = a.item_id AND l.participant_id = a.participant_id
  )
ORDER BY a.completed_at_ms
LIMIT ?;
`, completedBefore.UTC().UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("FindUnlogged query: %w", err)
	}
	return collectAllocations(rows, "FindUnlogged")
}

func scanNotCompleted(r rowScanner) (store.NotCompletedRow, error) {
	var (
		row       store.NotCompletedRow
		a         = &row.Allocation
		p         = &row.Participant
		status    string
		createdMs int64
		updatedMs int64
		completed sql.NullInt64
		staffID   sql.NullInt64
		device    sql.NullString
		pCreated  int64
	)
	if err := r.Scan(
		&a.EventID, &a.ItemID, &a.ParticipantID, &a.ItemCode, &a.ItemName,
		&status, &createdMs, &updatedMs, &completed, &staffID, &device,
		&p.ID, &p.Name, &p.Email, &p.Phone, &p.ScanToken, &p.Company, &pCreated,
	); err != nil {
		return store.NotCompletedRow{}, err
	}
	a.Status = store.AllocationStatus(status)
	a.CreatedAt = fromMs(createdMs)
	a.UpdatedAt = fromMs(updatedMs)
	setCompletion(a, completed, staffID, device)
	p.CreatedAt = fromMs(pCreated)
	return row, nil
}

func collectAllocations(rows *sql.Rows, op string) ([]store.Allocation, error) {
	defer rows.Close()
	var out []store.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return out, nil
}
