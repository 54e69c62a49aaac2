package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
)

type CompletionLogStore struct {
	db *sql.DB
}

func NewCompletionLogStore(db *sql.DB) *CompletionLogStore {
	return &CompletionLogStore{db: db}
}

func (s *CompletionLogStore) Append(ctx context.Context, e store.CompletionLogEntry) error {
	if e.LoggedAt.IsZero() {
		e.LoggedAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO completion_logs(
  entry_id, event_id, item_id, participant_id, staff_id, device_info, logged_at_ms
) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.EntryID, e.EventID, e.ItemID, e.ParticipantID,
		nullableInt64(e.StaffID), nullableString(e.DeviceInfo), e.LoggedAt.UTC().UnixMilli(),
	); err != nil {
		return wrapErr("Append insert", err)
	}
	return nil
}

// AppendIfAbsent inserts e unless its triple already has an entry.
func (s *CompletionLogStore) AppendIfAbsent(ctx context.Context, e store.CompletionLogEntry) (bool, error) {
	if e.LoggedAt.IsZero() {
		e.LoggedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO completion_logs(
  entry_id, event_id, item_id, participant_id, staff_id, device_info, logged_at_ms
) VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (event_id, item_id, participant_id) DO NOTHING`,
		e.EntryID, e.EventID, e.ItemID, e.ParticipantID,
		nullableInt64(e.StaffID), nullableString(e.DeviceInfo), e.LoggedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return false, wrapErr("AppendIfAbsent insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("AppendIfAbsent rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *CompletionLogStore) ListForParticipant(ctx context.Context, participantID int64) ([]store.CompletionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT entry_id, event_id, item_id, participant_id, staff_id, device_info, logged_at_ms
FROM completion_logs
WHERE participant_id = $1
ORDER BY id`, participantID)
	if err != nil {
		return nil, fmt.Errorf("ListForParticipant query: %w", err)
	}
	defer rows.Close()

	var out []store.CompletionLogEntry
	for rows.Next() {
		var (
			e        store.CompletionLogEntry
			staffID  sql.NullInt64
			device   sql.NullString
			loggedMs int64
		)
		if err := rows.Scan(&e.EntryID, &e.EventID, &e.ItemID, &e.ParticipantID, &staffID, &device, &loggedMs); err != nil {
			return nil, fmt.Errorf("ListForParticipant scan: %w", err)
		}
		if staffID.Valid {
			e.StaffID = &staffID.Int64
		}
		if device.Valid {
			e.DeviceInfo = &device.String
		}
		e.LoggedAt = time.UnixMilli(loggedMs).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListForParticipant rows: %w", err)
	}
	return out, nil
}
