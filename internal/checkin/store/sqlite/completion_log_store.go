package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
	dbpkg "github.com/BrandonDHaskell/checkin/internal/db"
)

type CompletionLogStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewCompletionLogStore(db *sql.DB, writer *dbpkg.Worker) *CompletionLogStore {
	return &CompletionLogStore{db: db, writer: writer}
}

func (s *CompletionLogStore) Append(ctx context.Context, e store.CompletionLogEntry) error {
	if e.LoggedAt.IsZero() {
		e.LoggedAt = time.Now().UTC()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO completion_logs(
  entry_id, event_id, item_id, participant_id, staff_id, device_info, logged_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?);
`,
			e.EntryID, e.EventID, e.ItemID, e.ParticipantID,
			nullableInt64(e.StaffID), nullableString(e.DeviceInfo), e.LoggedAt.UTC().UnixMilli(),
		); err != nil {
			return wrapErr("Append insert", err)
		}
		return nil
	})
}

// AppendIfAbsent inserts e unless its triple already has an entry.
func (s *CompletionLogStore) AppendIfAbsent(ctx context.Context, e store.CompletionLogEntry) (bool, error) {
	if e.LoggedAt.IsZero() {
		e.LoggedAt = time.Now().UTC()
	}

	var wrote bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO completion_logs(
  entry_id, event_id, item_id, participant_id, staff_id, device_info, logged_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(event_id, item_id, participant_id) DO NOTHING;
`,
			e.EntryID, e.EventID, e.ItemID, e.ParticipantID,
			nullableInt64(e.StaffID), nullableString(e.DeviceInfo), e.LoggedAt.UTC().UnixMilli(),
		)
		if err != nil {
			return wrapErr("AppendIfAbsent insert", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("AppendIfAbsent rows affected: %w", err)
		}
		wrote = n == 1
		return nil
	})
	return wrote, err
}

func (s *CompletionLogStore) ListForParticipant(ctx context.Context, participantID int64) ([]store.CompletionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT entry_id, event_id, item_id, participant_id, staff_id, device_info, logged_at_ms
FROM completion_logs
WHERE participant_id = ?
ORDER BY id;
`, participantID)
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
			v := staffID.Int64
			e.StaffID = &v
		}
		if device.Valid {
			v := device.String
			e.DeviceInfo = &v
		}
		e.LoggedAt = fromMs(loggedMs)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListForParticipant rows: %w", err)
	}
	return out, nil
}
