package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
)

const allocationColumns = `
  a.event_id, a.item_id, a.participant_id, COALESCE(i.code, ''), COALESCE(i.name, ''),
  a.status, a.created_at_ms, a.updated_at_ms, a.completed_at_ms, a.staff_id, a.device_info`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAllocation(r rowScanner) (store.Allocation, error) {
	var (
		a           store.Allocation
		status      string
		createdMs   int64
		updatedMs   int64
		completedMs sql.NullInt64
		staffID     sql.NullInt64
		deviceInfo  sql.NullString
	)
	if err := r.Scan(
		&a.EventID, &a.ItemID, &a.ParticipantID, &a.ItemCode, &a.ItemName,
		&status, &createdMs, &updatedMs, &completedMs, &staffID, &deviceInfo,
	); err != nil {
		return store.Allocation{}, err
	}
	a.Status = store.AllocationStatus(status)
	a.CreatedAt = fromMs(createdMs)
	a.UpdatedAt = fromMs(updatedMs)
	setCompletion(&a, completedMs, staffID, deviceInfo)
	return a, nil
}

// setCompletion copies the nullable completion columns onto a.
func setCompletion(a *store.Allocation, completedMs, staffID sql.NullInt64, deviceInfo sql.NullString) {
	if completedMs.Valid {
		t := fromMs(completedMs.Int64)
		a.CompletedAt = &t
	}
	if staffID.Valid {
		v := staffID.Int64
		a.StaffID = &v
	}
	if deviceInfo.Valid {
		v := deviceInfo.String
		a.DeviceInfo = &v
	}
}

func fromMs(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// wrapErr tags SQLite constraint failures with store.ErrConstraint.
func wrapErr(op string, err error) error {
	var se *msqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%s: %w: %v", op, store.ErrConstraint, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
