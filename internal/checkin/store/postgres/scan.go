// Package postgres implements the check-in stores on PostgreSQL through the
// pgx database/sql driver. Postgres row locks make the conditional UPDATE
// in MarkComplete safe under concurrent writers, so no Worker is needed.
package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

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
	a.CreatedAt = time.UnixMilli(createdMs).UTC()
	a.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	setCompletion(&a, completedMs, staffID, deviceInfo)
	return a, nil
}

// setCompletion copies the nullable completion columns onto a.
func setCompletion(a *store.Allocation, completedMs, staffID sql.NullInt64, deviceInfo sql.NullString) {
	if completedMs.Valid {
		t := time.UnixMilli(completedMs.Int64).UTC()
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

// wrapErr tags integrity_constraint_violation (SQLSTATE class 23) with
// store.ErrConstraint.
func wrapErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return fmt.Errorf("%s: %w: %s (%s)", op, store.ErrConstraint, pgErr.Message, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}
