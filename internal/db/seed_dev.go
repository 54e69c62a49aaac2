package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/checkin/internal/fixture"
)

// SeedDev loads fixture data idempotently: rows that already exist are
// left untouched, so re-seeding never resets a completed allocation.
func SeedDev(ctx context.Context, db *sql.DB, dialect Dialect, fx fixture.Fixture) error {
	now := time.Now().UTC().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range fx.Events {
		for _, it := range e.Items {
			if _, err := tx.ExecContext(ctx, Rebind(dialect, `
INSERT INTO event_items(item_id, event_id, code, name, created_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(item_id) DO NOTHING;`), it.ID, e.ID, it.Code, it.Name, now); err != nil {
				return fmt.Errorf("seed item %d: %w", it.ID, err)
			}
		}
	}

	for _, p := range fx.Participants {
		var company any
		if p.Company != "" {
			company = p.Company
		}
		if _, err := tx.ExecContext(ctx, Rebind(dialect, `
INSERT INTO participants(id, name, email, phone, scan_token, company, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING;`), p.ID, p.Name, p.Email, p.Phone, p.ScanToken, company, now, now); err != nil {
			return fmt.Errorf("seed participant %d: %w", p.ID, err)
		}
	}

	for _, a := range fx.Allocations() {
		if _, err := tx.ExecContext(ctx, Rebind(dialect, `
INSERT INTO event_item_allocations(event_id, item_id, participant_id, status, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, 'pending', ?, ?)
ON CONFLICT(event_id, item_id, participant_id) DO NOTHING;`), a.EventID, a.ItemID, a.ParticipantID, now, now); err != nil {
			return fmt.Errorf("seed allocation %d/%d/%d: %w", a.EventID, a.ItemID, a.ParticipantID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}
	return nil
}
