package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/checkin/internal/db"
	"github.com/BrandonDHaskell/checkin/internal/fixture"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and schema as production.  The connection is closed automatically when the
// test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Each call gets a unique in-memory database.  The shared-cache URI
	// keeps the database alive for the lifetime of the connection pool.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		name,
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openTestDB: sql.Open: %v", err)
	}

	// Match production: single connection for SQLite safety.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: ping: %v", err)
	}

	if err := db.Migrate(context.Background(), conn); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn.  The worker is closed
// automatically when the test finishes.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

// seed loads a two-event fixture:
//
//	participant 1 (phone 9876543210, token tok-1): events 5 and 6
//	participant 2 (phone 9123456780, token tok-2): event 5
//
// Event 5 has items 11..16, event 6 has item 21.
func seed(t *testing.T, conn *sql.DB) fixture.Fixture {
	t.Helper()

	fx, err := fixture.Parse([]byte(`
events:
  - id: 5
    items:
      - {id: 11, code: WK, name: Welcome Kit}
      - {id: 12, code: BF, name: Breakfast}
      - {id: 13, code: LN, name: Lunch}
      - {id: 14, code: HT, name: High Tea}
      - {id: 15, code: DN, name: Dinner}
      - {id: 16, code: BD, name: Badge}
  - id: 6
    items:
      - {id: 21, code: WK, name: Welcome Kit}
participants:
  - {id: 1, name: Asha, phone: "9876543210", scan_token: tok-1, company: Acme, events: [5, 6]}
  - {id: 2, name: Ravi, phone: "9123456780", scan_token: tok-2, events: [5]}
`))
	if err != nil {
		t.Fatalf("seed: parse: %v", err)
	}
	if err := db.SeedDev(context.Background(), conn, db.DialectSQLite, fx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return fx
}

// setTimes pins created/updated timestamps on one allocation.
func setTimes(t *testing.T, conn *sql.DB, eventID, itemID, participantID, createdMs, updatedMs int64) {
	t.Helper()
	_, err := conn.ExecContext(context.Background(), `
UPDATE event_item_allocations SET created_at_ms = ?, updated_at_ms = ?
WHERE event_id = ? AND item_id = ? AND participant_id = ?`,
		createdMs, updatedMs, eventID, itemID, participantID)
	if err != nil {
		t.Fatalf("setTimes: %v", err)
	}
}
