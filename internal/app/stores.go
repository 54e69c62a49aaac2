// Package app assembles the check-in engine from configuration: it opens
// the selected backend, builds the services and runs the listeners.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
	"github.com/BrandonDHaskell/checkin/internal/checkin/store/memory"
	"github.com/BrandonDHaskell/checkin/internal/checkin/store/postgres"
	"github.com/BrandonDHaskell/checkin/internal/checkin/store/sqlite"
	"github.com/BrandonDHaskell/checkin/internal/config"
	"github.com/BrandonDHaskell/checkin/internal/db"
	"github.com/BrandonDHaskell/checkin/internal/fixture"
)

// Stores is one backend's implementation of every store interface.
type Stores struct {
	Participants store.ParticipantStore
	Allocations  store.AllocationStore
	Logs         store.CompletionLogStore
	Backfill     store.LogBackfiller
	Gaps         store.GapFinder

	closers []func() error
}

func (s *Stores) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LoadFixture reads the seed file, or returns the built-in dev fixture
// when path is empty.
func LoadFixture(path string) (fixture.Fixture, error) {
	if path == "" {
		return fixture.Default(), nil
	}
	return fixture.Load(path)
}

// OpenStores opens and migrates the backend named by cfg.Store. The
// memory backend is seeded from fx; the SQL backends are left as found.
func OpenStores(ctx context.Context, cfg config.Config, fx fixture.Fixture) (*Stores, error) {
	switch cfg.Store {
	case "memory":
		ps := memory.NewParticipantStore()
		as := memory.NewAllocationStore(ps)
		ls := memory.NewCompletionLogStore()
		if err := memory.Seed(fx, ps, as); err != nil {
			return nil, fmt.Errorf("seed memory store: %w", err)
		}
		return &Stores{
			Participants: ps,
			Allocations:  as,
			Logs:         ls,
			Backfill:     ls,
			Gaps:         memory.NewGapFinder(as, ls),
		}, nil

	case "postgres":
		conn, err := db.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		as := postgres.NewAllocationStore(conn)
		ls := postgres.NewCompletionLogStore(conn)
		return &Stores{
			Participants: postgres.NewParticipantStore(conn),
			Allocations:  as,
			Logs:         ls,
			Backfill:     ls,
			Gaps:         as,
			closers:      []func() error{conn.Close},
		}, nil

	case "sqlite", "":
		conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
		if err != nil {
			return nil, err
		}
		w := db.NewWorker(conn)
		as := sqlite.NewAllocationStore(conn, w)
		ls := sqlite.NewCompletionLogStore(conn, w)
		return &Stores{
			Participants: sqlite.NewParticipantStore(conn),
			Allocations:  as,
			Logs:         ls,
			Backfill:     ls,
			Gaps:         as,
			closers: []func() error{
				conn.Close,
				func() error { w.Close(); return nil },
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// OpenDB opens and migrates the SQL backend named by cfg.Store without
// building stores. Used by the migrate and seed-dev commands.
func OpenDB(ctx context.Context, cfg config.Config) (*sql.DB, db.Dialect, error) {
	switch cfg.Store {
	case "postgres":
		conn, err := db.OpenPostgres(ctx, cfg.PostgresDSN)
		return conn, db.DialectPostgres, err
	case "sqlite", "":
		conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
		return conn, db.DialectSQLite, err
	default:
		return nil, "", fmt.Errorf("store %q has no database", cfg.Store)
	}
}
