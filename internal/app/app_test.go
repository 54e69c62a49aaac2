package app_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/checkin/internal/app"
	"github.com/BrandonDHaskell/checkin/internal/auth"
	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
	"github.com/BrandonDHaskell/checkin/internal/config"
	"github.com/BrandonDHaskell/checkin/internal/db"
	"github.com/BrandonDHaskell/checkin/internal/fixture"
)

func completeFirst(t *testing.T, s *app.Stores) {
	t.Helper()
	ctx := context.Background()

	p, err := s.Participants.GetByPhone(ctx, "9876543210")
	require.NoError(t, err)

	rec := store.CompletionRecord{EventID: 1, ItemID: 101, ParticipantID: p.ID}
	n, err := s.Allocations.MarkComplete(ctx, rec, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Allocations.MarkComplete(ctx, rec, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	gaps, err := s.Gaps.FindUnlogged(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	assert.Len(t, gaps, 1)

	wrote, err := s.Backfill.AppendIfAbsent(ctx, store.CompletionLogEntry{
		EntryID: "01J0000000000000000000000A", EventID: 1, ItemID: 101, ParticipantID: p.ID, LoggedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, wrote)

	gaps, err = s.Gaps.FindUnlogged(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestOpenStores_Memory(t *testing.T) {
	s, err := app.OpenStores(context.Background(), config.Config{Store: "memory"}, fixture.Default())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	completeFirst(t, s)
}

func TestOpenStores_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{Store: "sqlite", Env: "dev", DBPath: filepath.Join(t.TempDir(), "checkin.db")}

	conn, dialect, err := app.OpenDB(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, db.SeedDev(ctx, conn, dialect, fixture.Default()))
	require.NoError(t, conn.Close())

	s, err := app.OpenStores(ctx, cfg, fixture.Fixture{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	completeFirst(t, s)
}

func TestOpenStores_Unknown(t *testing.T) {
	_, err := app.OpenStores(context.Background(), config.Config{Store: "mongo"}, fixture.Fixture{})
	assert.Error(t, err)

	_, _, err = app.OpenDB(context.Background(), config.Config{Store: "memory"})
	assert.Error(t, err)
}

func TestLoadFixture_DefaultWhenEmpty(t *testing.T) {
	fx, err := app.LoadFixture("")
	require.NoError(t, err)
	assert.NotEmpty(t, fx.Participants)
}

func TestNew_RequiresSecretWhenAuthRequired(t *testing.T) {
	s, err := app.OpenStores(context.Background(), config.Config{Store: "memory"}, fixture.Default())
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	_, err = app.New(config.Config{RequireStaffAuth: true}, s, logger)
	assert.ErrorIs(t, err, auth.ErrMissingSecret)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, err := app.OpenStores(context.Background(), config.Config{Store: "memory"}, fixture.Default())
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	a, err := app.New(config.Config{
		Store:    "memory",
		HTTPAddr: "127.0.0.1:0",
		GRPCAddr: "127.0.0.1:0",
	}, s, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
