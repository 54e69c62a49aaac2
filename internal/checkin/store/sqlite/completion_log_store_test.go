package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
	sqlitestore "github.com/BrandonDHaskell/checkin/internal/checkin/store/sqlite"
)

func TestCompletionLogStore_AppendAndList(t *testing.T) {
	conn := openTestDB(t)
	seed(t, conn)
	ls := sqlitestore.NewCompletionLogStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	staff := int64(3)
	device := "ios/gate-2"
	require.NoError(t, ls.Append(ctx, store.CompletionLogEntry{
		EntryID: "01J0000000000000000000000A", EventID: 5, ItemID: 11, ParticipantID: 1,
		StaffID: &staff, DeviceInfo: &device, LoggedAt: base,
	}))
	require.NoError(t, ls.Append(ctx, store.CompletionLogEntry{
		EntryID: "01J0000000000000000000000B", EventID: 5, ItemID: 12, ParticipantID: 1, LoggedAt: base,
	}))

	entries, err := ls.ListForParticipant(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(11), entries[0].ItemID)
	require.NotNil(t, entries[0].StaffID)
	assert.Equal(t, int64(3), *entries[0].StaffID)
	assert.Equal(t, device, *entries[0].DeviceInfo)
	assert.True(t, entries[0].LoggedAt.Equal(base))

	assert.Nil(t, entries[1].StaffID)
	assert.Nil(t, entries[1].DeviceInfo)
}

func TestCompletionLogStore_OneEntryPerTriple(t *testing.T) {
	conn := openTestDB(t)
	ls := sqlitestore.NewCompletionLogStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	first := store.CompletionLogEntry{EntryID: "01J0000000000000000000000A", EventID: 5, ItemID: 11, ParticipantID: 1, LoggedAt: base}
	second := first
	second.EntryID = "01J0000000000000000000000B"

	wrote, err := ls.AppendIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = ls.AppendIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, wrote)

	assert.ErrorIs(t, ls.Append(ctx, second), store.ErrConstraint)

	entries, err := ls.ListForParticipant(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, first.EntryID, entries[0].EntryID)
}

func TestCompletionLogStore_DuplicateEntryIDIsConstraintError(t *testing.T) {
	conn := openTestDB(t)
	ls := sqlitestore.NewCompletionLogStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	e := store.CompletionLogEntry{EntryID: "dup", EventID: 1, ItemID: 1, ParticipantID: 1, LoggedAt: base}
	require.NoError(t, ls.Append(ctx, e))
	err := ls.Append(ctx, e)
	assert.ErrorIs(t, err, store.ErrConstraint)
}
