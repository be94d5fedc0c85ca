package statistics

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fogwell/fogwell/internal/common/config"
	"github.com/fogwell/fogwell/internal/common/database"
)

func withSqliteStore(t *testing.T, action func(store *SqliteStore)) {
	t.Helper()
	ctx := context.Background()
	db, closeDb, err := database.OpenSqlite(ctx, config.SqliteConfig{Path: filepath.Join(t.TempDir(), "stats.db")})
	require.NoError(t, err)
	defer closeDb()
	require.NoError(t, MigrateSqlite(ctx, db))
	action(NewSqliteStore(db))
}

func TestSqliteStore_RegisterAndUpdate(t *testing.T) {
	withSqliteStore(t, func(store *SqliteStore) {
		ctx := context.Background()
		require.NoError(t, store.Register(ctx, "READINGS", "Readings written to storage"))
		require.NoError(t, store.Register(ctx, "READINGS", "ignored"))
		require.NoError(t, store.Register(ctx, "INGEST_PUMP", "Readings received from asset pump"))

		require.NoError(t, store.UpdateBulk(ctx, map[string]int64{"READINGS": 3, "INGEST_PUMP": 2}))
		require.NoError(t, store.UpdateBulk(ctx, map[string]int64{"READINGS": 4}))
		require.NoError(t, store.UpdateBulk(ctx, nil))

		readings, err := store.Get(ctx, "READINGS")
		require.NoError(t, err)
		assert.Equal(t, int64(7), readings)

		pump, err := store.Get(ctx, "INGEST_PUMP")
		require.NoError(t, err)
		assert.Equal(t, int64(2), pump)

		missing, err := store.Get(ctx, "NOPE")
		require.NoError(t, err)
		assert.Equal(t, int64(0), missing)
	})
}

func TestSqliteStore_UpdateUnregisteredRollsBack(t *testing.T) {
	withSqliteStore(t, func(store *SqliteStore) {
		ctx := context.Background()
		require.NoError(t, store.Register(ctx, "READINGS", "Readings written to storage"))

		err := store.UpdateBulk(ctx, map[string]int64{"READINGS": 5, "UNKNOWN": 1})
		assert.Error(t, err)

		readings, err := store.Get(ctx, "READINGS")
		require.NoError(t, err)
		assert.Equal(t, int64(0), readings)
	})
}
