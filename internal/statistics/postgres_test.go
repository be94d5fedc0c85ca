package statistics

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fogwell/fogwell/internal/common/database"
)

func withPostgresStore(t *testing.T, action func(store *PostgresStore)) {
	t.Helper()
	migrations, err := PostgresMigrations()
	require.NoError(t, err)
	err = database.WithTestDb(t, postgresNamespace, migrations, func(db *pgxpool.Pool) error {
		store, err := NewPostgresStore(db)
		require.NoError(t, err)
		action(store)
		return nil
	})
	require.NoError(t, err)
}

func TestNewPostgresStore_NilDb(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_RegisterAndUpdate(t *testing.T) {
	withPostgresStore(t, func(store *PostgresStore) {
		ctx := context.Background()
		require.NoError(t, store.Register(ctx, "READINGS", "Readings written to storage"))
		require.NoError(t, store.Register(ctx, "READINGS", "ignored"))
		require.NoError(t, store.Register(ctx, "SINUSOID_INGEST", "Readings received from service sinusoid"))

		require.NoError(t, store.UpdateBulk(ctx, map[string]int64{"READINGS": 5, "SINUSOID_INGEST": 5}))
		require.NoError(t, store.UpdateBulk(ctx, map[string]int64{"READINGS": 1}))

		readings, err := store.Get(ctx, "READINGS")
		require.NoError(t, err)
		assert.Equal(t, int64(6), readings)
	})
}

func TestPostgresStore_UpdateUnregisteredRollsBack(t *testing.T) {
	withPostgresStore(t, func(store *PostgresStore) {
		ctx := context.Background()
		require.NoError(t, store.Register(ctx, "READINGS", "Readings written to storage"))

		assert.Error(t, store.UpdateBulk(ctx, map[string]int64{"READINGS": 5, "UNKNOWN": 1}))

		readings, err := store.Get(ctx, "READINGS")
		require.NoError(t, err)
		assert.Equal(t, int64(0), readings)
	})
}
