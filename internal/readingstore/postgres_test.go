package readingstore

import (
	"context"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fogwell/fogwell/internal/common/database"
	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
)

func withPostgresStore(t *testing.T, action func(db *pgxpool.Pool, store *PostgresStore)) {
	t.Helper()
	migrations, err := PostgresMigrations()
	require.NoError(t, err)
	err = database.WithTestDb(t, postgresNamespace, migrations, func(db *pgxpool.Pool) error {
		action(db, NewPostgresStore(db))
		return nil
	})
	require.NoError(t, err)
}

func TestPostgresStore_Append(t *testing.T) {
	withPostgresStore(t, func(db *pgxpool.Pool, store *PostgresStore) {
		ctx := context.Background()
		batch := testBatch("pump", 10, true)
		require.NoError(t, store.Append(ctx, batch))
		// Retrying the same batch must not duplicate rows.
		require.NoError(t, store.Append(ctx, batch))
		require.NoError(t, store.Append(ctx, testBatch("fan", 2, false)))

		var count int
		require.NoError(t, db.QueryRow(ctx, "SELECT count(*) FROM readings").Scan(&count))
		assert.Equal(t, 12, count)

		var label string
		require.NoError(t, db.QueryRow(ctx,
			"SELECT reading->>'label' FROM readings WHERE asset_code = 'pump' ORDER BY user_ts DESC LIMIT 1").Scan(&label))
		assert.Equal(t, "r9", label)
	})
}

func TestPostgresMigrations(t *testing.T) {
	migrations, err := PostgresMigrations()
	require.NoError(t, err)
	assert.Len(t, migrations, 1)
}

func TestClassifyPostgresError(t *testing.T) {
	tests := map[string]struct {
		err       error
		retryable bool
	}{
		"connection failure":    {&pgconn.PgError{Code: pgerrcode.ConnectionFailure}, true},
		"too many connections":  {&pgconn.PgError{Code: pgerrcode.TooManyConnections}, true},
		"serialization failure": {errors.WithStack(&pgconn.PgError{Code: pgerrcode.SerializationFailure}), true},
		"deadlock":              {&pgconn.PgError{Code: pgerrcode.DeadlockDetected}, true},
		"undefined table":       {&pgconn.PgError{Code: pgerrcode.UndefinedTable}, false},
		"bad json":              {&pgconn.PgError{Code: pgerrcode.InvalidTextRepresentation}, false},
		"deadline":              {context.DeadlineExceeded, true},
		"cancelled":             {context.Canceled, false},
		"network":               {&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		"other":                 {errors.New("boom"), false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := ClassifyPostgresError(tc.err)
			var storageErr *fogwellerrors.ErrStorage
			require.True(t, errors.As(err, &storageErr))
			assert.Equal(t, postgresSource, storageErr.Source)
			assert.Equal(t, tc.retryable, storageErr.Retryable)
		})
	}
	assert.Nil(t, ClassifyPostgresError(nil))
}
