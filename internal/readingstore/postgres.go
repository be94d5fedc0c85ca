package readingstore

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"github.com/fogwell/fogwell/internal/common/database"
	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
	"github.com/fogwell/fogwell/internal/ingest"
)

const (
	postgresSource     = "postgres"
	postgresNamespace  = "readings"
	postgresReadings   = "readings"
	postgresMigrations = "migrations"
)

//go:embed migrations/*.sql
var migrationFs embed.FS

// PostgresMigrations returns the schema the postgres store writes to.
func PostgresMigrations() ([]database.Migration, error) {
	return database.ReadMigrations(migrationFs, postgresMigrations)
}

// MigratePostgres brings the readings schema up to date.
func MigratePostgres(ctx context.Context, db *pgxpool.Pool) error {
	migrations, err := PostgresMigrations()
	if err != nil {
		return err
	}
	return database.UpdateDatabase(ctx, db, postgresNamespace, migrations)
}

// PostgresStore copies each batch into a staging table and inserts it into readings in one transaction.
// Rows whose read_key already exists are skipped.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, batch []*ingest.ReadingRecord) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([][]interface{}, len(batch))
	for i, r := range batch {
		payload, err := json.Marshal(r.Reading)
		if err != nil {
			return fogwellerrors.NewStorageError(postgresSource, errors.WithStack(err), false)
		}
		readKey := pgtype.UUID{Status: pgtype.Null}
		if r.ReadKey != nil {
			readKey = pgtype.UUID{Bytes: *r.ReadKey, Status: pgtype.Present}
		}
		rows[i] = []interface{}{
			r.AssetCode,
			pgtype.JSONB{Bytes: payload, Status: pgtype.Present},
			r.UserTimestamp,
			readKey,
		}
	}

	tmpTable := database.UniqueTableName(postgresReadings)

	createTmp := func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, fmt.Sprintf(`
				CREATE TEMPORARY TABLE %s
				(
				  asset_code varchar(255),
				  reading    jsonb,
				  user_ts    timestamptz,
				  read_key   uuid
				) ON COMMIT DROP;`, tmpTable))
		return err
	}

	insertTmp := func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{tmpTable},
			[]string{"asset_code", "reading", "user_ts", "read_key"},
			pgx.CopyFromRows(rows),
		)
		return err
	}

	copyToDest := func(tx pgx.Tx) error {
		_, err := tx.Exec(
			ctx,
			fmt.Sprintf(`
					INSERT INTO %s (asset_code, reading, user_ts, read_key) SELECT * FROM %s
					ON CONFLICT (read_key) DO NOTHING`, postgresReadings, tmpTable),
		)
		return err
	}

	if err := database.BatchInsert(ctx, s.db, createTmp, insertTmp, copyToDest); err != nil {
		return ClassifyPostgresError(err)
	}
	return nil
}

// ClassifyPostgresError wraps err as an ErrStorage, marking connection failures, serialization failures,
// deadlocks and resource exhaustion as retryable.
func ClassifyPostgresError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Classes 08 (connection exception) and 53 (insufficient resources).
		retryable := strings.HasPrefix(pgErr.Code, "08") ||
			strings.HasPrefix(pgErr.Code, "53") ||
			pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgErr.Code == pgerrcode.AdminShutdown ||
			pgErr.Code == pgerrcode.CannotConnectNow
		return fogwellerrors.NewStorageError(postgresSource, err, retryable)
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fogwellerrors.NewStorageError(postgresSource, err, true)
	}
	if errors.Is(err, context.Canceled) {
		return fogwellerrors.NewStorageError(postgresSource, err, false)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.SafeToRetry(err) {
		return fogwellerrors.NewStorageError(postgresSource, err, true)
	}
	return fogwellerrors.NewStorageError(postgresSource, err, false)
}
