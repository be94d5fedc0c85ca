package readingstore

import (
	"context"
	"encoding/json"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"

	"github.com/fogwell/fogwell/internal/common/database"
	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
	"github.com/fogwell/fogwell/internal/common/util"
	"github.com/fogwell/fogwell/internal/ingest"
)

const (
	sqliteSource = "sqlite"
	sqliteTable  = "readings"
	// Keeps each statement's bind variables under SQLite's per-statement limit.
	sqliteRowsPerInsert = 1000
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS readings (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    asset_code TEXT NOT NULL,
    reading    TEXT NOT NULL DEFAULT '{}',
    user_ts    TEXT NOT NULL,
    ts         TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),
    read_key   TEXT UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_readings_asset_user_ts ON readings (asset_code, user_ts);`

// SqliteStore writes each batch in one transaction of multi-row INSERT OR IGNORE statements.
type SqliteStore struct {
	db *goqu.Database
}

func NewSqliteStore(db *goqu.Database) *SqliteStore {
	return &SqliteStore{db: db}
}

// MigrateSqlite creates the readings table if it does not exist.
func MigrateSqlite(ctx context.Context, db *goqu.Database) error {
	_, err := db.ExecContext(ctx, sqliteSchema)
	return errors.WithStack(err)
}

func (s *SqliteStore) Append(ctx context.Context, batch []*ingest.ReadingRecord) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([]interface{}, len(batch))
	for i, r := range batch {
		payload, err := json.Marshal(r.Reading)
		if err != nil {
			return fogwellerrors.NewStorageError(sqliteSource, errors.WithStack(err), false)
		}
		var readKey interface{}
		if r.ReadKey != nil {
			readKey = r.ReadKey.String()
		}
		rows[i] = goqu.Record{
			"asset_code": r.AssetCode,
			"reading":    string(payload),
			"user_ts":    r.UserTimestamp.UTC().Format(sqliteTimeFormat),
			"read_key":   readKey,
		}
	}

	err := s.db.WithTx(func(tx *goqu.TxDatabase) error {
		for _, chunk := range util.Batch(rows, sqliteRowsPerInsert) {
			_, err := tx.Insert(sqliteTable).
				Rows(chunk...).
				OnConflict(goqu.DoNothing()).
				Executor().
				ExecContext(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return database.ClassifySqliteError(sqliteSource, errors.WithStack(err))
	}
	return nil
}

const sqliteTimeFormat = "2006-01-02 15:04:05.000000"
