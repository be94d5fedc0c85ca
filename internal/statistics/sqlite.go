package statistics

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/fogwell/fogwell/internal/ingest"
)

const (
	sqliteTable  = "statistics"
	sqliteSchema = `
CREATE TABLE IF NOT EXISTS statistics (
    key            TEXT PRIMARY KEY,
    description    TEXT NOT NULL,
    value          INTEGER NOT NULL DEFAULT 0,
    previous_value INTEGER NOT NULL DEFAULT 0,
    ts             TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
);`
)

type SqliteStore struct {
	db *goqu.Database
}

var _ ingest.StatisticsStore = &SqliteStore{}

func NewSqliteStore(db *goqu.Database) *SqliteStore {
	return &SqliteStore{db: db}
}

func MigrateSqlite(ctx context.Context, db *goqu.Database) error {
	_, err := db.ExecContext(ctx, sqliteSchema)
	return errors.WithStack(err)
}

func (s *SqliteStore) Register(ctx context.Context, key string, description string) error {
	_, err := s.db.Insert(sqliteTable).
		Rows(goqu.Record{"key": key, "description": description}).
		OnConflict(goqu.DoNothing()).
		Executor().
		ExecContext(ctx)
	return errors.WithStack(err)
}

func (s *SqliteStore) UpdateBulk(ctx context.Context, counters map[string]int64) error {
	if len(counters) == 0 {
		return nil
	}
	keys := maps.Keys(counters)
	slices.Sort(keys)
	return s.db.WithTx(func(tx *goqu.TxDatabase) error {
		for _, key := range keys {
			result, err := tx.Update(sqliteTable).
				Set(goqu.Record{
					"previous_value": goqu.C("value"),
					"value":          goqu.L("value + ?", counters[key]),
					"ts":             goqu.L("strftime('%Y-%m-%d %H:%M:%f', 'now')"),
				}).
				Where(goqu.C("key").Eq(key)).
				Executor().
				ExecContext(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
			if n, err := result.RowsAffected(); err == nil && n == 0 {
				return errors.Errorf("statistic %s is not registered", key)
			}
		}
		return nil
	})
}

func (s *SqliteStore) Get(ctx context.Context, key string) (int64, error) {
	var value int64
	found, err := s.db.From(sqliteTable).
		Select("value").
		Where(goqu.C("key").Eq(key)).
		ScanValContext(ctx, &value)
	if err != nil || !found {
		return 0, errors.WithStack(err)
	}
	return value, nil
}
