// Package statistics contains the durable stores the ingest pipeline flushes its counters to.
package statistics

import (
	"context"
	"embed"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/fogwell/fogwell/internal/common/database"
	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
	"github.com/fogwell/fogwell/internal/ingest"
)

const postgresNamespace = "statistics"

//go:embed migrations/*.sql
var migrationFs embed.FS

func PostgresMigrations() ([]database.Migration, error) {
	return database.ReadMigrations(migrationFs, "migrations")
}

func MigratePostgres(ctx context.Context, db *pgxpool.Pool) error {
	migrations, err := PostgresMigrations()
	if err != nil {
		return err
	}
	return database.UpdateDatabase(ctx, db, postgresNamespace, migrations)
}

// PostgresStore keeps one row per statistic.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ ingest.StatisticsStore = &PostgresStore{}

func NewPostgresStore(db *pgxpool.Pool) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.WithStack(&fogwellerrors.ErrInvalidArgument{
			Name:    "db",
			Value:   "",
			Message: "db must be non-nil",
		})
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Register(ctx context.Context, key string, description string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO statistics (key, description) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
		key, description)
	return errors.WithStack(err)
}

// UpdateBulk adds every counter in a single transaction, in key order so concurrent flushes cannot deadlock.
func (s *PostgresStore) UpdateBulk(ctx context.Context, counters map[string]int64) error {
	if len(counters) == 0 {
		return nil
	}
	keys := maps.Keys(counters)
	slices.Sort(keys)
	return s.db.BeginTxFunc(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, key := range keys {
			batch.Queue(
				`UPDATE statistics SET previous_value = value, value = value + $2, ts = now() WHERE key = $1`,
				key, counters[key])
		}
		results := tx.SendBatch(ctx, batch)
		for _, key := range keys {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return errors.WithStack(err)
			}
			if tag.RowsAffected() == 0 {
				_ = results.Close()
				return errors.Errorf("statistic %s is not registered", key)
			}
		}
		return errors.WithStack(results.Close())
	})
}

func (s *PostgresStore) Get(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.db.QueryRow(ctx, `SELECT value FROM statistics WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return value, errors.WithStack(err)
}
