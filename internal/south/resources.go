package south

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/go-redis/redis"
	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/fogwell/fogwell/internal/common/database"
	"github.com/fogwell/fogwell/internal/common/health"
	"github.com/fogwell/fogwell/internal/south/configuration"
)

const pingTimeout = 2 * time.Second

type closer struct {
	name  string
	close func() error
}

// resources owns the connections shared between backends. Each connection is opened on first use and
// closed, in reverse order of opening, by Close.
type resources struct {
	config  configuration.SouthConfiguration
	checker *health.MultiChecker
	closers []closer

	postgresDb *pgxpool.Pool
	sqliteDb   *goqu.Database
	redisDb    redis.UniversalClient
}

func newResources(config configuration.SouthConfiguration, checker *health.MultiChecker) *resources {
	return &resources{config: config, checker: checker}
}

func (r *resources) onClose(name string, f func() error) {
	r.closers = append(r.closers, closer{name: name, close: f})
}

func (r *resources) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if r.postgresDb != nil {
		return r.postgresDb, nil
	}
	db, err := database.OpenPgxPool(ctx, r.config.Postgres)
	if err != nil {
		return nil, err
	}
	r.postgresDb = db
	r.onClose("postgres", func() error {
		db.Close()
		return nil
	})
	r.checker.Add(health.CheckerFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		return errors.WithMessage(db.Ping(ctx), "postgres")
	}))
	return db, nil
}

func (r *resources) sqlite(ctx context.Context) (*goqu.Database, error) {
	if r.sqliteDb != nil {
		return r.sqliteDb, nil
	}
	db, closeDb, err := database.OpenSqlite(ctx, r.config.Sqlite)
	if err != nil {
		return nil, err
	}
	r.sqliteDb = db
	r.onClose("sqlite", func() error {
		closeDb()
		return nil
	})
	return db, nil
}

func (r *resources) redis() redis.UniversalClient {
	if r.redisDb != nil {
		return r.redisDb
	}
	db := redis.NewUniversalClient(r.config.Redis.AsUniversalOptions())
	r.redisDb = db
	r.onClose("redis", db.Close)
	r.checker.Add(health.CheckerFunc(func() error {
		return errors.WithMessage(db.Ping().Err(), "redis")
	}))
	return db
}

// Close closes everything opened so far, reporting every failure.
func (r *resources) Close() error {
	var result *multierror.Error
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.close(); err != nil {
			log.WithError(err).Warnf("Failed to close %s cleanly", c.name)
			result = multierror.Append(result, errors.WithMessagef(err, "closing %s", c.name))
		}
	}
	r.closers = nil
	return result.ErrorOrNil()
}
