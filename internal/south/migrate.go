package south

import (
	"context"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/fogwell/fogwell/internal/assettracking"
	"github.com/fogwell/fogwell/internal/common/health"
	"github.com/fogwell/fogwell/internal/readingstore"
	"github.com/fogwell/fogwell/internal/south/configuration"
	"github.com/fogwell/fogwell/internal/statistics"
)

// Migrate creates or updates the schemas of every configured SQL backend.
func Migrate(ctx context.Context, config configuration.SouthConfiguration) (err error) {
	if err := config.Validate(); err != nil {
		return err
	}
	r := newResources(config, health.NewMultiChecker())
	defer func() {
		if closeErr := r.Close(); closeErr != nil {
			err = multierror.Append(err, closeErr)
		}
	}()

	if config.UsesPostgres() {
		db, err := r.postgres(ctx)
		if err != nil {
			return err
		}
		if config.Storage.Backend == configuration.StoragePostgres {
			log.Info("Migrating postgres readings schema")
			if err := readingstore.MigratePostgres(ctx, db); err != nil {
				return err
			}
		}
		if config.Statistics.Backend == configuration.StatisticsPostgres {
			log.Info("Migrating postgres statistics schema")
			if err := statistics.MigratePostgres(ctx, db); err != nil {
				return err
			}
		}
		if config.AssetTracking.Backend == configuration.AssetTrackingPostgres {
			log.Info("Migrating postgres asset tracking schema")
			if err := assettracking.MigratePostgres(ctx, db); err != nil {
				return err
			}
		}
	}
	if config.UsesSqlite() {
		db, err := r.sqlite(ctx)
		if err != nil {
			return err
		}
		if config.Storage.Backend == configuration.StorageSqlite {
			log.Info("Migrating sqlite readings schema")
			if err := readingstore.MigrateSqlite(ctx, db); err != nil {
				return err
			}
		}
		if config.Statistics.Backend == configuration.StatisticsSqlite {
			log.Info("Migrating sqlite statistics schema")
			if err := statistics.MigrateSqlite(ctx, db); err != nil {
				return err
			}
		}
	}
	return nil
}
