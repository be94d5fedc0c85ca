package configuration

import (
	"github.com/pkg/errors"

	"github.com/fogwell/fogwell/internal/common/config"
)

// Validate checks the configuration, including the connection settings of every backend that is in use.
func (c SouthConfiguration) Validate() error {
	if err := config.Validate(c); err != nil {
		return err
	}
	if err := c.Ingest.Validate(); err != nil {
		return err
	}
	if c.UsesPostgres() {
		if err := config.Validate(c.Postgres); err != nil {
			return errors.WithMessage(err, "postgres")
		}
	}
	if c.UsesSqlite() {
		if err := config.Validate(c.Sqlite); err != nil {
			return errors.WithMessage(err, "sqlite")
		}
	}
	if c.UsesRedis() {
		if err := config.Validate(c.Redis); err != nil {
			return errors.WithMessage(err, "redis")
		}
	}
	if c.Storage.Backend == StoragePulsar {
		if err := config.Validate(c.Pulsar); err != nil {
			return errors.WithMessage(err, "pulsar")
		}
	}
	if c.Storage.Backend == StorageS3 {
		if err := config.Validate(c.S3); err != nil {
			return errors.WithMessage(err, "s3")
		}
	}
	if c.AssetTracking.Backend == AssetTrackingNats {
		if err := config.Validate(c.Nats); err != nil {
			return errors.WithMessage(err, "nats")
		}
	}
	return nil
}

func (c SouthConfiguration) UsesPostgres() bool {
	return c.Storage.Backend == StoragePostgres ||
		c.Statistics.Backend == StatisticsPostgres ||
		c.AssetTracking.Backend == AssetTrackingPostgres
}

func (c SouthConfiguration) UsesSqlite() bool {
	return c.Storage.Backend == StorageSqlite || c.Statistics.Backend == StatisticsSqlite
}

func (c SouthConfiguration) UsesRedis() bool {
	return c.Storage.Backend == StorageRedis || c.Statistics.Backend == StatisticsRedis
}
