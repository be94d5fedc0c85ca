package south

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/fogwell/fogwell/internal/assettracking"
	"github.com/fogwell/fogwell/internal/common/health"
	"github.com/fogwell/fogwell/internal/common/pulsarutils"
	"github.com/fogwell/fogwell/internal/common/s3utils"
	"github.com/fogwell/fogwell/internal/ingest"
	"github.com/fogwell/fogwell/internal/readingstore"
	"github.com/fogwell/fogwell/internal/south/configuration"
	"github.com/fogwell/fogwell/internal/statistics"
)

func (r *resources) readingStore(ctx context.Context) (ingest.ReadingStore, error) {
	switch r.config.Storage.Backend {
	case configuration.StorageMemory:
		return readingstore.NewMemoryStore()
	case configuration.StorageSqlite:
		db, err := r.sqlite(ctx)
		if err != nil {
			return nil, err
		}
		if err := readingstore.MigrateSqlite(ctx, db); err != nil {
			return nil, err
		}
		return readingstore.NewSqliteStore(db), nil
	case configuration.StoragePostgres:
		db, err := r.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return readingstore.NewPostgresStore(db), nil
	case configuration.StorageRedis:
		retention := r.config.Storage.RedisRetention
		return readingstore.NewRedisStore(r.redis(), readingstore.RedisRetentionPolicy{
			RetentionDuration: retention.RetentionDuration,
			MaxStreamLength:   retention.MaxStreamLength,
			ReadKeyRetention:  retention.ReadKeyRetention,
		}), nil
	case configuration.StoragePulsar:
		client, err := pulsarutils.NewPulsarClient(&r.config.Pulsar)
		if err != nil {
			return nil, err
		}
		r.onClose("pulsar client", func() error {
			client.Close()
			return nil
		})
		producer, err := pulsarutils.NewReadingsProducer(client, &r.config.Pulsar, r.config.ServiceName)
		if err != nil {
			return nil, err
		}
		r.onClose("pulsar producer", func() error {
			producer.Close()
			return nil
		})
		return readingstore.NewPulsarStore(producer), nil
	case configuration.StorageS3:
		client, err := s3utils.NewS3Client(ctx, r.config.S3)
		if err != nil {
			return nil, err
		}
		return readingstore.NewS3Store(client, r.config.S3.Bucket, r.config.S3.Prefix, r.config.ServiceName), nil
	}
	return nil, errors.Errorf("unknown storage backend %q", r.config.Storage.Backend)
}

// statisticsStore returns nil when statistics are not persisted.
func (r *resources) statisticsStore(ctx context.Context) (ingest.StatisticsStore, error) {
	switch r.config.Statistics.Backend {
	case configuration.StatisticsNone:
		return nil, nil
	case configuration.StatisticsSqlite:
		db, err := r.sqlite(ctx)
		if err != nil {
			return nil, err
		}
		if err := statistics.MigrateSqlite(ctx, db); err != nil {
			return nil, err
		}
		return statistics.NewSqliteStore(db), nil
	case configuration.StatisticsPostgres:
		db, err := r.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return statistics.NewPostgresStore(db)
	case configuration.StatisticsRedis:
		return statistics.NewRedisStore(r.redis()), nil
	}
	return nil, errors.Errorf("unknown statistics backend %q", r.config.Statistics.Backend)
}

// emitter returns nil when asset tracking is disabled.
func (r *resources) emitter(ctx context.Context) (ingest.Emitter, error) {
	switch r.config.AssetTracking.Backend {
	case configuration.AssetTrackingNone:
		return nil, nil
	case configuration.AssetTrackingLog:
		return assettracking.NewLogEmitter(log.WithField("service", r.config.ServiceName)), nil
	case configuration.AssetTrackingNats:
		conn, err := assettracking.ConnectNats(r.config.Nats, r.config.ServiceName)
		if err != nil {
			return nil, err
		}
		r.onClose("nats", func() error {
			return conn.Drain()
		})
		r.checker.Add(health.CheckerFunc(func() error {
			if status := conn.Status(); status != nats.CONNECTED {
				return errors.Errorf("nats connection is %v", status)
			}
			return nil
		}))
		return assettracking.NewNatsEmitter(conn, r.config.Nats.Subject), nil
	case configuration.AssetTrackingPostgres:
		db, err := r.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return assettracking.NewPostgresEmitter(db), nil
	}
	return nil, errors.Errorf("unknown asset tracking backend %q", r.config.AssetTracking.Backend)
}
