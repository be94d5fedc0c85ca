package configuration

import (
	"time"

	"github.com/fogwell/fogwell/internal/common/config"
	ingestconfig "github.com/fogwell/fogwell/internal/ingest/configuration"
)

type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StorageSqlite   StorageBackend = "sqlite"
	StoragePostgres StorageBackend = "postgres"
	StorageRedis    StorageBackend = "redis"
	StoragePulsar   StorageBackend = "pulsar"
	StorageS3       StorageBackend = "s3"
)

type StatisticsBackend string

const (
	StatisticsNone     StatisticsBackend = "none"
	StatisticsSqlite   StatisticsBackend = "sqlite"
	StatisticsPostgres StatisticsBackend = "postgres"
	StatisticsRedis    StatisticsBackend = "redis"
)

type AssetTrackingBackend string

const (
	AssetTrackingNone     AssetTrackingBackend = "none"
	AssetTrackingLog      AssetTrackingBackend = "log"
	AssetTrackingNats     AssetTrackingBackend = "nats"
	AssetTrackingPostgres AssetTrackingBackend = "postgres"
)

type SouthConfiguration struct {
	// Name of this south service; used in statistics keys and asset tracking
	ServiceName string `validate:"required"`
	// Name of the plugin producing readings
	PluginName string `validate:"required"`
	// Port metrics and health checks are served on
	MetricsPort uint16
	// How long shutdown may take to drain the buffer before remaining readings are abandoned
	ShutdownTimeout time.Duration `validate:"gte=0"`
	Ingest          ingestconfig.IngestConfig
	Storage         StorageConfig
	Statistics      StatisticsConfig
	AssetTracking   AssetTrackingConfig
	Sinusoid        SinusoidConfig

	// Connection settings. Only those used by a configured backend are validated.
	Postgres config.PostgresConfig `validate:"-"`
	Sqlite   config.SqliteConfig   `validate:"-"`
	Redis    config.RedisConfig    `validate:"-"`
	Pulsar   config.PulsarConfig   `validate:"-"`
	Nats     config.NatsConfig     `validate:"-"`
	S3       config.S3Config       `validate:"-"`
}

type StorageConfig struct {
	Backend StorageBackend `validate:"required,oneof=memory sqlite postgres redis pulsar s3"`
	// Only used by the redis backend
	RedisRetention RedisRetentionConfig
}

type RedisRetentionConfig struct {
	// How long a readings stream is kept after its last write
	RetentionDuration time.Duration `validate:"gte=0"`
	// Approximate maximum number of entries per stream; 0 means unbounded
	MaxStreamLength int64 `validate:"gte=0"`
	// How long read keys are remembered for de-duplication
	ReadKeyRetention time.Duration `validate:"gte=0"`
}

type StatisticsConfig struct {
	Backend StatisticsBackend `validate:"required,oneof=none sqlite postgres redis"`
}

type AssetTrackingConfig struct {
	Backend AssetTrackingBackend `validate:"required,oneof=none log nats postgres"`
}

type SinusoidConfig struct {
	// Asset code readings are recorded against
	Asset string `validate:"required"`
	// Time between readings
	Interval time.Duration `validate:"required,gt=0"`
	// Number of readings in one full cycle of the wave
	SamplesPerCycle int `validate:"gte=0"`
}
