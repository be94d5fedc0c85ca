package config

import (
	"time"
)

type PostgresConfig struct {
	// libpq-style key/value connection parameters, e.g. host, port, user, password, dbname, sslmode
	Connection      map[string]string `validate:"required"`
	MaxOpenConns    int32
	MaxConnIdleTime time.Duration
	MaxConnLifetime time.Duration
}

type SqliteConfig struct {
	// Path to the database file; "~" is expanded to the user's home directory
	Path        string `validate:"required"`
	BusyTimeout time.Duration
}

type PulsarConfig struct {
	// Pulsar URL
	URL string `validate:"required"`
	// Topic that reading batches are published to
	Topic string `validate:"required"`
	// Path to the trusted TLS certificate file (must exist)
	TLSTrustCertsFilePath string
	// Whether Pulsar client accept untrusted TLS certificate from broker
	TLSAllowInsecureConnection bool
	// Whether the Pulsar client will validate the hostname in the broker's TLS Cert matches the actual hostname.
	TLSValidateHostname bool
	// Max number of connections to a single broker that will be kept in the pool. (Default: 1 connection)
	MaxConnectionsPerBroker int
	// Whether Pulsar authentication is enabled
	AuthenticationEnabled bool
	// Authentication type. For now only "JWT" auth is valid
	AuthenticationType string
	// Path to the JWT token (must exist). This must be set if AuthenticationType is "JWT"
	JwtTokenPath string
	// Timeout for a single message send
	SendTimeout time.Duration
	// Maximum size of the producer's pending queue
	MaxPendingMessages int
}

type NatsConfig struct {
	Servers []string `validate:"required"`
	// Subject asset-tracking events are published on
	Subject     string `validate:"required"`
	ConnTimeout time.Duration
}

type S3Config struct {
	Bucket string `validate:"required"`
	// Object key prefix; batches are written as <Prefix>/<service>/<yyyy/mm/dd>/<batch id>.ndjson
	Prefix string
	Region string
	// Optional endpoint override, e.g. for MinIO
	Endpoint     string
	UsePathStyle bool
}
