package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fogwell/fogwell/internal/common/config"
	ingestconfig "github.com/fogwell/fogwell/internal/ingest/configuration"
)

func validConfig() SouthConfiguration {
	return SouthConfiguration{
		ServiceName:   "sinusoid",
		PluginName:    "sinusoid",
		Storage:       StorageConfig{Backend: StorageMemory},
		Statistics:    StatisticsConfig{Backend: StatisticsNone},
		AssetTracking: AssetTrackingConfig{Backend: AssetTrackingNone},
		Sinusoid:      SinusoidConfig{Asset: "sinusoid", Interval: time.Second},
	}
}

func TestLoadDefaultConfig(t *testing.T) {
	var c SouthConfiguration
	require.NoError(t, config.LoadConfig(viper.New(), &c, "../../../config/south", nil))

	assert.Equal(t, "sinusoid", c.ServiceName)
	assert.Equal(t, StorageSqlite, c.Storage.Backend)
	assert.Equal(t, 24*time.Hour, c.Storage.RedisRetention.ReadKeyRetention)
	assert.Equal(t, ingestconfig.BackpressureBlock, c.Ingest.Backpressure)
	assert.Equal(t, 100*time.Millisecond, c.Ingest.InsertRetryBackoff)
	assert.Equal(t, time.Second, c.Ingest.BatchTimeout)
	assert.Equal(t, "localhost", c.Postgres.Connection["host"])
	assert.Equal(t, []string{"localhost:6379"}, c.Redis.Addrs)
	assert.NoError(t, c.Validate())
}

func TestLoadConfig_UserOverrides(t *testing.T) {
	override := filepath.Join(t.TempDir(), "override.yaml")
	require.NoError(t, os.WriteFile(override, []byte("storage:\n  backend: redis\ningest:\n  backpressure: shed\n"), 0o600))
	t.Setenv("FOGWELL_SERVICENAME", "pump-south")

	var c SouthConfiguration
	require.NoError(t, config.LoadConfig(viper.New(), &c, "../../../config/south", []string{override}))

	assert.Equal(t, StorageRedis, c.Storage.Backend)
	assert.Equal(t, ingestconfig.BackpressureShed, c.Ingest.Backpressure)
	assert.Equal(t, "pump-south", c.ServiceName)
	assert.True(t, c.UsesRedis())
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate func(c *SouthConfiguration)
		valid  bool
	}{
		"valid":                 {func(c *SouthConfiguration) {}, true},
		"missing service name":  {func(c *SouthConfiguration) { c.ServiceName = "" }, false},
		"unknown storage":       {func(c *SouthConfiguration) { c.Storage.Backend = "mongo" }, false},
		"zero interval":         {func(c *SouthConfiguration) { c.Sinusoid.Interval = 0 }, false},
		"negative batch size":   {func(c *SouthConfiguration) { c.Ingest.BatchSize = -1 }, false},
		"sqlite without a path": {func(c *SouthConfiguration) { c.Statistics.Backend = StatisticsSqlite }, false},
		"sqlite with a path": {func(c *SouthConfiguration) {
			c.Storage.Backend = StorageSqlite
			c.Sqlite.Path = "/tmp/readings.db"
		}, true},
		"postgres without connection": {func(c *SouthConfiguration) { c.AssetTracking.Backend = AssetTrackingPostgres }, false},
		"nats without servers":        {func(c *SouthConfiguration) { c.AssetTracking.Backend = AssetTrackingNats }, false},
		"unused redis is not checked": {func(c *SouthConfiguration) { c.Redis.DB = 99 }, true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(&c)
			err := c.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
