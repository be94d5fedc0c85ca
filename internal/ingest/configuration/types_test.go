package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalised_Defaults(t *testing.T) {
	c := IngestConfig{}.Normalised()
	assert.Equal(t, IngestConfig{
		BufferSize:           DefaultLaneCount * DefaultBatchSize,
		MaxConcurrentInserts: DefaultLaneCount,
		BatchSize:            DefaultBatchSize,
		BatchTimeout:         DefaultBatchTimeout,
		StatsFlushInterval:   DefaultStatsFlushInterval,
		MaxInsertAttempts:    DefaultMaxInsertAttempts,
		InsertRetryBackoff:   0,
		Backpressure:         BackpressureBlock,
	}, c)
}

func TestNormalised_BufferRaisedToHoldOneBatchPerLane(t *testing.T) {
	c := IngestConfig{BufferSize: 10, MaxConcurrentInserts: 3, BatchSize: 8}.Normalised()
	assert.Equal(t, 24, c.BufferSize)
	assert.Equal(t, 8, c.LaneCapacity())
}

func TestLaneCapacity(t *testing.T) {
	tests := map[string]struct {
		config   IngestConfig
		expected int
	}{
		"even split":           {IngestConfig{BufferSize: 100, MaxConcurrentInserts: 4, BatchSize: 10}, 25},
		"rounds down":          {IngestConfig{BufferSize: 103, MaxConcurrentInserts: 4, BatchSize: 10}, 25},
		"raised to batch size": {IngestConfig{BufferSize: 30, MaxConcurrentInserts: 3, BatchSize: 10}, 10},
		"single lane":          {IngestConfig{BufferSize: 7, MaxConcurrentInserts: 1, BatchSize: 3}, 7},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.config.Normalised().LaneCapacity())
		})
	}
}

func TestBackpressureMode_UnmarshalText(t *testing.T) {
	var m BackpressureMode
	require.NoError(t, m.UnmarshalText([]byte(" Shed ")))
	assert.Equal(t, BackpressureShed, m)
	require.NoError(t, m.UnmarshalText([]byte("")))
	assert.Equal(t, BackpressureBlock, m)
	assert.Error(t, m.UnmarshalText([]byte("drop")))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, IngestConfig{BatchTimeout: time.Second}.Validate())
	assert.NoError(t, IngestConfig{Backpressure: BackpressureShed}.Validate())
	assert.Error(t, IngestConfig{Backpressure: "drop"}.Validate())
	assert.Error(t, IngestConfig{BatchSize: -1}.Validate())
}
