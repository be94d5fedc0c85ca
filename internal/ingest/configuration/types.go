package configuration

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// BackpressureMode decides what a producer experiences when every lane is full.
type BackpressureMode string

const (
	// BackpressureBlock suspends the producer until a lane has room or the pipeline stops.
	BackpressureBlock BackpressureMode = "block"
	// BackpressureShed drops the reading, counts it as discarded and returns immediately.
	BackpressureShed BackpressureMode = "shed"
)

func (m *BackpressureMode) UnmarshalText(text []byte) error {
	switch mode := BackpressureMode(strings.ToLower(strings.TrimSpace(string(text)))); mode {
	case BackpressureBlock, BackpressureShed:
		*m = mode
		return nil
	case "":
		*m = BackpressureBlock
		return nil
	default:
		return errors.Errorf("unknown backpressure mode %q; expected %q or %q", string(text), BackpressureBlock, BackpressureShed)
	}
}

func (m BackpressureMode) String() string {
	return string(m)
}

const (
	DefaultBufferSize         = 4096
	DefaultLaneCount          = 4
	DefaultBatchSize          = 1024
	DefaultBatchTimeout       = time.Second
	DefaultStatsFlushInterval = 5 * time.Second
	DefaultMaxInsertAttempts  = 2
	DefaultInsertRetryBackoff = 100 * time.Millisecond
)

type IngestConfig struct {
	// Total number of readings that can be buffered across all lanes
	BufferSize int `validate:"gte=0"`
	// Number of lanes readings are spread over
	MaxConcurrentInserts int `validate:"gte=0"`
	// Number of readings written to storage in one call
	BatchSize int `validate:"gte=0"`
	// Maximum time a lane waits to fill before a partial batch is written
	BatchTimeout time.Duration `validate:"gte=0"`
	// How often statistics counters are written to the statistics store
	StatsFlushInterval time.Duration `validate:"gte=0"`
	// Number of times a batch is offered to storage before it is discarded
	MaxInsertAttempts int `validate:"gte=0"`
	// Wait between insert attempts
	InsertRetryBackoff time.Duration `validate:"gte=0"`
	// What producers experience when the buffer is full
	Backpressure BackpressureMode `validate:"omitempty,oneof=block shed"`
	// Skip partial batches while the previous write happened less than BatchTimeout ago
	Debounce bool
}

// Normalised returns a copy of c with defaults applied to unset fields and sizes raised so every lane
// can hold at least one full batch.
func (c IngestConfig) Normalised() IngestConfig {
	if c.MaxConcurrentInserts <= 0 {
		c.MaxConcurrentInserts = DefaultLaneCount
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.BufferSize < c.MaxConcurrentInserts*c.BatchSize {
		c.BufferSize = c.MaxConcurrentInserts * c.BatchSize
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	if c.StatsFlushInterval <= 0 {
		c.StatsFlushInterval = DefaultStatsFlushInterval
	}
	if c.MaxInsertAttempts <= 0 {
		c.MaxInsertAttempts = DefaultMaxInsertAttempts
	}
	if c.InsertRetryBackoff < 0 {
		c.InsertRetryBackoff = 0
	}
	if c.Backpressure == "" {
		c.Backpressure = BackpressureBlock
	}
	return c
}

// LaneCapacity is the number of readings a single lane may hold. Only meaningful on a normalised config.
func (c IngestConfig) LaneCapacity() int {
	capacity := c.BufferSize / c.MaxConcurrentInserts
	if capacity < c.BatchSize {
		capacity = c.BatchSize
	}
	return capacity
}
