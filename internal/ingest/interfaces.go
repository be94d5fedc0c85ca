package ingest

import "context"

// ReadingStore durably appends batches of readings.
// A failed append should return a *fogwellerrors.ErrStorage; Retryable on that error decides whether the
// batch is offered again or discarded. Any other error type is treated as permanent.
type ReadingStore interface {
	Append(ctx context.Context, batch []*ReadingRecord) error
}

// StatisticsStore persists named counters.
type StatisticsStore interface {
	// Register creates key with the given description if it does not already exist. Must be idempotent.
	Register(ctx context.Context, key string, description string) error
	// UpdateBulk adds each value to its counter.
	UpdateBulk(ctx context.Context, counters map[string]int64) error
}

// AssetTrackingEvent records that a service/plugin pair produced an event for an asset.
type AssetTrackingEvent struct {
	Asset   string `json:"asset"`
	Event   string `json:"event"`
	Service string `json:"service"`
	Plugin  string `json:"plugin"`
}

// Emitter forwards asset tracking events to the asset tracking service.
type Emitter interface {
	Emit(ctx context.Context, event AssetTrackingEvent) error
}

type noopStatisticsStore struct{}

func (noopStatisticsStore) Register(context.Context, string, string) error { return nil }

func (noopStatisticsStore) UpdateBulk(context.Context, map[string]int64) error { return nil }

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, AssetTrackingEvent) error { return nil }
