package ingest

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fogwell/fogwell/internal/ingest/metrics"
)

const (
	EventIngest = "Ingest"

	trackingQueueSize   = 1024
	trackingEmitTimeout = 5 * time.Second
)

// AssetTracker emits one tracking event per distinct (asset, event, service, plugin) for the lifetime of
// the process. Emission happens on a goroutine launched by Start so Track never blocks the caller; events
// that cannot be queued or emitted are logged and not retried.
type AssetTracker struct {
	emitter Emitter
	metrics *metrics.Metrics
	log     *log.Entry

	mu      sync.Mutex
	seen    map[AssetTrackingEvent]struct{}
	queue   chan AssetTrackingEvent
	started bool
	closed  bool
	done    chan struct{}
}

func NewAssetTracker(emitter Emitter, m *metrics.Metrics, logger *log.Entry) *AssetTracker {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	return &AssetTracker{
		emitter: emitter,
		metrics: m,
		log:     logger,
		seen:    map[AssetTrackingEvent]struct{}{},
		queue:   make(chan AssetTrackingEvent, trackingQueueSize),
		done:    make(chan struct{}),
	}
}

// Start launches the emitting goroutine. Events tracked earlier stay queued until then.
// Does nothing once the tracker has been started or closed.
func (t *AssetTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.closed {
		return
	}
	t.started = true
	go t.run()
}

// Track queues a tracking event unless the same tuple has been tracked before.
// Returns true if an event was queued.
func (t *AssetTracker) Track(asset, event, service, plugin string) bool {
	e := AssetTrackingEvent{Asset: asset, Event: event, Service: service, Plugin: plugin}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen[e]; ok {
		return false
	}
	t.seen[e] = struct{}{}
	if t.closed {
		return false
	}
	select {
	case t.queue <- e:
		return true
	default:
		t.metrics.RecordTrackingFailure()
		t.log.WithField("asset", asset).Warn("Asset tracking queue is full; dropping tracking event")
		return false
	}
}

func (t *AssetTracker) run() {
	defer close(t.done)
	for e := range t.queue {
		ctx, cancel := context.WithTimeout(context.Background(), trackingEmitTimeout)
		err := t.emitter.Emit(ctx, e)
		cancel()
		if err != nil {
			t.metrics.RecordTrackingFailure()
			t.log.WithError(err).WithFields(log.Fields{
				"asset":   e.Asset,
				"event":   e.Event,
				"service": e.Service,
				"plugin":  e.Plugin,
			}).Warn("Failed to emit asset tracking event")
		}
	}
}

// Close emits everything already queued and then stops the tracker. A tracker that was never started
// emits nothing.
func (t *AssetTracker) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
		if !t.started {
			close(t.done)
		}
	}
	t.mu.Unlock()
	<-t.done
}
