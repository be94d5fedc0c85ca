package ingest

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/fogwell/fogwell/internal/ingest/metrics"
)

func newTestTracker(emitter Emitter) *AssetTracker {
	tracker := NewAssetTracker(emitter, metrics.NewMetrics("test_", prometheus.NewRegistry()), logrus.NewEntry(logrus.New()))
	tracker.Start()
	return tracker
}

func TestAssetTracker_EmitsOncePerTuple(t *testing.T) {
	emitter := &fakeEmitter{}
	tracker := newTestTracker(emitter)

	assert.True(t, tracker.Track("pump", EventIngest, "south1", "sinusoid"))
	for n := 0; n < 10; n++ {
		assert.False(t, tracker.Track("pump", EventIngest, "south1", "sinusoid"))
	}
	assert.True(t, tracker.Track("pump", EventIngest, "south2", "sinusoid"))
	assert.True(t, tracker.Track("pump", "Egress", "south1", "sinusoid"))
	tracker.Close()

	assert.Equal(t, []AssetTrackingEvent{
		{Asset: "pump", Event: EventIngest, Service: "south1", Plugin: "sinusoid"},
		{Asset: "pump", Event: EventIngest, Service: "south2", Plugin: "sinusoid"},
		{Asset: "pump", Event: "Egress", Service: "south1", Plugin: "sinusoid"},
	}, emitter.emitted())
}

func TestAssetTracker_FailedEmissionNotRetried(t *testing.T) {
	emitter := &fakeEmitter{err: errors.New("tracking service unavailable")}
	tracker := newTestTracker(emitter)

	tracker.Track("pump", EventIngest, "south1", "sinusoid")
	tracker.Track("pump", EventIngest, "south1", "sinusoid")
	tracker.Close()

	assert.Len(t, emitter.emitted(), 1)
}

func TestAssetTracker_TrackAfterClose(t *testing.T) {
	emitter := &fakeEmitter{}
	tracker := newTestTracker(emitter)
	tracker.Close()
	tracker.Close()

	assert.NotPanics(t, func() {
		assert.False(t, tracker.Track("pump", EventIngest, "south1", "sinusoid"))
	})
	assert.Empty(t, emitter.emitted())
}

func TestAssetTracker_NeverStarted(t *testing.T) {
	emitter := &fakeEmitter{}
	tracker := NewAssetTracker(emitter, metrics.NewMetrics("test_", prometheus.NewRegistry()), logrus.NewEntry(logrus.New()))
	assert.True(t, tracker.Track("pump", EventIngest, "south1", "sinusoid"))

	closed := make(chan struct{})
	go func() {
		tracker.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a tracker that was never started")
	}
	tracker.Start()
	assert.Empty(t, emitter.emitted())
}
