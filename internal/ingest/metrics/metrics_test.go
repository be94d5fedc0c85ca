package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics("test_", prometheus.NewRegistry())

	m.RecordAccepted()
	m.RecordAccepted()
	m.RecordWritten(5)
	m.RecordDiscarded(DiscardReasonBufferFull, 1)
	m.RecordDiscarded(DiscardReasonStorageError, 4)
	m.SetLaneDepth(1, 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.readingsAccepted))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.readingsWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.readingsDiscarded.WithLabelValues(string(DiscardReasonBufferFull))))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.readingsDiscarded.WithLabelValues(string(DiscardReasonStorageError))))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.laneDepth.WithLabelValues("1")))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics("test_", prometheus.NewRegistry())
		NewMetrics("test_", prometheus.NewRegistry())
	})
}
