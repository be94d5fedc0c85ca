package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type DiscardReason string

const (
	DiscardReasonNotRunning    DiscardReason = "not_running"
	DiscardReasonBufferFull    DiscardReason = "buffer_full"
	DiscardReasonStorageError  DiscardReason = "storage_error"
	DiscardReasonRetriesFailed DiscardReason = "retries_exhausted"
	DiscardReasonShutdown      DiscardReason = "shutdown"
)

const FogwellIngestMetricsPrefix = "fogwell_ingest_"

type Metrics struct {
	readingsAccepted     prometheus.Counter
	readingsWritten      prometheus.Counter
	readingsDiscarded    *prometheus.CounterVec
	laneDepth            *prometheus.GaugeVec
	batchSize            prometheus.Histogram
	insertLatency        prometheus.Histogram
	insertRetries        prometheus.Counter
	statsFlushErrors     prometheus.Counter
	trackingEmitFailures prometheus.Counter
}

// NewMetrics creates the pipeline's collectors and registers them with registerer.
func NewMetrics(prefix string, registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		readingsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "readings_accepted_total",
			Help: "Number of readings accepted into the ingest buffer",
		}),
		readingsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "readings_written_total",
			Help: "Number of readings durably written to storage",
		}),
		readingsDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "readings_discarded_total",
			Help: "Number of readings discarded grouped by reason",
		}, []string{"reason"}),
		laneDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "lane_depth",
			Help: "Number of readings currently buffered per lane",
		}, []string{"lane"}),
		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "batch_size",
			Help:    "Number of readings per storage write",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		insertLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "insert_latency_seconds",
			Help:    "Latency of storage write attempts in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		insertRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "insert_retries_total",
			Help: "Number of storage write attempts that were retried",
		}),
		statsFlushErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "statistics_flush_errors_total",
			Help: "Number of failed statistics flushes",
		}),
		trackingEmitFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "asset_tracking_failures_total",
			Help: "Number of asset tracking events that could not be emitted",
		}),
	}
}

func (m *Metrics) RecordAccepted() {
	m.readingsAccepted.Inc()
}

func (m *Metrics) RecordWritten(n int) {
	m.readingsWritten.Add(float64(n))
}

func (m *Metrics) RecordDiscarded(reason DiscardReason, n int) {
	m.readingsDiscarded.With(prometheus.Labels{"reason": string(reason)}).Add(float64(n))
}

func (m *Metrics) SetLaneDepth(lane int, depth int) {
	m.laneDepth.With(prometheus.Labels{"lane": strconv.Itoa(lane)}).Set(float64(depth))
}

func (m *Metrics) RecordInsert(batchSize int, seconds float64) {
	m.batchSize.Observe(float64(batchSize))
	m.insertLatency.Observe(seconds)
}

func (m *Metrics) RecordRetry() {
	m.insertRetries.Inc()
}

func (m *Metrics) RecordStatsFlushError() {
	m.statsFlushErrors.Inc()
}

func (m *Metrics) RecordTrackingFailure() {
	m.trackingEmitFailures.Inc()
}
