// Package ingest buffers readings from south plugins in memory and writes them to a ReadingStore in batches.
//
// Readings are spread over a fixed number of lanes. A single worker visits the lanes in turn, writing a
// lane's head as one batch once it holds a full batch or its oldest reading has waited BatchTimeout,
// so at most one write is ever in flight while producers keep filling the other lanes.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
	"github.com/fogwell/fogwell/internal/common/logging"
	"github.com/fogwell/fogwell/internal/common/task"
	"github.com/fogwell/fogwell/internal/ingest/configuration"
	"github.com/fogwell/fogwell/internal/ingest/metrics"
)

const statsFlushTimeout = 10 * time.Second

type state int

const (
	stateNew state = iota
	stateRunning
	stateStopping
	stateStopped
)

// Collaborators are the external services an Ingest talks to. Only Store is required.
type Collaborators struct {
	ServiceName string
	PluginName  string
	Store       ReadingStore
	Statistics  StatisticsStore
	Emitter     Emitter
	// Metrics are registered here. A private registry is used when nil.
	Registerer prometheus.Registerer
	Clock      clock.Clock
}

// Snapshot is a consistent view of the pipeline's counters since it was created.
// Accepted == Written + Dropped + Buffered always holds.
type Snapshot struct {
	Accepted int64
	Written  int64
	// Accepted readings that storage failed to take
	Dropped int64
	// Readings refused before being buffered: not running, or buffer full in shed mode
	Rejected int64
	Buffered int64
	PerLane  []int
}

func (s Snapshot) Discarded() int64 {
	return s.Dropped + s.Rejected
}

// Ingest is the entry point south plugins hand their readings to.
type Ingest struct {
	config      configuration.IngestConfig
	serviceName string
	pluginName  string
	buffer      *ingestBuffer
	worker      *batchInsertWorker
	stats       *StatisticsAggregator
	tracker     *AssetTracker
	tasks       *task.BackgroundTaskManager
	metrics     *metrics.Metrics
	log         *log.Entry

	mu    sync.Mutex
	state state
	// Counts AddReading calls that got past the running check. Only raised under mu while running.
	inflight sync.WaitGroup
	stop     chan struct{}
	stopped  chan struct{}
}

func New(config configuration.IngestConfig, c Collaborators) (*Ingest, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if c.Store == nil {
		return nil, errors.WithStack(&fogwellerrors.ErrInvalidArgument{Name: "Store", Value: "", Message: "a reading store is required"})
	}
	config = config.Normalised()
	registerer := c.Registerer
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	clk := c.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger := log.WithFields(log.Fields{"service": c.ServiceName, "plugin": c.PluginName})

	m := metrics.NewMetrics(metrics.FogwellIngestMetricsPrefix, registerer)
	buffer := newIngestBuffer(config, clk)
	stats := NewStatisticsAggregator(c.Statistics, c.ServiceName, logger)
	return &Ingest{
		config:      config,
		serviceName: c.ServiceName,
		pluginName:  c.PluginName,
		buffer:      buffer,
		worker:      newBatchInsertWorker(config, buffer, c.Store, stats, m, clk, logger),
		stats:       stats,
		tracker:     NewAssetTracker(c.Emitter, m, logger),
		tasks:       task.NewBackgroundTaskManager(metrics.FogwellIngestMetricsPrefix, registerer),
		metrics:     m,
		log:         logger,
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}, nil
}

// Start starts the batch insert worker and the statistics flush. The pipeline stops itself when ctx is done.
func (i *Ingest) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != stateNew {
		return errors.WithStack(&fogwellerrors.ErrAlreadyStarted{Component: "ingest"})
	}
	i.state = stateRunning
	i.buffer.open()
	i.tracker.Start()
	go i.worker.run()
	i.tasks.Register(i.flushStatistics, i.config.StatsFlushInterval, "statistics_flush")
	go func() {
		select {
		case <-ctx.Done():
			if err := i.Stop(context.Background()); err != nil {
				logging.WithStacktrace(i.log, err).Error("Error stopping ingest")
			}
		case <-i.stop:
		}
	}()
	i.log.WithFields(log.Fields{
		"lanes":        i.config.MaxConcurrentInserts,
		"laneCapacity": i.config.LaneCapacity(),
		"batchSize":    i.config.BatchSize,
		"batchTimeout": i.config.BatchTimeout,
		"backpressure": i.config.Backpressure,
	}).Info("Ingest started")
	return nil
}

// Stop refuses new readings, wakes every waiting producer and waits for the worker to write or discard
// everything still buffered. If ctx expires first, in-flight writes are cancelled, which makes the rest of
// the drain discard. Calling Stop more than once is safe; later calls wait for the first to finish.
func (i *Ingest) Stop(ctx context.Context) error {
	i.mu.Lock()
	switch i.state {
	case stateNew:
		i.state = stateStopped
		i.buffer.close()
		i.tracker.Close()
		close(i.stopped)
		i.mu.Unlock()
		return nil
	case stateStopping, stateStopped:
		i.mu.Unlock()
		select {
		case <-i.stopped:
			return nil
		case <-ctx.Done():
			return errors.WithMessage(ctx.Err(), "waiting for ingest to stop")
		}
	}
	i.state = stateStopping
	close(i.stop)
	i.mu.Unlock()

	i.buffer.close()
	// Producers woken by close return promptly. Waiting for them means every count they make is in the
	// final statistics flush.
	i.inflight.Wait()
	var result error
	select {
	case <-i.worker.done:
	case <-ctx.Done():
		result = errors.WithMessage(ctx.Err(), "cancelling in-flight writes")
		i.worker.cancel()
		<-i.worker.done
	}
	i.worker.cancel()

	if timedOut := i.tasks.StopAll(statsFlushTimeout); timedOut {
		i.log.Warn("Timed out waiting for the statistics flush to stop")
	}
	i.flushStatistics()
	i.tracker.Close()

	snapshot := i.Snapshot()
	i.log.WithFields(log.Fields{
		"accepted":  snapshot.Accepted,
		"written":   snapshot.Written,
		"discarded": snapshot.Discarded(),
	}).Info("Ingest stopped")

	i.mu.Lock()
	i.state = stateStopped
	close(i.stopped)
	i.mu.Unlock()
	return result
}

func (i *Ingest) flushStatistics() {
	ctx, cancel := context.WithTimeout(context.Background(), statsFlushTimeout)
	defer cancel()
	if err := i.stats.Flush(ctx); err != nil {
		i.metrics.RecordStatsFlushError()
		logging.WithStacktrace(i.log, err).Warn("Failed to flush statistics; counts will be retried on the next flush")
	}
}

// AddReading buffers one reading. It fails with ErrNotRunning if the pipeline is not running, whatever the
// input, and otherwise with ErrInvalidArgument on bad input. In block mode it waits for capacity until ctx
// is done. In shed mode a full buffer fails with ErrBufferFull and the reading is counted as discarded;
// callers that treat shedding as normal should test for it with errors.Is(err, fogwellerrors.ErrBufferFull)
// or check Available before adding.
func (i *Ingest) AddReading(ctx context.Context, assetCode string, ts time.Time, readKey *uuid.UUID, reading Reading) error {
	return i.add(ctx, &ReadingRecord{
		AssetCode:     assetCode,
		Reading:       reading,
		UserTimestamp: ts,
		ReadKey:       readKey,
	})
}

// AddReadings buffers records in order, stopping at the first failure.
func (i *Ingest) AddReadings(ctx context.Context, records []*ReadingRecord) error {
	for idx, record := range records {
		if record == nil {
			return errors.WithStack(&fogwellerrors.ErrInvalidArgument{Name: "records", Value: idx, Message: "record must not be nil"})
		}
		if err := i.add(ctx, record); err != nil {
			return errors.WithMessagef(err, "adding reading %d of %d", idx+1, len(records))
		}
	}
	return nil
}

func (i *Ingest) add(ctx context.Context, record *ReadingRecord) error {
	if s := i.enter(); s != stateRunning {
		i.buffer.reject()
		i.stats.AddDiscarded(1)
		i.metrics.RecordDiscarded(metrics.DiscardReasonNotRunning, 1)
		if s == stateNew {
			return notRunning("not started")
		}
		return notRunning("stopping")
	}
	defer i.inflight.Done()

	if err := record.validate(); err != nil {
		return errors.WithStack(err)
	}
	idx, depth, err := i.buffer.add(ctx, record)
	if err != nil {
		switch {
		case fogwellerrors.IsNotRunning(err):
			i.stats.AddDiscarded(1)
			i.metrics.RecordDiscarded(metrics.DiscardReasonNotRunning, 1)
		case errors.Is(err, fogwellerrors.ErrBufferFull):
			i.stats.AddDiscarded(1)
			i.metrics.RecordDiscarded(metrics.DiscardReasonBufferFull, 1)
		}
		return err
	}
	i.metrics.RecordAccepted()
	i.metrics.SetLaneDepth(idx, depth)
	i.stats.AddAccepted(record.AssetCode)
	i.tracker.Track(record.AssetCode, EventIngest, i.serviceName, i.pluginName)
	return nil
}

// enter registers an in-flight add if the pipeline is running, and returns the state it saw.
func (i *Ingest) enter() state {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == stateRunning {
		i.inflight.Add(1)
	}
	return i.state
}

// Available reports whether any lane has room for another reading.
func (i *Ingest) Available() bool {
	return i.buffer.available()
}

func (i *Ingest) Snapshot() Snapshot {
	counters, depths := i.buffer.snapshot()
	var buffered int64
	for _, d := range depths {
		buffered += int64(d)
	}
	return Snapshot{
		Accepted: counters.accepted,
		Written:  counters.written,
		Dropped:  counters.dropped,
		Rejected: counters.rejected,
		Buffered: buffered,
		PerLane:  depths,
	}
}

// Check reports an error unless the pipeline is running and has room for more readings.
func (i *Ingest) Check() error {
	i.mu.Lock()
	s := i.state
	i.mu.Unlock()
	switch s {
	case stateNew:
		return &fogwellerrors.ErrNotRunning{Component: "ingest", Message: "not started"}
	case stateStopping, stateStopped:
		return &fogwellerrors.ErrNotRunning{Component: "ingest", Message: "stopped"}
	}
	if !i.buffer.available() {
		return errors.Errorf("ingest buffer is full: %v readings buffered per lane", i.buffer.depths())
	}
	return nil
}
