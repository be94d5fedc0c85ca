package ingest

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
	"github.com/fogwell/fogwell/internal/common/logging"
	"github.com/fogwell/fogwell/internal/common/util"
	"github.com/fogwell/fogwell/internal/ingest/configuration"
	"github.com/fogwell/fogwell/internal/ingest/metrics"
)

const discardLogCooldown = 10 * time.Second

// batchInsertWorker is the single writer. It visits lanes in turn, waits for each to fill or time out,
// and writes at most one batch at a time.
type batchInsertWorker struct {
	buffer             *ingestBuffer
	store              ReadingStore
	stats              *StatisticsAggregator
	metrics            *metrics.Metrics
	clock              clock.Clock
	batchSize          int
	batchTimeout       time.Duration
	maxInsertAttempts  int
	insertRetryBackoff time.Duration
	debounce           bool
	discardLog         *logging.SuppressingLogger
	log                *log.Entry

	// Time of the most recent write attempt on any lane.
	lastWrite time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

func newBatchInsertWorker(
	config configuration.IngestConfig,
	buffer *ingestBuffer,
	store ReadingStore,
	stats *StatisticsAggregator,
	m *metrics.Metrics,
	clk clock.Clock,
	logger *log.Entry,
) *batchInsertWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &batchInsertWorker{
		buffer:             buffer,
		store:              store,
		stats:              stats,
		metrics:            m,
		clock:              clk,
		batchSize:          config.BatchSize,
		batchTimeout:       config.BatchTimeout,
		maxInsertAttempts:  config.MaxInsertAttempts,
		insertRetryBackoff: config.InsertRetryBackoff,
		debounce:           config.Debounce,
		discardLog:         logging.NewSuppressingLogger(logger, discardLogCooldown),
		log:                logger,
		ctx:                ctx,
		cancel:             cancel,
		done:               make(chan struct{}),
	}
}

func (w *batchInsertWorker) run() {
	defer close(w.done)
	n := len(w.buffer.lanes)
	cursor := -1
	// Consecutive visits that did nothing; a full rotation of them means the worker should sleep.
	idle := 0
	debounced := false
	for !w.buffer.isStopping() {
		cursor = (cursor + 1) % n
		if w.visit(cursor, &debounced) {
			idle = 0
			debounced = false
			continue
		}
		idle++
		if idle < n {
			continue
		}
		idle = 0
		if debounced {
			debounced = false
			w.sleep(w.batchTimeout - w.clock.Since(w.lastWrite))
		} else {
			select {
			case <-w.buffer.wake:
			case <-w.buffer.stopCh:
			}
		}
	}

	// Final drain: every lane is emptied, written or discarded, before the worker exits.
	for i := 0; i < n; i++ {
		for {
			count, _, _ := w.buffer.laneState(i)
			if count == 0 {
				break
			}
			w.flush(i)
		}
	}
	w.log.Info("Batch insert worker drained all lanes and stopped")
}

// visit waits for the lane to be ready and writes one batch from it. Returns false if nothing was written.
func (w *batchInsertWorker) visit(idx int, debounced *bool) bool {
	count, _, _ := w.buffer.laneState(idx)
	if count == 0 {
		return false
	}
	count, stopping := w.waitForBatch(idx)
	if count == 0 {
		return false
	}
	if w.debounce && !stopping && count < w.batchSize && w.clock.Since(w.lastWrite) < w.batchTimeout {
		*debounced = true
		return false
	}
	w.flush(idx)
	return true
}

// waitForBatch blocks until the lane holds a full batch, its oldest reading has waited batchTimeout,
// or the buffer is stopping.
func (w *batchInsertWorker) waitForBatch(idx int) (int, bool) {
	l := w.buffer.lanes[idx]
	for {
		count, since, stopping := w.buffer.laneState(idx)
		if count == 0 || count >= w.batchSize || stopping {
			return count, stopping
		}
		remaining := w.batchTimeout - w.clock.Since(since)
		if remaining <= 0 {
			return count, stopping
		}
		timer := w.clock.NewTimer(remaining)
		select {
		case <-l.batchReady:
		case <-timer.C():
		case <-w.buffer.stopCh:
		}
		timer.Stop()
	}
}

func (w *batchInsertWorker) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := w.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C():
	case <-w.buffer.wake:
	case <-w.buffer.stopCh:
	}
}

// flush writes the head of a lane, retrying retryable failures, and removes the batch whatever the outcome.
func (w *batchInsertWorker) flush(idx int) {
	batch := w.buffer.peek(idx, w.batchSize)
	if len(batch) == 0 {
		return
	}
	batchId := util.NewULID()
	// A batch first tried after stop belongs to the final drain. Its retries skip the backoff and end
	// only when attempts run out or ctx is cancelled.
	draining := w.buffer.isStopping()
	for attempt := 1; ; attempt++ {
		start := w.clock.Now()
		w.lastWrite = start
		err := w.store.Append(w.ctx, batch)
		w.metrics.RecordInsert(len(batch), w.clock.Since(start).Seconds())
		if err == nil {
			depth := w.buffer.remove(idx, len(batch), outcomeWritten)
			w.stats.AddWritten(len(batch))
			w.metrics.RecordWritten(len(batch))
			w.metrics.SetLaneDepth(idx, depth)
			w.log.WithFields(log.Fields{"lane": idx, "batchId": batchId, "batchSize": len(batch), "attempt": attempt}).
				Debug("Wrote batch")
			return
		}

		storageErr := fogwellerrors.AsStorageError("store", err)
		if w.shouldRetry(storageErr, attempt, draining) {
			w.metrics.RecordRetry()
			w.log.WithError(err).WithFields(log.Fields{"lane": idx, "batchId": batchId, "attempt": attempt}).
				Warn("Retryable error writing batch")
			if draining || w.backoff() {
				continue
			}
		}
		w.discard(idx, batch, batchId, attempt, storageErr)
		return
	}
}

// shouldRetry reports whether another attempt may be made after a failed write. A stop cuts short any
// retry loop that began before it.
func (w *batchInsertWorker) shouldRetry(err *fogwellerrors.ErrStorage, attempt int, draining bool) bool {
	if !err.Retryable || attempt >= w.maxInsertAttempts || w.ctx.Err() != nil {
		return false
	}
	return draining || !w.buffer.isStopping()
}

// backoff waits between attempts. Returns false if the buffer stopped while waiting.
func (w *batchInsertWorker) backoff() bool {
	if w.insertRetryBackoff <= 0 {
		return !w.buffer.isStopping()
	}
	timer := w.clock.NewTimer(w.insertRetryBackoff)
	defer timer.Stop()
	select {
	case <-timer.C():
		return true
	case <-w.buffer.stopCh:
		return false
	}
}

func (w *batchInsertWorker) discard(idx int, batch []*ReadingRecord, batchId string, attempts int, err *fogwellerrors.ErrStorage) {
	depth := w.buffer.remove(idx, len(batch), outcomeDropped)
	w.stats.AddDiscarded(len(batch))
	reason := metrics.DiscardReasonStorageError
	switch {
	case w.ctx.Err() != nil:
		reason = metrics.DiscardReasonShutdown
	case err.Retryable && attempts < w.maxInsertAttempts:
		reason = metrics.DiscardReasonShutdown
	case err.Retryable:
		reason = metrics.DiscardReasonRetriesFailed
	}
	w.metrics.RecordDiscarded(reason, len(batch))
	w.metrics.SetLaneDepth(idx, depth)
	w.discardLog.Warnf(
		fmt.Sprintf("%d/%s", idx, reason),
		log.Fields{
			"lane":      idx,
			"batchId":   batchId,
			"batchSize": len(batch),
			"attempts":  attempts,
			"reason":    reason,
			"error":     err.Error(),
		},
		"Discarded batch of %d readings from lane %d", len(batch), idx)
}
