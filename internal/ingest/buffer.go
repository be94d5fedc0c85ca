package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
	"github.com/fogwell/fogwell/internal/ingest/configuration"
)

type laneEntry struct {
	record     *ReadingRecord
	enqueuedAt time.Time
}

// lane is one bounded FIFO of readings.
type lane struct {
	entries []laneEntry
	// Receives a value whenever the lane reaches the batch size. Buffered so producers never block on it.
	batchReady chan struct{}
}

func (l *lane) signalBatchReady() {
	select {
	case l.batchReady <- struct{}{}:
	default:
	}
}

type outcome int

const (
	outcomeWritten outcome = iota
	outcomeDropped
)

type bufferCounters struct {
	accepted int64
	written  int64
	dropped  int64
	rejected int64
}

// ingestBuffer owns the lanes and every counter that has to stay consistent with their contents.
// mu is never held across a wait or a storage call.
type ingestBuffer struct {
	mu        sync.Mutex
	lanes     []*lane
	cursor    int
	capacity  int
	batchSize int
	mode      configuration.BackpressureMode
	clock     clock.Clock
	running   bool
	stopping  bool
	// Receives a value when a reading lands in an empty lane.
	wake chan struct{}
	// Closed and replaced whenever capacity is freed.
	freed chan struct{}
	// Closed when the buffer stops accepting readings.
	stopCh   chan struct{}
	counters bufferCounters
}

func newIngestBuffer(config configuration.IngestConfig, clk clock.Clock) *ingestBuffer {
	lanes := make([]*lane, config.MaxConcurrentInserts)
	for i := range lanes {
		lanes[i] = &lane{batchReady: make(chan struct{}, 1)}
	}
	return &ingestBuffer{
		lanes:     lanes,
		capacity:  config.LaneCapacity(),
		batchSize: config.BatchSize,
		mode:      config.Backpressure,
		clock:     clk,
		wake:      make(chan struct{}, 1),
		freed:     make(chan struct{}),
		stopCh:    make(chan struct{}),
	}
}

func (b *ingestBuffer) open() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.stopping {
		b.running = true
	}
}

// close stops the buffer accepting readings and wakes every waiting producer and the worker.
func (b *ingestBuffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopping {
		return
	}
	b.running = false
	b.stopping = true
	close(b.stopCh)
}

func (b *ingestBuffer) isStopping() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopping
}

func notRunning(message string) error {
	return errors.WithStack(&fogwellerrors.ErrNotRunning{Component: "ingest", Message: message})
}

// reject counts a reading refused before it reached the buffer.
func (b *ingestBuffer) reject() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters.rejected++
}

// add appends record to the first lane with room, starting at the cursor. It returns the lane used and
// its new depth. When every lane is full it either waits for capacity or fails with ErrBufferFull,
// depending on the backpressure mode.
func (b *ingestBuffer) add(ctx context.Context, record *ReadingRecord) (int, int, error) {
	for {
		b.mu.Lock()
		if !b.running {
			b.counters.rejected++
			msg := "not started"
			if b.stopping {
				msg = "stopping"
			}
			b.mu.Unlock()
			return -1, 0, notRunning(msg)
		}
		if idx := b.selectLaneLocked(); idx >= 0 {
			depth := b.appendLocked(idx, record)
			b.mu.Unlock()
			return idx, depth, nil
		}
		if b.mode == configuration.BackpressureShed {
			b.counters.rejected++
			b.mu.Unlock()
			return -1, 0, errors.WithStack(fogwellerrors.ErrBufferFull)
		}
		freed := b.freed
		b.mu.Unlock()

		select {
		case <-freed:
		case <-b.stopCh:
			// Loop round so the rejection is counted under the lock.
		case <-ctx.Done():
			return -1, 0, errors.WithStack(ctx.Err())
		}
	}
}

// selectLaneLocked returns the first lane at or after the cursor with spare capacity, or -1 if all are full.
func (b *ingestBuffer) selectLaneLocked() int {
	n := len(b.lanes)
	for i := 0; i < n; i++ {
		idx := (b.cursor + i) % n
		if len(b.lanes[idx].entries) < b.capacity {
			b.cursor = idx
			return idx
		}
	}
	return -1
}

func (b *ingestBuffer) appendLocked(idx int, record *ReadingRecord) int {
	l := b.lanes[idx]
	l.entries = append(l.entries, laneEntry{record: record, enqueuedAt: b.clock.Now()})
	depth := len(l.entries)
	b.counters.accepted++
	if depth == 1 {
		select {
		case b.wake <- struct{}{}:
		default:
		}
	}
	if depth >= b.batchSize {
		l.signalBatchReady()
	}
	if depth >= b.capacity {
		// Refill from the lowest lane with room so fewer lanes hold partial batches.
		for i := range b.lanes {
			if len(b.lanes[i].entries) < b.capacity {
				b.cursor = i
				break
			}
		}
	}
	return depth
}

// laneState reports the depth of a lane and when its oldest reading was buffered.
func (b *ingestBuffer) laneState(idx int) (int, time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.lanes[idx]
	if len(l.entries) == 0 {
		return 0, time.Time{}, b.stopping
	}
	return len(l.entries), l.entries[0].enqueuedAt, b.stopping
}

// peek copies up to max records from the head of a lane without removing them.
func (b *ingestBuffer) peek(idx int, max int) []*ReadingRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.lanes[idx].entries
	if len(entries) > max {
		entries = entries[:max]
	}
	batch := make([]*ReadingRecord, len(entries))
	for i, e := range entries {
		batch[i] = e.record
	}
	return batch
}

// remove takes n records off the head of a lane and wakes any producers waiting for capacity.
func (b *ingestBuffer) remove(idx int, n int, o outcome) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.lanes[idx]
	if n > len(l.entries) {
		n = len(l.entries)
	}
	for i := 0; i < n; i++ {
		l.entries[i] = laneEntry{}
	}
	l.entries = l.entries[n:]
	if len(l.entries) == 0 {
		l.entries = nil
	}
	switch o {
	case outcomeWritten:
		b.counters.written += int64(n)
	case outcomeDropped:
		b.counters.dropped += int64(n)
	}
	if len(l.entries) >= b.batchSize {
		l.signalBatchReady()
	}
	close(b.freed)
	b.freed = make(chan struct{})
	return len(l.entries)
}

func (b *ingestBuffer) depths() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	depths := make([]int, len(b.lanes))
	for i, l := range b.lanes {
		depths[i] = len(l.entries)
	}
	return depths
}

func (b *ingestBuffer) available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.lanes {
		if len(l.entries) < b.capacity {
			return true
		}
	}
	return false
}

func (b *ingestBuffer) snapshot() (bufferCounters, []int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	depths := make([]int, len(b.lanes))
	for i, l := range b.lanes {
		depths[i] = len(l.entries)
	}
	return b.counters, depths
}
