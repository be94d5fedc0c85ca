package ingest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
)

var baseTime = time.Date(2022, 11, 3, 10, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu      sync.Mutex
	calls   [][]*ReadingRecord
	written []*ReadingRecord
	// Decides the outcome of the nth call (starting at 1). Nil means success.
	fail func(call int, batch []*ReadingRecord) error
	// When set, every call waits for a value (or close) before returning.
	release chan struct{}
}

func (s *fakeStore) Append(ctx context.Context, batch []*ReadingRecord) error {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]*ReadingRecord, len(batch))
	copy(copied, batch)
	s.calls = append(s.calls, copied)
	if s.fail != nil {
		if err := s.fail(len(s.calls), batch); err != nil {
			return err
		}
	}
	s.written = append(s.written, batch...)
	return nil
}

func (s *fakeStore) callSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, len(s.calls))
	for i, c := range s.calls {
		sizes[i] = len(c)
	}
	return sizes
}

func (s *fakeStore) numCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeStore) writtenRecords() []*ReadingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ReadingRecord{}, s.written...)
}

func retryable() error {
	return &fogwellerrors.ErrStorage{Source: "fake", Message: "connection reset", Retryable: true}
}

func permanent() error {
	return errors.WithStack(&fogwellerrors.ErrStorage{Source: "fake", Message: "constraint violated", Retryable: false})
}

type fakeStatisticsStore struct {
	mu         sync.Mutex
	registered map[string]string
	registers  int
	totals     map[string]int64
	failUpdate bool
	failKey    string
}

func newFakeStatisticsStore() *fakeStatisticsStore {
	return &fakeStatisticsStore{registered: map[string]string{}, totals: map[string]int64{}}
}

func (s *fakeStatisticsStore) Register(_ context.Context, key string, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.failKey {
		return errors.Errorf("cannot register %s", key)
	}
	s.registers++
	if _, ok := s.registered[key]; !ok {
		s.registered[key] = description
	}
	return nil
}

func (s *fakeStatisticsStore) UpdateBulk(_ context.Context, counters map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate {
		return errors.New("statistics store unavailable")
	}
	for k, v := range counters {
		if _, ok := s.registered[k]; !ok {
			return errors.Errorf("statistic %s not registered", k)
		}
		s.totals[k] += v
	}
	return nil
}

func (s *fakeStatisticsStore) setFailUpdate(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdate = fail
}

func (s *fakeStatisticsStore) total(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals[key]
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []AssetTrackingEvent
	err    error
}

func (e *fakeEmitter) Emit(_ context.Context, event AssetTrackingEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return e.err
}

func (e *fakeEmitter) emitted() []AssetTrackingEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]AssetTrackingEvent{}, e.events...)
}

func numberedReading(i int) Reading {
	return Reading{"seq": NumberValue(float64(i)), "label": StringValue(fmt.Sprintf("r%d", i))}
}

func posInf() float64 {
	return math.Inf(1)
}

// statTotal is the count for key whether or not it has been flushed yet.
func statTotal(i *Ingest, store *fakeStatisticsStore, key string) int64 {
	return store.total(key) + i.stats.Pending()[key]
}
