package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	StatReadings  = "READINGS"
	StatDiscarded = "DISCARDED"

	registeredKeyCacheSize = 10000
)

// AssetStatisticKey is the counter of readings accepted for an asset.
func AssetStatisticKey(asset string) string {
	return "INGEST_" + strings.ToUpper(asset)
}

// ServiceStatisticKey is the counter of readings accepted by a south service.
func ServiceStatisticKey(service string) string {
	return strings.ToUpper(service) + "_INGEST"
}

// StatisticsAggregator counts readings in memory and periodically adds the counts to a StatisticsStore.
// A failed flush puts its counts back so they are retried on the next one.
type StatisticsAggregator struct {
	store       StatisticsStore
	serviceName string
	log         *log.Entry

	mu           sync.Mutex
	counters     map[string]int64
	descriptions map[string]string

	// Keys the store is known to hold. Evicted keys are simply registered again.
	registered *lru.Cache
	// Serialises flushes so a rollback never races a second flush of the same counts.
	flushMu sync.Mutex
}

func NewStatisticsAggregator(store StatisticsStore, serviceName string, logger *log.Entry) *StatisticsAggregator {
	registered, err := lru.New(registeredKeyCacheSize)
	if err != nil {
		// Only possible with a non-positive size.
		panic(err)
	}
	if store == nil {
		store = noopStatisticsStore{}
	}
	return &StatisticsAggregator{
		store:       store,
		serviceName: serviceName,
		log:         logger,
		counters:    map[string]int64{},
		descriptions: map[string]string{
			StatReadings:  "Readings written to storage",
			StatDiscarded: "Readings discarded before reaching storage",
		},
		registered: registered,
	}
}

func (s *StatisticsAggregator) AddAccepted(asset string) {
	assetKey := AssetStatisticKey(asset)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[assetKey]++
	if _, ok := s.descriptions[assetKey]; !ok {
		s.descriptions[assetKey] = fmt.Sprintf("Readings received from asset %s", asset)
	}
	if s.serviceName != "" {
		serviceKey := ServiceStatisticKey(s.serviceName)
		s.counters[serviceKey]++
		if _, ok := s.descriptions[serviceKey]; !ok {
			s.descriptions[serviceKey] = fmt.Sprintf("Readings received from service %s", s.serviceName)
		}
	}
}

func (s *StatisticsAggregator) AddWritten(n int) {
	s.add(StatReadings, int64(n))
}

func (s *StatisticsAggregator) AddDiscarded(n int) {
	s.add(StatDiscarded, int64(n))
}

func (s *StatisticsAggregator) add(key string, n int64) {
	if n == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] += n
}

// Pending returns the counts not yet flushed.
func (s *StatisticsAggregator) Pending() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.counters)
}

// Flush moves the pending counts to the store. Counts added while the flush is in progress go to the next
// one. On failure the flushed counts are added back and the error is returned.
func (s *StatisticsAggregator) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	pending := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		if v != 0 {
			pending[k] = v
		}
	}
	s.counters = map[string]int64{}
	descriptions := make(map[string]string, len(pending))
	for k := range pending {
		descriptions[k] = s.descriptions[k]
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	if err := s.write(ctx, pending, descriptions); err != nil {
		s.mu.Lock()
		for k, v := range pending {
			s.counters[k] += v
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *StatisticsAggregator) write(ctx context.Context, pending map[string]int64, descriptions map[string]string) error {
	keys := maps.Keys(pending)
	slices.Sort(keys)
	for _, key := range keys {
		if s.registered.Contains(key) {
			continue
		}
		if err := s.store.Register(ctx, key, descriptions[key]); err != nil {
			return errors.WithMessagef(err, "registering statistic %s", key)
		}
		s.registered.Add(key, struct{}{})
	}
	if err := s.store.UpdateBulk(ctx, pending); err != nil {
		return errors.WithMessage(err, "updating statistics")
	}
	s.log.WithField("statistics", len(pending)).Debug("Flushed statistics")
	return nil
}
