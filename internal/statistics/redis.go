package statistics

import (
	"context"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/fogwell/fogwell/internal/ingest"
)

const (
	descriptionsKey = "Statistics:descriptions"
	valuesKey       = "Statistics:values"
)

// RedisStore keeps descriptions and values in two hashes keyed by statistic.
type RedisStore struct {
	db redis.UniversalClient
}

var _ ingest.StatisticsStore = &RedisStore{}

func NewRedisStore(db redis.UniversalClient) *RedisStore {
	return &RedisStore{db: db}
}

func (s *RedisStore) Register(_ context.Context, key string, description string) error {
	return errors.WithStack(s.db.HSetNX(descriptionsKey, key, description).Err())
}

func (s *RedisStore) UpdateBulk(_ context.Context, counters map[string]int64) error {
	if len(counters) == 0 {
		return nil
	}
	pipe := s.db.TxPipeline()
	for key, value := range counters {
		pipe.HIncrBy(valuesKey, key, value)
	}
	_, err := pipe.Exec()
	return errors.WithStack(err)
}

func (s *RedisStore) Get(_ context.Context, key string) (int64, error) {
	value, err := s.db.HGet(valuesKey, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return value, errors.WithStack(err)
}

func (s *RedisStore) Description(key string) (string, error) {
	description, err := s.db.HGet(descriptionsKey, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return description, errors.WithStack(err)
}
