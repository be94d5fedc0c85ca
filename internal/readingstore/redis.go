package readingstore

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
	"github.com/fogwell/fogwell/internal/ingest"
)

const (
	redisSource         = "redis"
	readingStreamPrefix = "Readings:"
	readKeyPrefix       = "ReadKey:"
	dataKey             = "reading"
)

type RedisRetentionPolicy struct {
	// Streams are expired this long after their last write. Zero disables expiry.
	RetentionDuration time.Duration
	// Approximate cap on entries per stream. Zero means unbounded.
	MaxStreamLength int64
	// How long read keys are remembered for deduplication.
	ReadKeyRetention time.Duration `validate:"required"`
}

// RedisStore appends each reading to a per-asset stream. Read keys are claimed with SETNX before the write
// so a retried batch does not add duplicate entries.
type RedisStore struct {
	db        redis.UniversalClient
	retention RedisRetentionPolicy
}

func NewRedisStore(db redis.UniversalClient, retention RedisRetentionPolicy) *RedisStore {
	return &RedisStore{db: db, retention: retention}
}

func (s *RedisStore) Append(_ context.Context, batch []*ingest.ReadingRecord) error {
	if len(batch) == 0 {
		return nil
	}

	toWrite, claimed, err := s.claimReadKeys(batch)
	if err != nil {
		return classifyRedisError(err)
	}
	if len(toWrite) == 0 {
		return nil
	}

	streams := make(map[string]bool)
	pipe := s.db.TxPipeline()
	for _, r := range toWrite {
		data, err := json.Marshal(r)
		if err != nil {
			s.releaseReadKeys(claimed)
			return fogwellerrors.NewStorageError(redisSource, errors.WithStack(err), false)
		}
		key := StreamKey(r.AssetCode)
		streams[key] = true
		pipe.XAdd(&redis.XAddArgs{
			Stream:       key,
			MaxLenApprox: s.retention.MaxStreamLength,
			Values: map[string]interface{}{
				dataKey: data,
			},
		})
	}
	if s.retention.RetentionDuration > 0 {
		for key := range streams {
			pipe.Expire(key, s.retention.RetentionDuration)
		}
	}
	if _, err := pipe.Exec(); err != nil {
		s.releaseReadKeys(claimed)
		return classifyRedisError(err)
	}
	return nil
}

// claimReadKeys returns the records that should be written and the read keys this call claimed.
// Records whose read key was already claimed are dropped.
func (s *RedisStore) claimReadKeys(batch []*ingest.ReadingRecord) ([]*ingest.ReadingRecord, []string, error) {
	pipe := s.db.Pipeline()
	keys := make([]string, len(batch))
	cmds := make([]*redis.BoolCmd, len(batch))
	queued := 0
	for i, r := range batch {
		if r.ReadKey != nil {
			keys[i] = readKeyPrefix + r.ReadKey.String()
			cmds[i] = pipe.SetNX(keys[i], 1, s.retention.ReadKeyRetention)
			queued++
		}
	}
	if queued == 0 {
		_ = pipe.Close()
		return batch, nil, nil
	}
	if _, err := pipe.Exec(); err != nil {
		// Claims that did succeed have to be given back, otherwise the retry would treat their readings
		// as duplicates and skip them.
		s.releaseReadKeys(claimedKeys(keys, cmds))
		return nil, nil, err
	}

	toWrite := make([]*ingest.ReadingRecord, 0, len(batch))
	for i, r := range batch {
		if cmds[i] == nil || cmds[i].Val() {
			toWrite = append(toWrite, r)
		}
	}
	return toWrite, claimedKeys(keys, cmds), nil
}

// claimedKeys returns the keys whose SETNX succeeded.
func claimedKeys(keys []string, cmds []*redis.BoolCmd) []string {
	var claimed []string
	for i, cmd := range cmds {
		if cmd != nil && cmd.Err() == nil && cmd.Val() {
			claimed = append(claimed, keys[i])
		}
	}
	return claimed
}

func (s *RedisStore) releaseReadKeys(keys []string) {
	if len(keys) == 0 {
		return
	}
	// Best effort; an unreleased key only suppresses a retry of the same reading.
	_ = s.db.Del(keys...).Err()
}

func StreamKey(asset string) string {
	return readingStreamPrefix + asset
}

func classifyRedisError(err error) error {
	retryable := fogwellerrors.IsRetryableRedisError(err) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
	return fogwellerrors.NewStorageError(redisSource, errors.WithStack(err), retryable)
}
