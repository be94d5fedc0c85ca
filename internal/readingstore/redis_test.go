package readingstore

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
	"github.com/fogwell/fogwell/internal/ingest"
)

// Streams are not supported by miniredis, so tests that write readings need a real redis and are skipped
// without one.
func withRedisStore(t *testing.T, retention RedisRetentionPolicy, action func(client *redis.Client, store *RedisStore)) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 10})
	defer client.Close()
	if err := client.Ping().Err(); err != nil {
		t.Skipf("redis not available: %s", err)
	}
	client.FlushDB()
	defer client.FlushDB()
	action(client, NewRedisStore(client, retention))
}

func TestRedisStore_Append(t *testing.T) {
	retention := RedisRetentionPolicy{RetentionDuration: time.Hour, ReadKeyRetention: time.Hour, MaxStreamLength: 1000}
	withRedisStore(t, retention, func(client *redis.Client, store *RedisStore) {
		batch := append(testBatch("pump", 3, true), testBatch("fan", 2, false)...)
		require.NoError(t, store.Append(context.Background(), batch))
		// Readings with read keys are not written twice.
		require.NoError(t, store.Append(context.Background(), batch[:3]))

		pumps, err := client.XRange(StreamKey("pump"), "-", "+").Result()
		require.NoError(t, err)
		require.Len(t, pumps, 3)
		var first ingest.ReadingRecord
		require.NoError(t, json.Unmarshal([]byte(pumps[0].Values[dataKey].(string)), &first))
		assert.Equal(t, *batch[0].ReadKey, *first.ReadKey)

		fans, err := client.XLen(StreamKey("fan")).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(2), fans)

		ttl, err := client.TTL(StreamKey("fan")).Result()
		require.NoError(t, err)
		assert.True(t, ttl > 0)
	})
}

func TestRedisStore_ConnectionRefused(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:1", DialTimeout: 100 * time.Millisecond})
	defer client.Close()
	store := NewRedisStore(client, RedisRetentionPolicy{ReadKeyRetention: time.Hour})

	err := store.Append(context.Background(), testBatch("pump", 1, false))
	var storageErr *fogwellerrors.ErrStorage
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, redisSource, storageErr.Source)
	assert.True(t, storageErr.Retryable)
}

func TestClassifyRedisError(t *testing.T) {
	assert.True(t, fogwellerrors.IsRetryable(classifyRedisError(errors.New("LOADING Redis is loading the dataset in memory"))))
	assert.False(t, fogwellerrors.IsRetryable(classifyRedisError(errors.New("WRONGTYPE Operation against a key holding the wrong kind of value"))))
}

func TestRedisStore_ClaimFailureReleasesClaimedKeys(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	// The claims reach redis but the connection fails before the caller learns of them.
	failing := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer failing.Close()
	failing.WrapProcessPipeline(func(process func([]redis.Cmder) error) func([]redis.Cmder) error {
		return func(cmds []redis.Cmder) error {
			if err := process(cmds); err != nil {
				return err
			}
			return io.ErrUnexpectedEOF
		}
	})
	retention := RedisRetentionPolicy{ReadKeyRetention: time.Hour}
	batch := testBatch("pump", 3, true)

	_, _, err = NewRedisStore(failing, retention).claimReadKeys(batch)
	require.Error(t, err)
	assert.True(t, fogwellerrors.IsRetryable(classifyRedisError(err)))
	for _, r := range batch {
		assert.False(t, server.Exists(readKeyPrefix+r.ReadKey.String()))
	}

	healthy := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer healthy.Close()
	toWrite, claimed, err := NewRedisStore(healthy, retention).claimReadKeys(batch)
	require.NoError(t, err)
	assert.Equal(t, batch, toWrite)
	assert.Len(t, claimed, 3)
}

func TestClaimedKeys(t *testing.T) {
	keys := []string{"a", "b", "c", "d"}
	cmds := []*redis.BoolCmd{
		redis.NewBoolResult(true, nil),
		redis.NewBoolResult(false, nil),
		nil,
		redis.NewBoolResult(false, io.EOF),
	}
	assert.Equal(t, []string{"a"}, claimedKeys(keys, cmds))
	assert.Empty(t, claimedKeys(nil, nil))
}
