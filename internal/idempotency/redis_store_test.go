package idempotency

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRedisStore connects to TEST_REDIS_ADDR under a per-test key prefix and
// removes that prefix's keys afterwards.
func newRedisStore(t *testing.T) (*RedisStore, *redis.Client, string) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(ctx).Err())

	prefix := "helpdesk:test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		keys, err := client.Keys(ctx, prefix+"*").Result()
		if err == nil && len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		_ = client.Close()
	})
	return NewRedisStore(client, prefix), client, prefix
}

func TestRedisStoreMissReturnsNil(t *testing.T) {
	store, _, _ := newRedisStore(t)

	record, err := store.Get(context.Background(), "user-1:absent")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestRedisStoreRoundTripWithTTL(t *testing.T) {
	store, client, prefix := newRedisStore(t)
	ctx := context.Background()
	recordedAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ttl := 2 * time.Minute

	require.NoError(t, store.Put(ctx, Record{
		Key:        "user-1:create-42",
		Payload:    []byte(`{"id":"t-1"}`),
		RecordedAt: recordedAt,
	}, ttl))

	record, err := store.Get(ctx, "user-1:create-42")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "user-1:create-42", record.Key)
	assert.Equal(t, []byte(`{"id":"t-1"}`), record.Payload)
	assert.True(t, record.RecordedAt.Equal(recordedAt))

	remaining, err := client.TTL(ctx, prefix+"user-1:create-42").Result()
	require.NoError(t, err)
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, ttl)

	evicted, err := store.Sweep(ctx, recordedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, evicted, "expiry is left to redis")
}

func TestRedisStoreBacksGuardReplay(t *testing.T) {
	store, _, _ := newRedisStore(t)
	guard := NewGuard(store, nil, DefaultRetention, nil)
	ctx := context.Background()

	calls := 0
	create := func(context.Context) ([]byte, error) {
		calls++
		return []byte("ticket"), nil
	}

	payload, replayed, err := guard.Do(ctx, "user-1:k", create)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, []byte("ticket"), payload)

	payload, replayed, err = guard.Do(ctx, "user-1:k", create)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, []byte("ticket"), payload)
	assert.Equal(t, 1, calls)
}
