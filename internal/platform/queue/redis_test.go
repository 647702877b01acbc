package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	q := NewRedisQueue(newTestRedis(t), "jobs", 100*time.Millisecond)

	require.NoError(t, q.Enqueue(ctx, "job-1"))
	require.NoError(t, q.Enqueue(ctx, "job-2"))

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)

	assert.Equal(t, "job-1", first)
	assert.Equal(t, "job-2", second)
}

func TestRedisQueue_EmptyReturnsErrNoJob(t *testing.T) {
	q := NewRedisQueue(newTestRedis(t), "jobs", 50*time.Millisecond)
	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrNoJob)
}

func TestOpen_Backends(t *testing.T) {
	rdb := newTestRedis(t)

	q, err := Open(BackendRedis, "jobs", rdb, "", time.Second)
	require.NoError(t, err)
	assert.IsType(t, &RedisQueue{}, q)

	_, err = Open("kafka", "jobs", rdb, "", time.Second)
	assert.Error(t, err)
}
