package queue

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type lenQueue interface {
	Queue
	Len(ctx context.Context) (int64, error)
}

// testJobRoundTrip pushes two jobs, pops them in order and walks one through
// its status updates. Job IDs are prefixed so runs against a shared Redis do
// not collide.
func testJobRoundTrip(t *testing.T, q lenQueue, prefix string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first := &Job{ID: prefix + "job-1", Size: "toy", Block: "69c4e0d86a7b0430d8cdb78070b4c55a", Workload: "max"}
	second := &Job{ID: prefix + "job-2", Size: "small", Block: "00112233445566778899aabbccddeeff", Workload: "xor-halves"}
	require.NoError(t, q.Push(ctx, first))
	require.NoError(t, q.Push(ctx, second))
	require.Equal(t, StatusPending, first.Status)
	require.False(t, first.CreatedAt.IsZero())

	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	got, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
	require.Equal(t, "max", got.Workload)
	require.Equal(t, first.Block, got.Block)

	got.Status = StatusCompleted
	got.ResultName = got.ID + ".bin"
	require.NoError(t, q.Update(ctx, got))

	stored, err := q.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, stored.Status)
	require.Equal(t, first.ID+".bin", stored.ResultName)

	got, err = q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)
	require.Equal(t, "small", got.Size)

	n, err = q.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = q.Get(ctx, prefix+"missing")
	require.ErrorIs(t, err, ErrJobNotFound)
	require.ErrorIs(t, q.Update(ctx, &Job{ID: prefix + "missing"}), ErrJobNotFound)
}

func TestMemoryQueue(t *testing.T) {
	testJobRoundTrip(t, NewMemoryQueue(4), "")
}

// TestRedisQueue runs against the server named by TRANSCIPHER_TEST_REDIS
// (host:port), using database 15.
func TestRedisQueue(t *testing.T) {
	addr := os.Getenv("TRANSCIPHER_TEST_REDIS")
	if addr == "" {
		t.Skip("TRANSCIPHER_TEST_REDIS not set")
	}

	q, err := NewRedisQueue(RedisConfig{Addr: addr, DB: 15, JobTTL: time.Minute}, "test")
	require.NoError(t, err)
	defer q.Close()

	prefix := fmt.Sprintf("%d-", time.Now().UnixNano())
	q.queueKey += ":" + prefix
	testJobRoundTrip(t, q, prefix)

	ttl, err := q.client.TTL(context.Background(), q.jobPrefix+prefix+"job-1").Result()
	require.NoError(t, err)
	require.LessOrEqual(t, ttl, time.Minute)
	require.Greater(t, ttl, time.Duration(0))
}

func TestNewRedisQueueUnreachable(t *testing.T) {
	_, err := NewRedisQueue(RedisConfig{Addr: "127.0.0.1:1"}, "test")
	require.Error(t, err)

	q := NewRedisQueueWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "jobs")
	require.Equal(t, "transcipher:queue:jobs", q.queueKey)
	require.Equal(t, DefaultJobTTL, q.ttl)
	require.NoError(t, q.Close())
}

func TestMemoryQueuePopHonoursContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, q.Close())
	_, err = q.Pop(context.Background())
	require.ErrorIs(t, err, ErrConnectionLost)
}

func TestMemoryQueueClosed(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	require.NotPanics(t, func() {
		err := q.Push(context.Background(), &Job{ID: "late"})
		require.ErrorIs(t, err, ErrConnectionLost)
	})
	_, err := q.Get(context.Background(), "late")
	require.ErrorIs(t, err, ErrJobNotFound)

	// A push blocked on a full queue is released by Close.
	q = NewMemoryQueue(1)
	require.NoError(t, q.Push(context.Background(), &Job{ID: "a"}))
	errc := make(chan error, 1)
	go func() { errc <- q.Push(context.Background(), &Job{ID: "b"}) }()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Close())
	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrConnectionLost)
	case <-time.After(time.Second):
		t.Fatal("push still blocked after close")
	}
}

func TestJobStatusString(t *testing.T) {
	require.Equal(t, "pending", StatusPending.String())
	require.Equal(t, "failed", StatusFailed.String())
	require.Equal(t, "JobStatus(9)", JobStatus(9).String())
}
