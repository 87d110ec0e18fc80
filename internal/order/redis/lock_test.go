package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ms-registration/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client backed by miniredis
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestChargeGuard_AcquireRelease(t *testing.T) {
	client, _ := setupTestRedis(t)
	g := NewChargeGuard(client, time.Minute, logger.New(nil))
	ctx := context.Background()

	ok, err := g.Acquire(ctx, 7, "first")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Acquire(ctx, 7, "second")
	require.NoError(t, err)
	assert.False(t, ok, "second submission must not get the guard")

	ok, err = g.Acquire(ctx, 8, "second")
	require.NoError(t, err)
	assert.True(t, ok, "guards are per order")

	// Releasing with the wrong holder leaves the guard in place.
	require.NoError(t, g.Release(ctx, 7, "second"))
	held, err := g.Held(ctx, 7)
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, g.Release(ctx, 7, "first"))
	held, err = g.Held(ctx, 7)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestChargeGuard_Expires(t *testing.T) {
	client, mr := setupTestRedis(t)
	g := NewChargeGuard(client, 30*time.Second, logger.New(nil))
	ctx := context.Background()

	ok, err := g.Acquire(ctx, 1, "a")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	ok, err = g.Acquire(ctx, 1, "b")
	require.NoError(t, err)
	assert.True(t, ok)

	// The stale holder cannot release the new holder's guard.
	require.NoError(t, g.Release(ctx, 1, "a"))
	held, err := g.Held(ctx, 1)
	require.NoError(t, err)
	assert.True(t, held)
}

func TestChargeGuard_Concurrent(t *testing.T) {
	client, _ := setupTestRedis(t)
	g := NewChargeGuard(client, time.Minute, logger.New(nil))

	var wg sync.WaitGroup
	var winners int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := g.Acquire(context.Background(), 99, string(rune('a'+i)))
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&winners, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

func TestNewChargeGuard_DefaultTTL(t *testing.T) {
	g := NewChargeGuard(nil, 0, nil)
	assert.Equal(t, defaultGuardTTL, g.TTL)
}
