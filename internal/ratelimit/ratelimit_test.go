package ratelimit

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

func TestMemoryWindow_SixthSuppressed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	w := NewMemoryWindow(5, time.Hour)
	w.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		ok, err := w.Allow(ctx, "p1")
		require.NoError(t, err)
		assert.True(t, ok, "send %d", i+1)
		now = now.Add(time.Minute)
	}

	ok, err := w.Allow(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = w.Allow(ctx, "p2")
	assert.True(t, ok, "other recipients are unaffected")
}

func TestMemoryWindow_Slides(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	w := NewMemoryWindow(2, time.Hour)
	w.now = func() time.Time { return now }

	ok, _ := w.Allow(ctx, "p1")
	require.True(t, ok)
	now = now.Add(30 * time.Minute)
	ok, _ = w.Allow(ctx, "p1")
	require.True(t, ok)
	ok, _ = w.Allow(ctx, "p1")
	require.False(t, ok)

	now = now.Add(31 * time.Minute)
	ok, _ = w.Allow(ctx, "p1")
	assert.True(t, ok, "first hit left the window")
}

func TestMemoryWindow_Sweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	w := NewMemoryWindow(1, time.Minute)
	w.now = func() time.Time { return now }

	_, _ = w.Allow(context.Background(), "p1")
	now = now.Add(2 * time.Minute)
	w.sweep()

	assert.Empty(t, w.hits)
}

func TestGlobal(t *testing.T) {
	g := NewGlobal(1, 2)
	assert.True(t, g.Allow())
	assert.True(t, g.Allow())
	assert.False(t, g.Allow())

	unlimited := NewGlobal(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.Allow())
	}
}

func TestRedisWindow(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if testing.Short() || addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	w := NewRedisWindow(rdb, 5, time.Minute)
	key := uuid.NewString()

	for i := 0; i < 5; i++ {
		ok, err := w.Allow(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := w.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := rdb.TTL(ctx, "ratelimit:notify:"+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
