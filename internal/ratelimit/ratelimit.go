// Package ratelimit caps notification sends per recipient and globally.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter admits at most a fixed number of sends per key within a window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryWindow is a sliding-window Limiter held in process memory.
type MemoryWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

func NewMemoryWindow(limit int, window time.Duration) *MemoryWindow {
	return &MemoryWindow{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

func (m *MemoryWindow) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	hits := prune(m.hits[key], now.Add(-m.window))
	if len(hits) >= m.limit {
		m.hits[key] = hits
		return false, nil
	}
	m.hits[key] = append(hits, now)
	return true, nil
}

// Cleanup drops keys with no hits inside the window until ctx is done.
func (m *MemoryWindow) Cleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *MemoryWindow) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.window)
	for key, hits := range m.hits {
		hits = prune(hits, cutoff)
		if len(hits) == 0 {
			delete(m.hits, key)
			continue
		}
		m.hits[key] = hits
	}
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

// RedisWindow is a fixed-window Limiter shared by every service instance.
type RedisWindow struct {
	rdb    redis.Cmdable
	limit  int
	window time.Duration
	prefix string
}

func NewRedisWindow(rdb redis.Cmdable, limit int, window time.Duration) *RedisWindow {
	return &RedisWindow{rdb: rdb, limit: limit, window: window, prefix: "ratelimit:notify:"}
}

func (r *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	k := r.prefix + key

	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, r.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	return incr.Val() <= int64(r.limit), nil
}

// Global is a process-wide token bucket over all sends.
type Global struct {
	limiter *rate.Limiter
}

// NewGlobal allows perSecond sends with the given burst. A non-positive rate
// disables the limit.
func NewGlobal(perSecond float64, burst int) *Global {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Global{limiter: rate.NewLimiter(limit, burst)}
}

func (g *Global) Allow() bool {
	return g.limiter.Allow()
}
