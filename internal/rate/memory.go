package rate

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter: mismo fixed window que RedisLimiter pero en proceso, sobre
// go-cache. Para despliegues de un solo nodo o tests; no comparte estado
// entre réplicas.
type MemoryLimiter struct {
	cache  *gocache.Cache
	max    int64
	window time.Duration
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		cache:  gocache.New(window, 2*window),
		max:    int64(max),
		window: window,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	winStart := time.Now().UTC().Truncate(l.window)
	cacheKey := key + ":" + winStart.UTC().Format(time.RFC3339)

	hits, err := l.cache.IncrementInt64(cacheKey, 1)
	if err != nil {
		// primera vez en esta ventana
		hits = 1
		l.cache.Set(cacheKey, int64(1), l.window)
	}

	allowed := hits <= l.max
	remaining := l.max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   l.window,
	}
	if !allowed {
		res.RetryAfter = time.Until(winStart.Add(l.window))
	}
	return res, nil
}
