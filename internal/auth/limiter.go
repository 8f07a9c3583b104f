package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRefreshRate allows one refresh attempt per server every 10 seconds.
	DefaultRefreshRate  = rate.Limit(0.1)
	DefaultRefreshBurst = 3
)

// refreshLimiter throttles refresh attempts per server in this process so a
// hot loop of failing requests cannot hammer an authorization server.
type refreshLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

func newRefreshLimiter(limit rate.Limit, burst int, now func() time.Time) *refreshLimiter {
	if limit <= 0 {
		limit = DefaultRefreshRate
	}
	if burst <= 0 {
		burst = DefaultRefreshBurst
	}
	return &refreshLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		now:      now,
	}
}

func (l *refreshLimiter) allow(serverID string) bool {
	return l.get(serverID).AllowN(l.now(), 1)
}

func (l *refreshLimiter) get(serverID string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[serverID]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, ok := l.limiters[serverID]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(l.limit, l.burst)
	l.limiters[serverID] = limiter
	return limiter
}
