package server

import (
	"sync"
	"time"

	"github.com/jrsteele09/peek-plugin-user/internal/metrics"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client address.
type ipRateLimiter struct {
	limit rate.Limit
	burst int

	lock      sync.Mutex
	entries   map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

// newIPRateLimiter returns a limiter allowing perSecond actions with the given burst.
// A non positive rate disables limiting.
func newIPRateLimiter(perSecond float64, burst int) *ipRateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &ipRateLimiter{
		limit:   limit,
		burst:   burst,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

func (l *ipRateLimiter) Allow(ip string) bool {
	l.lock.Lock()
	now := l.now()
	l.sweep(now)
	entry, ok := l.entries[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = entry
	}
	entry.lastSeen = now
	l.lock.Unlock()

	if !entry.limiter.AllowN(now, 1) {
		metrics.RateLimitedRequests.Inc()
		return false
	}
	return true
}

// sweep drops idle buckets. Caller holds the lock.
func (l *ipRateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < limiterIdleTTL {
		return
	}
	l.lastSweep = now
	for ip, entry := range l.entries {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.entries, ip)
		}
	}
}
