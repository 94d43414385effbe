package httpserver

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleCutoff = 10 * time.Minute

// upgradeRateLimiter throttles new WebSocket upgrades per client IP with a
// token bucket per source. Stale buckets are swept opportunistically so the
// map stays bounded under churning IPs.
type upgradeRateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newUpgradeRateLimiter(perSecond float64, burst int) *upgradeRateLimiter {
	return &upgradeRateLimiter{
		buckets:   make(map[string]*bucket),
		rate:      rate.Limit(perSecond),
		burst:     burst,
		cleanupAt: time.Now().Add(5 * time.Minute),
	}
}

func (l *upgradeRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now := time.Now(); now.After(l.cleanupAt) {
		l.sweep(now)
		l.cleanupAt = now.Add(5 * time.Minute)
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

// sweep drops buckets idle past the cutoff. Caller holds mu.
func (l *upgradeRateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-limiterIdleCutoff)
	for ip, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}
