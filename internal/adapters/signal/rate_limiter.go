package signal

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// KeyedLimiter keeps one token bucket per key, e.g. per client address.
// Buckets idle for longer than the refill of a full burst are forgotten.
type KeyedLimiter struct {
	mu      sync.Mutex
	clock   clock.Clock
	limit   rate.Limit
	burst   int
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter allows limit events per interval and key.
func NewKeyedLimiter(clk clock.Clock, limit int, interval time.Duration) *KeyedLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &KeyedLimiter{
		clock:   clk,
		limit:   rate.Every(interval / time.Duration(limit)),
		burst:   limit,
		buckets: make(map[string]*bucket),
	}
}

func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *KeyedLimiter) prune(now time.Time) {
	idle := time.Duration(float64(l.burst) / float64(l.limit) * float64(time.Second))
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(l.buckets, key)
		}
	}
}
