package auth

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter throttles attempts per key (client IP for logins).
type Limiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu    sync.Mutex
	keys  map[string]*keyLimiter
	swept time.Time
}

// NewLimiter allows perMinute attempts per key, all of which may be spent at
// once. perMinute <= 0 disables limiting.
func NewLimiter(perMinute int) *Limiter {
	l := &Limiter{
		limit: rate.Inf,
		burst: 1,
		now:   time.Now,
		keys:  make(map[string]*keyLimiter),
	}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
		l.burst = perMinute
	}
	return l
}

// Allow consumes one attempt for key. When the key is over its limit it
// returns false and the number of seconds until the next attempt is allowed.
func (l *Limiter) Allow(key string) (bool, int) {
	if l.limit == rate.Inf {
		return true, 0
	}

	now := l.now()
	l.mu.Lock()
	l.sweep(now)
	kl, ok := l.keys[key]
	if !ok {
		kl = &keyLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.keys[key] = kl
	}
	kl.lastSeen = now
	l.mu.Unlock()

	r := kl.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, int(math.Ceil(delay.Seconds()))
	}
	return true, 0
}

// sweep drops idle keys. Called with mu held.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.swept) < limiterIdle {
		return
	}
	for k, kl := range l.keys {
		if now.Sub(kl.lastSeen) > limiterIdle {
			delete(l.keys, k)
		}
	}
	l.swept = now
}
