package httpx

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per user and forgets idle users.
type RateLimiter struct {
	Rate      rate.Limit
	Burst     int
	ExpiresIn time.Duration

	mu       sync.Mutex
	visitors map[string]*visitor
	lastGC   time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(perSec float64, burst int) *RateLimiter {
	return &RateLimiter{
		Rate:      rate.Limit(perSec),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
		visitors:  map[string]*visitor{},
	}
}

func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if now.Sub(l.lastGC) > l.ExpiresIn {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.ExpiresIn {
				delete(l.visitors, k)
			}
		}
		l.lastGC = now
	}
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.Rate, l.Burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware limits by authenticated user; it must run after auth.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l != nil && !l.Allow(principal(r).UserID) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many checkout requests", Reason: "rate_limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
