package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kiranshivaraju/policyadmin/internal/api/response"
	"github.com/kiranshivaraju/policyadmin/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	window                   = 60 * time.Second
)

// RateLimit provides fixed-window rate limiting per principal via Redis.
// While Redis is unreachable a per-process token bucket takes over.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int

	mu       sync.Mutex
	fallback map[string]*rate.Limiter
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{
		cache:          c,
		requestsPerMin: requestsPerMin,
		fallback:       make(map[string]*rate.Limiter),
	}
}

// Limit applies rate limiting based on the principal set by auth middleware.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipal(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(p.Login), window)
		if err != nil {
			slog.Warn("rate limit store unavailable, using local limiter", "error", err)
			if !rl.local(p.Login).Allow() {
				rl.reject(w)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(rl.requestsPerMin-int(count), 0)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(window).Unix(), 10))

		if count > int64(rl.requestsPerMin) {
			rl.reject(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimit) local(login string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.fallback[login]
	if !ok {
		l = rate.NewLimiter(rate.Every(window/time.Duration(rl.requestsPerMin)), rl.requestsPerMin)
		rl.fallback[login] = l
	}
	return l
}

func (rl *RateLimit) reject(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "60")
	response.Error(w, http.StatusTooManyRequests,
		"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
}
