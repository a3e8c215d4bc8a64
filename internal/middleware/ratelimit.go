// Package middleware holds HTTP middlewares that chi does not ship, today
// only a fixed-window per-client rate limiter for the ops API.
package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type window struct {
	count int
	until time.Time
}

// RateLimiter caps requests per client IP over a fixed window. It protects
// the enqueue endpoint from a misbehaving caller; tenant fairness is enforced
// separately by the engine's admission quotas.
type RateLimiter struct {
	limit int
	per   time.Duration

	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewRateLimiter(limit int, per time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		per:     per,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		retryAfter, ok := rl.allow(clientIP(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow reports whether the client may proceed. When denied it also returns
// the whole seconds until the window resets, for the Retry-After header.
func (rl *RateLimiter) allow(ip string) (int, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	win, ok := rl.windows[ip]
	if !ok || now.After(win.until) {
		win = &window{until: now.Add(rl.per)}
		rl.windows[ip] = win
	}
	if win.count >= rl.limit {
		retry := int(win.until.Sub(now).Seconds())
		if retry < 1 {
			retry = 1
		}
		return retry, false
	}
	win.count++
	return 0, true
}

func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip != "" && net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && net.ParseIP(host) != nil {
		return host
	}
	return r.RemoteAddr
}
