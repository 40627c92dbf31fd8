package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/marcus/tipbox/internal/serverdb"
)

// Endpoint classes used for rate limits and rate-limit events.
const (
	classAuth      = "auth"
	classFavorites = "favorites"
	classOther     = "other"
)

// RateLimiter implements per-key fixed-window rate limiting.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	count    int
	windowAt time.Time
}

// NewRateLimiter creates a RateLimiter and starts background cleanup.
// Call Stop to end the cleanup goroutine.
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-rl.stop:
				return
			case <-t.C:
				rl.cleanup()
			}
		}
	}()
	return rl
}

// Stop ends background cleanup. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// Allow reports whether key is within limit requests for the current
// one-minute window, counting this request if it is.
func (rl *RateLimiter) Allow(key string, limit int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok || now.Sub(b.windowAt) >= time.Minute {
		rl.buckets[key] = &bucket{count: 1, windowAt: now}
		return true
	}
	if b.count >= limit {
		return false
	}
	b.count++
	return true
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-2 * time.Minute)
	for k, b := range rl.buckets {
		if b.windowAt.Before(cutoff) {
			delete(rl.buckets, k)
		}
	}
}

// authRateLimitMiddleware limits the login endpoints per client IP. It is
// installed globally and ignores other paths.
func authRateLimitMiddleware(rl *RateLimiter, limit int, store *serverdb.ServerDB, m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if classifyEndpoint(r.URL.Path) != classAuth {
				next.ServeHTTP(w, r)
				return
			}
			ip := clientIP(r)
			if !rl.Allow("ip:"+ip, limit) {
				if err := store.InsertRateLimitEvent("", ip, classAuth); err != nil {
					logFor(r.Context()).Error("log rate limit event", "err", err)
				}
				m.RecordRateLimited(classAuth)
				writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// withRateLimit limits an authenticated handler per API key and endpoint
// class. It must run inside requireAuth.
func (s *Server) withRateLimit(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := getUserFromContext(r.Context())
		if user == nil {
			handler(w, r)
			return
		}
		class := classifyEndpoint(r.URL.Path)
		limit := s.config.RateLimitOther
		if class == classFavorites {
			limit = s.config.RateLimitFavorites
		}
		if !s.rateLimiter.Allow(fmt.Sprintf("key:%s:%s", user.KeyID, class), limit) {
			if err := s.store.InsertRateLimitEvent(user.KeyID, clientIP(r), class); err != nil {
				logFor(r.Context()).Error("log rate limit event", "err", err)
			}
			s.metrics.RecordRateLimited(class)
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
			return
		}
		handler(w, r)
	}
}

func classifyEndpoint(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/auth/"), strings.HasPrefix(path, "/auth/"):
		return classAuth
	case path == "/v1/favorites", strings.HasPrefix(path, "/v1/favorites/"):
		return classFavorites
	}
	return classOther
}

// clientIP extracts the client IP, preferring the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
