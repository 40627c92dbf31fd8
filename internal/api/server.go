package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/marcus/tipbox/internal/favcache"
	"github.com/marcus/tipbox/internal/serverdb"
)

const (
	maxBodyBytes    = 1 << 20
	cleanupInterval = 5 * time.Minute
)

// Server is the tipbox HTTP API server.
type Server struct {
	config      Config
	http        *http.Server
	store       *serverdb.ServerDB
	cache       *favcache.Cache
	metrics     *Metrics
	rateLimiter *RateLimiter
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewServer creates a Server. cache may be nil, in which case favorites are
// always read from the database.
func NewServer(cfg Config, store *serverdb.ServerDB, cache *favcache.Cache) (*Server, error) {
	if store == nil {
		return nil, errors.New("api: nil store")
	}
	s := &Server{
		config:      cfg,
		store:       store,
		cache:       cache,
		metrics:     NewMetrics(cache),
		rateLimiter: NewRateLimiter(),
	}

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Start begins listening for HTTP requests (non-blocking) and starts the
// cleanup loop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server", "err", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.cleanupLoop(ctx)

	return nil
}

// Shutdown stops the cleanup loop and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.rateLimiter.Stop()
	return s.http.Shutdown(ctx)
}

func (s *Server) cleanupLoop(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("cleanup panic", "panic", r)
		}
	}()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup expires stale login requests and prunes old audit rows.
func (s *Server) cleanup() {
	expired, err := s.store.ExpireAuthRequests()
	if err != nil {
		slog.Error("expire auth requests", "err", err)
	}
	for _, ar := range expired {
		s.logAuthEvent(nil, ar.ID, ar.Email, serverdb.AuthEventExpired, nil)
	}
	if len(expired) > 0 {
		slog.Info("expired auth requests", "count", len(expired))
	}

	if n, err := s.store.CleanupRateLimitEvents(s.config.RateLimitEventRetention); err != nil {
		slog.Error("cleanup rate limit events", "err", err)
	} else if n > 0 {
		slog.Info("pruned rate limit events", "count", n)
	}
	if n, err := s.store.CleanupAuthEvents(s.config.AuthEventRetention); err != nil {
		slog.Error("cleanup auth events", "err", err)
	} else if n > 0 {
		slog.Info("pruned auth events", "count", n)
	}
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Auth (public)
	mux.HandleFunc("POST /v1/auth/login/start", s.handleLoginStart)
	mux.HandleFunc("POST /v1/auth/login/poll", s.handleLoginPoll)
	mux.HandleFunc("GET /auth/verify", s.handleVerifyPage)
	mux.HandleFunc("POST /auth/verify", s.handleVerifySubmit)

	// Catalog (public, CORS)
	public := func(h http.HandlerFunc) http.Handler { return s.CORSMiddleware(h) }
	mux.Handle("GET /v1/categories", public(s.handleListCategories))
	mux.Handle("GET /v1/tips", public(s.handleListTips))
	mux.Handle("GET /v1/tips/{id}", public(s.handleGetTip))
	mux.Handle("OPTIONS /v1/categories", public(handlePreflight))
	mux.Handle("OPTIONS /v1/tips", public(handlePreflight))
	mux.Handle("OPTIONS /v1/tips/{id}", public(handlePreflight))

	// Favorites and account
	authed := func(h http.HandlerFunc) http.HandlerFunc { return s.requireAuth(s.withRateLimit(h)) }
	mux.HandleFunc("GET /v1/favorites", authed(s.handleListFavorites))
	mux.HandleFunc("PUT /v1/favorites/{id}", authed(s.handleAddFavorite))
	mux.HandleFunc("DELETE /v1/favorites/{id}", authed(s.handleRemoveFavorite))
	mux.HandleFunc("GET /v1/me", authed(s.handleMe))

	return chain(mux,
		recoveryMiddleware,
		requestIDMiddleware,
		loggerMiddleware,
		metricsMiddleware(s.metrics),
		loggingMiddleware,
		maxBytesMiddleware(maxBodyBytes),
		authRateLimitMiddleware(s.rateLimiter, s.config.RateLimitAuth, s.store, s.metrics),
	)
}

// handleHealth reports ok when the database answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
