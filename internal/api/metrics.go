package api

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcus/tipbox/internal/favcache"
)

// Metrics keeps the JSON counters served on /metricz and a Prometheus
// registry served on /metrics. Each Server owns its own registry so tests
// can build many servers in one process.
type Metrics struct {
	startTime      time.Time
	requests       atomic.Int64
	serverErrors   atomic.Int64
	clientErrors   atomic.Int64
	favoriteAdds   atomic.Int64
	favoriteRemove atomic.Int64
	rateLimited    atomic.Int64

	registry     *prometheus.Registry
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	favWrites    *prometheus.CounterVec
	limited      *prometheus.CounterVec

	cache *favcache.Cache
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds    float64 `json:"uptime_seconds"`
	Requests         int64   `json:"requests"`
	ServerErrors     int64   `json:"server_errors"`
	ClientErrors     int64   `json:"client_errors"`
	FavoritesAdded   int64   `json:"favorites_added"`
	FavoritesRemoved int64   `json:"favorites_removed"`
	RateLimited      int64   `json:"rate_limited"`
	CacheHits        int64   `json:"cache_hits"`
	CacheMisses      int64   `json:"cache_misses"`
	CacheErrors      int64   `json:"cache_errors"`
	CacheStaleFills  int64   `json:"cache_stale_fills"`
}

// NewMetrics creates the counters and registers them, along with cache
// statistics read from cache at scrape time. cache may be nil.
func NewMetrics(cache *favcache.Cache) *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		cache:     cache,
		registry:  prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tipbox_http_requests_total",
			Help: "HTTP requests by method, endpoint class and status code.",
		}, []string{"method", "class", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tipbox_http_request_duration_seconds",
			Help:    "HTTP request latency by endpoint class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"class"}),
		favWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tipbox_favorite_writes_total",
			Help: "Favorite adds and removes that changed stored state.",
		}, []string{"op"}),
		limited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tipbox_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by endpoint class.",
		}, []string{"class"}),
	}

	stat := func(pick func(favcache.Stats) int64) func() float64 {
		return func() float64 { return float64(pick(cache.Stats())) }
	}
	m.registry.MustRegister(
		m.httpRequests, m.httpDuration, m.favWrites, m.limited,
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "tipbox_favcache_hits_total",
			Help: "Favorites cache hits.",
		}, stat(func(s favcache.Stats) int64 { return s.Hits })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "tipbox_favcache_misses_total",
			Help: "Favorites cache misses.",
		}, stat(func(s favcache.Stats) int64 { return s.Misses })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "tipbox_favcache_errors_total",
			Help: "Favorites cache backend errors.",
		}, stat(func(s favcache.Stats) int64 { return s.Errors })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "tipbox_favcache_stale_fills_total",
			Help: "Favorites cache fills dropped because a write raced them.",
		}, stat(func(s favcache.Stats) int64 { return s.Stale })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tipbox_uptime_seconds",
			Help: "Seconds since the server started.",
		}, func() float64 { return time.Since(m.startTime).Seconds() }),
	)
	return m
}

// RecordRequest counts one finished request.
func (m *Metrics) RecordRequest(method, class string, code int, dur time.Duration) {
	m.requests.Add(1)
	switch {
	case code >= 500:
		m.serverErrors.Add(1)
	case code >= 400:
		m.clientErrors.Add(1)
	}
	m.httpRequests.WithLabelValues(method, class, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(class).Observe(dur.Seconds())
}

// RecordFavoriteWrite counts an add or remove that changed stored state.
func (m *Metrics) RecordFavoriteWrite(added bool) {
	op := "remove"
	if added {
		op = "add"
		m.favoriteAdds.Add(1)
	} else {
		m.favoriteRemove.Add(1)
	}
	m.favWrites.WithLabelValues(op).Inc()
}

// RecordRateLimited counts a rejected request.
func (m *Metrics) RecordRateLimited(class string) {
	m.rateLimited.Add(1)
	m.limited.WithLabelValues(class).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	cs := m.cache.Stats()
	return MetricsSnapshot{
		UptimeSeconds:    time.Since(m.startTime).Seconds(),
		Requests:         m.requests.Load(),
		ServerErrors:     m.serverErrors.Load(),
		ClientErrors:     m.clientErrors.Load(),
		FavoritesAdded:   m.favoriteAdds.Load(),
		FavoritesRemoved: m.favoriteRemove.Load(),
		RateLimited:      m.rateLimited.Load(),
		CacheHits:        cs.Hits,
		CacheMisses:      cs.Misses,
		CacheErrors:      cs.Errors,
		CacheStaleFills:  cs.Stale,
	}
}
