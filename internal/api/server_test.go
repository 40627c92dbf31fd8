package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/tipbox/internal/serverdb"
)

func TestHealthz(t *testing.T) {
	h := newTestHarness(t)

	var body map[string]string
	h.DoJSON("GET", "/healthz", "", nil, &body)
	if body["status"] != "ok" {
		t.Fatalf("expected ok, got %v", body)
	}
}

func TestHealthzDBDown(t *testing.T) {
	h := newTestHarness(t)
	h.Store.Close()

	resp := h.Do("GET", "/healthz", "", nil)
	h.AssertStatus(resp, http.StatusServiceUnavailable)
}

func TestNewServerNilStore(t *testing.T) {
	if _, err := NewServer(Config{}, nil, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestRequestIDHeader(t *testing.T) {
	h := newTestHarness(t)

	resp := h.Do("GET", "/healthz", "", nil)
	resp.Body.Close()
	id := resp.Header.Get("X-Request-ID")
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("X-Request-ID %q is not a uuid: %v", id, err)
	}
}

func TestRequestIDReusesValidHeader(t *testing.T) {
	h := newTestHarness(t)
	want := uuid.NewString()

	req, _ := http.NewRequest("GET", h.BaseURL+"/healthz", nil)
	req.Header.Set("X-Request-ID", want)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}

	req.Header.Set("X-Request-ID", "not-a-uuid")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got == "not-a-uuid" {
		t.Fatal("malformed request id should be replaced")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var er ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&er); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if er.Error.Code != ErrCodeInternal {
		t.Fatalf("expected internal_error, got %s", er.Error.Code)
	}
}

func TestMetriczCountsRequests(t *testing.T) {
	h := newTestHarness(t)
	h.SeedCatalog()
	_, token := h.CreateUser("m@example.com")

	h.AssertStatus(h.Do("GET", "/healthz", "", nil), http.StatusOK)
	h.AssertStatus(h.Do("GET", "/v1/tips/missing", "", nil), http.StatusNotFound)
	h.AssertStatus(h.Do("PUT", "/v1/favorites/t1", token, nil), http.StatusNoContent)
	h.AssertStatus(h.Do("DELETE", "/v1/favorites/t1", token, nil), http.StatusNoContent)

	var snap MetricsSnapshot
	h.DoJSON("GET", "/metricz", "", nil, &snap)
	// The /metricz request itself is counted after the snapshot is taken
	if snap.Requests != 4 {
		t.Errorf("requests = %d, want 4", snap.Requests)
	}
	if snap.ClientErrors != 1 {
		t.Errorf("client errors = %d, want 1", snap.ClientErrors)
	}
	if snap.FavoritesAdded != 1 || snap.FavoritesRemoved != 1 {
		t.Errorf("favorite writes = +%d/-%d, want +1/-1", snap.FavoritesAdded, snap.FavoritesRemoved)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	h := newTestHarness(t, withCache())
	h.SeedCatalog()
	_, token := h.CreateUser("p@example.com")

	h.AssertStatus(h.Do("PUT", "/v1/favorites/t1", token, nil), http.StatusNoContent)
	h.AssertStatus(h.Do("GET", "/v1/favorites", token, nil), http.StatusOK)

	resp := h.Do("GET", "/metrics", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	body := string(raw)
	for _, want := range []string{
		`tipbox_http_requests_total{class="favorites",code="204",method="PUT"} 1`,
		`tipbox_favorite_writes_total{op="add"} 1`,
		`tipbox_favcache_misses_total 1`,
		`tipbox_uptime_seconds`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestServersHaveSeparateRegistries(t *testing.T) {
	// Two servers in one process must not collide on metric registration
	newTestHarness(t)
	newTestHarness(t)
}

func TestCleanupExpiresAuthRequests(t *testing.T) {
	h := newTestHarness(t)

	ar, err := h.Store.CreateAuthRequest("late@example.com", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Store.InsertRateLimitEvent("", "10.0.0.1", classAuth); err != nil {
		t.Fatal(err)
	}

	h.Server.cleanup()

	got, err := h.Store.GetAuthRequestByDeviceCode(ar.DeviceCode)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != serverdb.AuthStatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
	events, err := h.Store.ListAuthEvents(serverdb.AuthEventExpired, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].AuthRequestID != ar.ID {
		t.Fatalf("expected one expired event for %s, got %+v", ar.ID, events)
	}
	// Fresh rate limit events are within retention
	rl, err := h.Store.ListRateLimitEvents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rl) != 1 {
		t.Fatalf("expected rate limit event to survive cleanup, got %d", len(rl))
	}
}

func TestStartAndShutdown(t *testing.T) {
	h := newTestHarness(t)
	cfg := testConfig("")
	cfg.ListenAddr = "127.0.0.1:0"
	srv, err := NewServer(cfg, h.Store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
