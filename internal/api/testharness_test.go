package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marcus/tipbox/internal/favcache"
	"github.com/marcus/tipbox/internal/serverdb"
)

// TestHarness wraps a full Server with a real HTTP listener for integration tests.
type TestHarness struct {
	t       *testing.T
	Server  *Server
	Store   *serverdb.ServerDB
	Cache   *favcache.Cache
	Backend *memBackend
	BaseURL string
	client  *http.Client
	httpSrv *httptest.Server
}

type harnessOptions struct {
	cfg   func(*Config)
	cache bool
}

type harnessOption func(*harnessOptions)

func withConfig(fn func(*Config)) harnessOption {
	return func(o *harnessOptions) { o.cfg = fn }
}

// withCache backs the server with an in-memory favorites cache.
func withCache() harnessOption {
	return func(o *harnessOptions) { o.cache = true }
}

func testConfig(dbPath string) Config {
	return Config{
		RateLimitAuth:           100000,
		RateLimitFavorites:      100000,
		RateLimitOther:          100000,
		ListenAddr:              ":0",
		ServerDBPath:            dbPath,
		AllowSignup:             true,
		BaseURL:                 "http://tipbox.test",
		AuthEventRetention:      90 * 24 * time.Hour,
		RateLimitEventRetention: 30 * 24 * time.Hour,
	}
}

// newTestHarness creates a TestHarness with a real HTTP server on a random port.
func newTestHarness(t *testing.T, opts ...harnessOption) *TestHarness {
	t.Helper()

	var o harnessOptions
	for _, opt := range opts {
		opt(&o)
	}

	dbPath := filepath.Join(t.TempDir(), "server.db")
	store, err := serverdb.Open(dbPath)
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}

	cfg := testConfig(dbPath)
	if o.cfg != nil {
		o.cfg(&cfg)
	}

	h := &TestHarness{t: t, Store: store, client: &http.Client{}}
	if o.cache {
		h.Backend = newMemBackend()
		h.Cache = favcache.New(h.Backend, time.Minute, nil)
	}

	srv, err := NewServer(cfg, store, h.Cache)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	h.Server = srv
	h.httpSrv = httptest.NewServer(srv.routes())
	h.BaseURL = h.httpSrv.URL

	t.Cleanup(func() {
		h.httpSrv.Close()
		srv.rateLimiter.Stop()
		store.Close()
	})
	return h
}

// Do sends an HTTP request and returns the response. The caller closes the
// body unless it hands the response to one of the assertion helpers.
func (h *TestHarness) Do(method, path, token string, body any) *http.Response {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		reader = &buf
	}

	req, err := http.NewRequest(method, h.BaseURL+path, reader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("do request %s %s: %v", method, path, err)
	}
	return resp
}

// DoJSON sends a request and decodes a successful JSON response into out.
func (h *TestHarness) DoJSON(method, path, token string, body any, out any) {
	h.t.Helper()

	resp := h.Do(method, path, token, body)
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		h.t.Fatalf("DoJSON %s %s: expected success, got %d: %s", method, path, resp.StatusCode, respBody)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		h.t.Fatalf("decode response: %v", err)
	}
}

// CreateUser creates a user and an API key for it.
func (h *TestHarness) CreateUser(email string) (userID, token string) {
	h.t.Helper()

	user, err := h.Store.CreateUser(email)
	if err != nil {
		h.t.Fatalf("create user: %v", err)
	}
	token, _, err = h.Store.GenerateAPIKey(user.ID, "test", nil)
	if err != nil {
		h.t.Fatalf("generate api key: %v", err)
	}
	return user.ID, token
}

// SeedCatalog loads two categories and three tips: t1 and t2 in git, t3 in
// shell.
func (h *TestHarness) SeedCatalog() {
	h.t.Helper()
	seedTestCatalog(h.t, h.Store)
}

func seedTestCatalog(t *testing.T, store *serverdb.ServerDB) {
	t.Helper()
	cats := []serverdb.Category{
		{ID: "c_git", Slug: "git", Name: "Git", Position: 0},
		{ID: "c_shell", Slug: "shell", Name: "Shell", Position: 1},
	}
	tips := []serverdb.Tip{
		{ID: "t1", CategoryID: "c_git", Title: "Amend the last commit", Body: "git commit --amend"},
		{ID: "t2", CategoryID: "c_git", Title: "Bisect a regression", Body: "git bisect start"},
		{ID: "t3", CategoryID: "c_shell", Title: "Reuse the last argument", Body: "Use `!$`."},
	}
	if _, err := store.SeedCatalog(cats, tips); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
}

// AssertStatus checks the status code and closes the body.
func (h *TestHarness) AssertStatus(resp *http.Response, want int) {
	h.t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		h.t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, body)
	}
}

// AssertErrorResponse checks the status code and error code of an error
// response and closes the body.
func (h *TestHarness) AssertErrorResponse(resp *http.Response, wantStatus int, wantCode string) {
	h.t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		h.t.Fatalf("expected status %d, got %d: %s", wantStatus, resp.StatusCode, body)
	}
	var er ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		h.t.Fatalf("decode error response: %v", err)
	}
	if er.Error.Code != wantCode {
		h.t.Fatalf("expected error code %q, got %q (%s)", wantCode, er.Error.Code, er.Error.Message)
	}
}

// ReadJSON decodes the body into out and closes it.
func (h *TestHarness) ReadJSON(resp *http.Response, out any) {
	h.t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		h.t.Fatalf("decode response: %v", err)
	}
}

// memBackend is an in-memory favcache.Backend. beforeSet, when set, runs
// once inside SetIfVersion, between the database read and the cache write.
type memBackend struct {
	mu        sync.Mutex
	data      map[string][]byte
	versions  map[string]int64
	beforeSet func()
}

func newMemBackend() *memBackend {
	return &memBackend{data: map[string][]byte{}, versions: map[string]int64{}}
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memBackend) Version(_ context.Context, verKey string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[verKey], nil
}

func (m *memBackend) SetIfVersion(_ context.Context, key, verKey string, version int64, value []byte, _ time.Duration) (bool, error) {
	m.mu.Lock()
	hook := m.beforeSet
	m.beforeSet = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions[verKey] != version {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *memBackend) Bump(_ context.Context, key, verKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[verKey]++
	delete(m.data, key)
	return nil
}

func (m *memBackend) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}
