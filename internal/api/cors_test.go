package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var stubHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func newCORSServer(origins []string) *Server {
	return &Server{config: Config{CORSAllowedOrigins: origins}}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		origin     string
		method     string
		wantHeader string
		wantCode   int
	}{
		{"no origins configured", nil, "https://a.example", "GET", "", http.StatusOK},
		{"no origin header", []string{"https://a.example"}, "", "GET", "", http.StatusOK},
		{"allowed origin", []string{"https://a.example"}, "https://a.example", "GET", "https://a.example", http.StatusOK},
		{"other origin", []string{"https://a.example"}, "https://evil.example", "GET", "", http.StatusOK},
		{"wildcard", []string{"*"}, "https://any.example", "GET", "https://any.example", http.StatusOK},
		{"preflight", []string{"https://a.example"}, "https://a.example", "OPTIONS", "https://a.example", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newCORSServer(tt.origins).CORSMiddleware(stubHandler)
			req := httptest.NewRequest(tt.method, "/v1/tips", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestCORSOnCatalogRoutes(t *testing.T) {
	h := newTestHarness(t, withConfig(func(c *Config) {
		c.CORSAllowedOrigins = []string{"https://web.example"}
	}))
	h.SeedCatalog()

	req, _ := http.NewRequest("OPTIONS", h.BaseURL+"/v1/tips/t1", nil)
	req.Header.Set("Origin", "https://web.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight: expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Methods") != "GET, OPTIONS" {
		t.Errorf("unexpected methods header %q", resp.Header.Get("Access-Control-Allow-Methods"))
	}

	// Favorites are not exposed cross-origin
	_, token := h.CreateUser("c@example.com")
	req, _ = http.NewRequest("GET", h.BaseURL+"/v1/favorites", nil)
	req.Header.Set("Origin", "https://web.example")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Error("favorites should not carry CORS headers")
	}
}
