package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/marcus/tipbox/internal/catalogclient"
)

// fakeServer is a minimal tipbox-server: a fixed catalog and one account
// whose API key is validKey.
type fakeServer struct {
	mu   sync.Mutex
	favs map[string]bool
	tips map[string]catalogclient.TipResponse
}

const validKey = "tb_test_key"

func newFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	fs := &fakeServer{
		favs: map[string]bool{},
		tips: map[string]catalogclient.TipResponse{
			"t1": {ID: "t1", Category: "git", Title: "Amend the last commit", Body: "Run `git commit --amend`."},
			"t2": {ID: "t2", Category: "git", Title: "Bisect a regression"},
			"t3": {ID: "t3", Category: "shell", Title: "Reuse the last argument", Body: "Use `!$`."},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/categories", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, []catalogclient.CategoryResponse{
			{ID: "c_git", Slug: "git", Name: "Git", TipCount: 2},
			{ID: "c_shell", Slug: "shell", Name: "Shell", TipCount: 1},
		})
	})
	mux.HandleFunc("GET /v1/tips", func(w http.ResponseWriter, r *http.Request) {
		var out []catalogclient.TipResponse
		for _, id := range []string{"t1", "t2", "t3"} {
			tip := fs.tips[id]
			if c := r.URL.Query().Get("category"); c != "" && c != tip.Category {
				continue
			}
			tip.Body = ""
			out = append(out, tip)
		}
		writeTestJSON(w, http.StatusOK, catalogclient.TipListResponse{Tips: out, Total: len(out), Limit: 50})
	})
	mux.HandleFunc("GET /v1/tips/{id}", func(w http.ResponseWriter, r *http.Request) {
		tip, ok := fs.tips[r.PathValue("id")]
		if !ok {
			writeTestError(w, http.StatusNotFound, "not_found", "tip not found")
			return
		}
		writeTestJSON(w, http.StatusOK, tip)
	})
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+validKey {
				writeTestError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired api key")
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc("GET /v1/favorites", authed(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		out := []catalogclient.FavoriteResponse{}
		for _, id := range []string{"t1", "t2", "t3"} {
			if fs.favs[id] {
				tip := fs.tips[id]
				out = append(out, catalogclient.FavoriteResponse{ID: id, Title: tip.Title, Category: tip.Category, FavoritedAt: "2026-01-02T03:04:05Z"})
			}
		}
		writeTestJSON(w, http.StatusOK, catalogclient.FavoriteListResponse{Favorites: out})
	}))
	mux.HandleFunc("PUT /v1/favorites/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := fs.tips[r.PathValue("id")]; !ok {
			writeTestError(w, http.StatusNotFound, "not_found", "tip not found")
			return
		}
		fs.mu.Lock()
		fs.favs[r.PathValue("id")] = true
		fs.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("DELETE /v1/favorites/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		delete(fs.favs, r.PathValue("id"))
		fs.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("GET /v1/me", authed(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, catalogclient.MeResponse{UserID: "u_1", Email: "ada@example.com"})
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeTestError(w http.ResponseWriter, status int, code, msg string) {
	writeTestJSON(w, status, map[string]any{"error": map[string]string{"code": code, "message": msg}})
}

// setupCLI points the CLI at a fresh config dir and a fake server.
func setupCLI(t *testing.T, apiKey string) {
	t.Helper()
	srv := newFakeServer(t)
	t.Setenv("TIPBOX_CONFIG_DIR", t.TempDir())
	t.Setenv("TIPBOX_SERVER_URL", srv.URL)
	t.Setenv("TIPBOX_AUTH_KEY", apiKey)
	t.Setenv("TIPBOX_FAVORITES_LIMIT", "2")
	t.Setenv("TIPBOX_LOG_LEVEL", "error")
}

// runCLI executes the root command with args and returns what it printed.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	format = formatText

	oldOut := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	rootCmd.SetArgs(args)
	runErr := rootCmd.ExecuteContext(context.Background())

	w.Close()
	os.Stdout = oldOut

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String(), runErr
}

// resetFlags puts every flag changed by an earlier run back to its default.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("tipbox %s: %v", strings.Join(args, " "), err)
	}
	return out
}
