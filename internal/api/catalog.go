package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/marcus/tipbox/internal/serverdb"
)

type categoryResponse struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	TipCount int    `json:"tip_count"`
}

type tipResponse struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Title     string `json:"title"`
	Body      string `json:"body,omitempty"`
	CreatedAt string `json:"created_at"`
}

type tipListResponse struct {
	Tips   []tipResponse `json:"tips"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func toTipResponse(t serverdb.Tip, withBody bool) tipResponse {
	tr := tipResponse{
		ID:        t.ID,
		Category:  t.CategorySlug,
		Title:     t.Title,
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
	}
	if withBody {
		tr.Body = t.Body
	}
	return tr
}

// handleListCategories handles GET /v1/categories.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.ListCategories()
	if err != nil {
		logFor(r.Context()).Error("list categories", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list categories")
		return
	}
	resp := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		resp = append(resp, categoryResponse{ID: c.ID, Slug: c.Slug, Name: c.Name, TipCount: c.TipCount})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListTips handles GET /v1/tips?category=&limit=&offset=.
func (s *Server) handleListTips(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := serverdb.TipFilter{CategorySlug: q.Get("category"), Limit: serverdb.DefaultTipPageSize}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = min(n, serverdb.MaxTipPageSize)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "offset must be a non-negative integer")
			return
		}
		f.Offset = n
	}

	if f.CategorySlug != "" {
		c, err := s.store.GetCategoryBySlug(f.CategorySlug)
		if err != nil {
			logFor(r.Context()).Error("get category", "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to look up category")
			return
		}
		if c == nil {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "category not found")
			return
		}
	}

	tips, total, err := s.store.ListTips(f)
	if err != nil {
		logFor(r.Context()).Error("list tips", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list tips")
		return
	}

	resp := tipListResponse{Tips: make([]tipResponse, 0, len(tips)), Total: total, Limit: f.Limit, Offset: f.Offset}
	for _, t := range tips {
		resp.Tips = append(resp.Tips, toTipResponse(t, false))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetTip handles GET /v1/tips/{id}.
func (s *Server) handleGetTip(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTip(r.PathValue("id"))
	if err != nil {
		logFor(r.Context()).Error("get tip", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to get tip")
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "tip not found")
		return
	}
	writeJSON(w, http.StatusOK, toTipResponse(*t, true))
}
