package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/marcus/tipbox/internal/serverdb"
)

type favoriteResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	FavoritedAt string `json:"favorited_at"`
}

type favoriteListResponse struct {
	Favorites []favoriteResponse `json:"favorites"`
}

type meResponse struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Favorites int    `json:"favorites"`
}

// handleListFavorites handles GET /v1/favorites. The cache is consulted
// first; a miss is filled from the database unless a write lands meanwhile.
func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())

	favs, ok := s.cache.Favorites(r.Context(), user.UserID)
	if !ok {
		fill := s.cache.BeginFill(r.Context(), user.UserID)
		var err error
		favs, err = s.store.ListFavorites(user.UserID)
		if err != nil {
			logFor(r.Context()).Error("list favorites", "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list favorites")
			return
		}
		s.cache.Store(r.Context(), fill, favs)
	}

	resp := favoriteListResponse{Favorites: make([]favoriteResponse, 0, len(favs))}
	for _, f := range favs {
		resp.Favorites = append(resp.Favorites, favoriteResponse{
			ID:          f.TipID,
			Title:       f.Title,
			Category:    f.CategorySlug,
			FavoritedAt: f.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAddFavorite handles PUT /v1/favorites/{id}. Repeating it is a no-op.
func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	tipID := r.PathValue("id")

	added, err := s.store.AddFavorite(user.UserID, tipID)
	if errors.Is(err, serverdb.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "tip not found")
		return
	}
	if err != nil {
		logFor(r.Context()).Error("add favorite", "tip", tipID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to add favorite")
		return
	}
	if added {
		s.cache.Invalidate(r.Context(), user.UserID)
		s.metrics.RecordFavoriteWrite(true)
		logFor(r.Context()).Debug("favorite added", "tip", tipID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveFavorite handles DELETE /v1/favorites/{id}. Removing a
// favorite that does not exist succeeds.
func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	tipID := r.PathValue("id")

	removed, err := s.store.RemoveFavorite(user.UserID, tipID)
	if err != nil {
		logFor(r.Context()).Error("remove favorite", "tip", tipID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to remove favorite")
		return
	}
	if removed {
		s.cache.Invalidate(r.Context(), user.UserID)
		s.metrics.RecordFavoriteWrite(false)
		logFor(r.Context()).Debug("favorite removed", "tip", tipID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMe handles GET /v1/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	n, err := s.store.CountFavorites(user.UserID)
	if err != nil {
		logFor(r.Context()).Error("count favorites", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{UserID: user.UserID, Email: user.Email, Favorites: n})
}
