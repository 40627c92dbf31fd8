package favorites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcus/tipbox/internal/catalogclient"
)

// favoritesAPI is the slice of catalogclient.Client HTTPRemote needs.
type favoritesAPI interface {
	AddFavorite(ctx context.Context, token, id string) error
	RemoveFavorite(ctx context.Context, token, id string) error
	ListFavorites(ctx context.Context, token string) ([]catalogclient.FavoriteResponse, error)
}

// HTTPRemote implements Remote on top of the tipbox-server HTTP API.
type HTTPRemote struct {
	api favoritesAPI
}

// NewHTTPRemote wraps a catalog client.
func NewHTTPRemote(c *catalogclient.Client) *HTTPRemote {
	return &HTTPRemote{api: c}
}

func (r *HTTPRemote) Add(ctx context.Context, id, token string) error {
	if token == "" {
		return ErrUnauthorized
	}
	return translate(r.api.AddFavorite(ctx, token, id))
}

func (r *HTTPRemote) Remove(ctx context.Context, id, token string) error {
	if token == "" {
		return ErrUnauthorized
	}
	return translate(r.api.RemoveFavorite(ctx, token, id))
}

func (r *HTTPRemote) List(ctx context.Context, token string) ([]Item, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	favs, err := r.api.ListFavorites(ctx, token)
	if err != nil {
		return nil, translate(err)
	}
	items := make([]Item, 0, len(favs))
	for _, f := range favs {
		it := Item{ID: f.ID, Title: f.Title, Category: f.Category}
		if t, err := time.Parse(time.RFC3339, f.FavoritedAt); err == nil {
			it.FavoritedAt = t
		}
		items = append(items, it)
	}
	return items, nil
}

// translate maps client errors onto the Remote error contract.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var netErr *catalogclient.NetworkError
	switch {
	case errors.Is(err, catalogclient.ErrUnauthorized):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case errors.As(err, &netErr):
		return fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	return err
}
