package cmd

import (
	"fmt"
	"log/slog"

	"github.com/marcus/tipbox/internal/catalogclient"
	"github.com/marcus/tipbox/internal/clientconfig"
	"github.com/marcus/tipbox/internal/favorites"
	"github.com/marcus/tipbox/internal/localstore"
	"github.com/marcus/tipbox/internal/output"
)

// session is one CLI invocation's view of the favorites: a single State
// shared by everything the command does, plus the merge coordinator.
type session struct {
	client *catalogclient.Client
	store  *localstore.Store
	local  *localstore.Favorites
	state  *favorites.State
	merger *favorites.Merger
	limit  int
}

func newClient() (*catalogclient.Client, error) {
	deviceID, err := clientconfig.GetDeviceID()
	if err != nil {
		return nil, err
	}
	c := catalogclient.New(clientconfig.GetServerURL(), deviceID)
	c.UserAgent = "tipbox/" + version
	return c, nil
}

func openSession() (*session, error) {
	dir, err := clientconfig.ConfigDir()
	if err != nil {
		return nil, err
	}
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	store, err := localstore.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open local favorites: %w", err)
	}

	limit := clientconfig.GetFavoritesLimit()
	local := store.Favorites(limit)
	remote := favorites.NewHTTPRemote(client)
	logger := slog.Default().With("component", "favorites")
	state := favorites.New(favorites.Config{
		Local:    local,
		Remote:   remote,
		Identity: clientconfig.Identity{},
		Limit:    limit,
		Logger:   logger,
	})

	return &session{
		client: client,
		store:  store,
		local:  local,
		state:  state,
		merger: favorites.NewMerger(local, remote, state.Refresh, logger),
		limit:  limit,
	}, nil
}

func (s *session) Close() {
	s.state.Close()
	s.store.Close()
}

// countLabel is "3/10 favorites" when anonymous and "3 favorites" otherwise.
func (s *session) countLabel() string {
	if s.state.Mode() == favorites.Authenticated {
		return output.FormatCount(s.state.Count(), 0)
	}
	return output.FormatCount(s.state.Count(), s.limit)
}
