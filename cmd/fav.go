package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/marcus/tipbox/internal/catalogclient"
	"github.com/marcus/tipbox/internal/clientconfig"
	"github.com/marcus/tipbox/internal/favorites"
	"github.com/marcus/tipbox/internal/input"
	"github.com/marcus/tipbox/internal/output"
)

var favCmd = &cobra.Command{
	Use:     "fav",
	Aliases: []string{"favorites"},
	Short:   "Manage favorite tips",
	GroupID: "favorites",
}

// favResult is the JSON shape of a single favorite change.
type favResult struct {
	ID       string `json:"id"`
	Favorite bool   `json:"favorite"`
	Count    int    `json:"count"`
	Mode     string `json:"mode"`
}

// withSession opens a session and loads the authoritative favorites set
// before running fn.
func withSession(ctx context.Context, fn func(s *session) error) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.state.Refresh(ctx); err != nil {
		return err
	}
	return fn(s)
}

// checkTipExists rejects IDs the catalog does not know. An unreachable
// server is not an error here; anonymous favorites work offline.
func checkTipExists(ctx context.Context, c *catalogclient.Client, id string) error {
	_, err := c.GetTip(ctx, id)
	if errors.Is(err, catalogclient.ErrNotFound) {
		return fmt.Errorf("tip %s: %w", id, catalogclient.ErrNotFound)
	}
	if err != nil {
		slog.Debug("tip lookup failed", "id", id, "err", err)
	}
	return nil
}

func reportChange(s *session, id string, fav bool) error {
	if jsonOutput() {
		return output.JSON(favResult{ID: id, Favorite: fav, Count: s.state.Count(), Mode: s.state.Mode().String()})
	}
	if fav {
		output.Success("%s Saved %s (%s)", output.MarkerFavorite, id, s.countLabel())
	} else {
		output.Success("%s Removed %s (%s)", output.MarkerNotFavorite, id, s.countLabel())
	}
	return nil
}

// favoriteArgs expands tip IDs given directly, via - (stdin) or @file.
func favoriteArgs(cmd *cobra.Command, args []string) ([]string, error) {
	ids, err := input.ExpandArgs(args, cmd.InOrStdin())
	if err != nil {
		return nil, &usageError{err.Error()}
	}
	if len(ids) == 0 {
		return nil, &usageError{"no tip IDs given"}
	}
	return ids, nil
}

// applyEach runs change for every id, stopping at the first failure, and
// reports what changed.
func applyEach(s *session, ids []string, fav bool, change func(id string) error) error {
	var results []favResult
	for _, id := range ids {
		if err := change(id); err != nil {
			if len(ids) > 1 && len(results) > 0 {
				slog.Info("stopped after partial update", "done", len(results), "total", len(ids))
			}
			return err
		}
		results = append(results, favResult{ID: id, Favorite: fav, Count: s.state.Count(), Mode: s.state.Mode().String()})
		if !jsonOutput() {
			if err := reportChange(s, id, fav); err != nil {
				return err
			}
		}
	}
	if !jsonOutput() {
		return nil
	}
	if len(results) == 1 {
		return output.JSON(results[0])
	}
	return output.JSON(results)
}

var favAddCmd = &cobra.Command{
	Use:   "add <tip-id>...",
	Short: "Save tips as favorites",
	Long:  `Save one or more tips. Use - to read IDs from stdin or @file to read them from a file, one per line.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := favoriteArgs(cmd, args)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		return withSession(ctx, func(s *session) error {
			return applyEach(s, ids, true, func(id string) error {
				if err := checkTipExists(ctx, s.client, id); err != nil {
					return err
				}
				return s.state.Add(ctx, id)
			})
		})
	},
}

var favRemoveCmd = &cobra.Command{
	Use:     "rm <tip-id>...",
	Aliases: []string{"remove"},
	Short:   "Remove favorites",
	Long:    `Remove one or more favorites. Accepts - and @file like fav add.`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := favoriteArgs(cmd, args)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		return withSession(ctx, func(s *session) error {
			return applyEach(s, ids, false, func(id string) error {
				return s.state.Remove(ctx, id)
			})
		})
	},
}

var favToggleCmd = &cobra.Command{
	Use:   "toggle <tip-id>",
	Short: "Save a tip, or remove it if already saved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withSession(ctx, func(s *session) error {
			if !s.state.IsFavorite(args[0]) {
				if err := checkTipExists(ctx, s.client, args[0]); err != nil {
					return err
				}
			}
			fav, err := s.state.Toggle(ctx, args[0])
			if err != nil {
				return err
			}
			return reportChange(s, args[0], fav)
		})
	},
}

var favListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List favorites",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withSession(ctx, func(s *session) error {
			favs := listFavorites(ctx, s)
			if jsonOutput() {
				return output.JSON(favs)
			}
			if len(favs) == 0 {
				output.Info("No favorites yet. Save one with `tipbox fav add <tip-id>`.")
				return nil
			}
			for _, f := range favs {
				output.Info("%s", output.FormatFavorite(f))
			}
			output.Info("\n%s", s.countLabel())
			return nil
		})
	},
}

// listFavorites describes the loaded set. Signed in, the server supplies
// titles; anonymous IDs are looked up one by one and listed bare when the
// catalog cannot be reached.
func listFavorites(ctx context.Context, s *session) []catalogclient.FavoriteResponse {
	if s.state.Mode() == favorites.Authenticated {
		favs, err := s.client.ListFavorites(ctx, clientconfig.GetAPIKey())
		if err == nil {
			return favs
		}
		slog.Warn("list favorites", "err", err)
	}

	ids := s.state.IDs()
	out := make([]catalogclient.FavoriteResponse, 0, len(ids))
	for _, id := range ids {
		f := catalogclient.FavoriteResponse{ID: id}
		if tip, err := s.client.GetTip(ctx, id); err == nil {
			f.Title, f.Category = tip.Title, tip.Category
		}
		out = append(out, f)
	}
	return out
}

var favCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show how many favorites are saved",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			if jsonOutput() {
				out := map[string]any{"count": s.state.Count(), "mode": s.state.Mode().String()}
				if s.state.Mode() == favorites.Anonymous {
					out["limit"] = s.limit
				}
				return output.JSON(out)
			}
			output.Info("%s", s.countLabel())
			return nil
		})
	},
}

var favClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all favorites saved on this device",
	Long: `Remove all favorites saved on this device. Only applies while signed out;
favorites on your account are removed one at a time with "tipbox fav rm".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			if s.state.Mode() == favorites.Authenticated {
				return &usageError{"fav clear only applies to device favorites; you are signed in"}
			}
			n := s.state.Count()
			if err := s.local.Clear(); err != nil {
				return err
			}
			if err := s.state.Refresh(cmd.Context()); err != nil {
				return err
			}
			if jsonOutput() {
				return output.JSON(map[string]int{"cleared": n})
			}
			output.Success("Cleared %d favorites", n)
			return nil
		})
	},
}

func init() {
	favCmd.AddCommand(favAddCmd, favRemoveCmd, favToggleCmd, favListCmd, favCountCmd, favClearCmd)
	rootCmd.AddCommand(favCmd)
}
