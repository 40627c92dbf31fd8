package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/marcus/tipbox/internal/catalogclient"
	"github.com/marcus/tipbox/internal/features"
	"github.com/marcus/tipbox/internal/output"
)

var tipsCmd = &cobra.Command{
	Use:     "tips",
	Short:   "Browse the tip catalog",
	GroupID: "tips",
}

// tipView is a tip as printed by --format json.
type tipView struct {
	catalogclient.TipResponse
	Favorite bool `json:"favorite"`
}

// loadMarkers fills the session's favorites so tips can be marked. The
// catalog is still shown when favorites cannot be loaded.
func loadMarkers(cmd *cobra.Command, s *session) {
	if err := s.state.Refresh(cmd.Context()); err != nil {
		slog.Warn("load favorites", "err", err)
	}
}

var tipsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tips",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		if limit < 1 {
			return &usageError{"--limit must be at least 1"}
		}
		if offset < 0 {
			return &usageError{"--offset must not be negative"}
		}

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		resp, err := s.client.ListTips(cmd.Context(), catalogclient.TipQuery{Category: category, Limit: limit, Offset: offset})
		if err != nil {
			return err
		}
		loadMarkers(cmd, s)

		if jsonOutput() {
			views := make([]tipView, 0, len(resp.Tips))
			for _, t := range resp.Tips {
				views = append(views, tipView{TipResponse: t, Favorite: s.state.IsFavorite(t.ID)})
			}
			return output.JSON(map[string]any{"tips": views, "total": resp.Total, "limit": resp.Limit, "offset": resp.Offset})
		}
		if len(resp.Tips) == 0 {
			output.Info("No tips found.")
			return nil
		}
		for _, t := range resp.Tips {
			output.Info("%s", output.FormatTipShort(t, s.state.IsFavorite(t.ID)))
		}
		if shown := resp.Offset + len(resp.Tips); shown < resp.Total {
			output.Info("\n%d of %d tips; use --offset %d for more", shown, resp.Total, shown)
		}
		return nil
	},
}

var tipsShowCmd = &cobra.Command{
	Use:   "show <tip-id>",
	Short: "Show a tip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		tip, err := s.client.GetTip(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		loadMarkers(cmd, s)
		fav := s.state.IsFavorite(tip.ID)

		if jsonOutput() {
			return output.JSON(tipView{TipResponse: *tip, Favorite: fav})
		}
		var body string
		if features.IsEnabled(features.MarkdownRender) {
			body, err = output.RenderTipBody(tip.Body)
			if err != nil {
				slog.Debug("render tip body", "err", err)
				body = ""
			}
		}
		output.Info("%s", output.FormatTipLong(*tip, fav, body))
		return nil
	},
}

var categoriesCmd = &cobra.Command{
	Use:     "categories",
	Short:   "List tip categories",
	GroupID: "tips",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		cats, err := client.ListCategories(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput() {
			return output.JSON(cats)
		}
		for _, c := range cats {
			output.Info("%s", output.FormatCategory(c))
		}
		return nil
	},
}

func init() {
	tipsListCmd.Flags().StringP("category", "c", "", "only list tips in this category (slug)")
	tipsListCmd.Flags().IntP("limit", "n", 50, "maximum number of tips")
	tipsListCmd.Flags().Int("offset", 0, "skip this many tips")

	tipsCmd.AddCommand(tipsListCmd, tipsShowCmd)
	rootCmd.AddCommand(tipsCmd, categoriesCmd)
}
