package cmd

import (
	"github.com/spf13/cobra"

	"github.com/marcus/tipbox/internal/browse"
	"github.com/marcus/tipbox/internal/features"
)

var browseCmd = &cobra.Command{
	Use:     "browse",
	Short:   "Browse tips interactively",
	Long:    `Browse tips in a full-screen view. Press f to save or remove a favorite, r to refresh, ? for help.`,
	GroupID: "tips",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		opts := browse.Options{Category: category}
		if features.IsEnabled(features.UpdateCheck) {
			opts.Version = version
		}
		return browse.Run(cmd.Context(), s.state, s.client, opts)
	},
}

func init() {
	browseCmd.Flags().StringP("category", "c", "", "only show tips in this category (slug)")
	rootCmd.AddCommand(browseCmd)
}
