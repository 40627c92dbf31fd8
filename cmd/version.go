package cmd

import (
	"github.com/spf13/cobra"

	"github.com/marcus/tipbox/internal/features"
	"github.com/marcus/tipbox/internal/output"
	ver "github.com/marcus/tipbox/internal/version"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show the tipbox version",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		check, _ := cmd.Flags().GetBool("check")
		if !check {
			if jsonOutput() {
				return output.JSON(map[string]string{"version": version})
			}
			output.Info("tipbox %s", version)
			return nil
		}

		if !features.IsEnabled(features.UpdateCheck) {
			return &usageError{"update checks are disabled (feature update_check)"}
		}
		res := ver.Check(cmd.Context(), version)
		if res.Error != nil {
			return res.Error
		}
		if jsonOutput() {
			return output.JSON(map[string]any{
				"version":    version,
				"latest":     res.LatestVersion,
				"has_update": res.HasUpdate,
			})
		}
		output.Info("tipbox %s", version)
		switch {
		case ver.IsDevelopmentVersion(version):
			output.Info("Development build; update check skipped.")
		case res.HasUpdate:
			output.Warning("%s is available: %s", res.LatestVersion, ver.UpdateCommand(res.LatestVersion))
		default:
			output.Success("Up to date.")
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("check", false, "check for a newer release")
	rootCmd.AddCommand(versionCmd)
}
