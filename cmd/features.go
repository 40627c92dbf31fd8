package cmd

import (
	"github.com/spf13/cobra"

	"github.com/marcus/tipbox/internal/features"
	"github.com/marcus/tipbox/internal/output"
)

type featureState struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Source      string `json:"source"`
	Description string `json:"description"`
}

var featuresCmd = &cobra.Command{
	Use:     "features",
	Short:   "List feature flags and where their values come from",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var states []featureState
		for _, f := range features.ListAll() {
			enabled, source := features.Resolve(f.Name)
			states = append(states, featureState{Name: f.Name, Enabled: enabled, Source: source, Description: f.Description})
		}
		if jsonOutput() {
			return output.JSON(states)
		}
		for _, st := range states {
			mark := "off"
			if st.Enabled {
				mark = "on"
			}
			output.Info("%-16s %-3s (%s)  %s", st.Name, mark, st.Source, st.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(featuresCmd)
}
