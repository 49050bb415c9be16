package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mosport/venue-signal/internal/model"
)

var tierCmd = &cobra.Command{
	Use:       "tier <HOT|WARM|COOL|COLD>",
	Short:     "Run one tier invocation and exit",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"HOT", "WARM", "COOL", "COLD"},
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, err := model.ParseTier(args[0])
		if err != nil {
			return err
		}

		env, err := initApp(cmd.Context(), cfg, "tier")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Orchestrator.ProcessTier(cmd.Context(), tier)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: selected=%d processed=%d failed=%d overrides=%d in %s\n",
			run.Tier, run.Selected, run.Processed, run.Failed, run.Overrides, run.Duration())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tierCmd)
}
