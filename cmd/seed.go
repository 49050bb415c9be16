package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mosport/venue-signal/internal/store"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load venues, events and links from a YAML fixtures file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		fx, err := store.LoadFixtures(seedFile)
		if err != nil {
			return err
		}

		st, err := initStore(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}
		seeder, ok := st.(store.Seeder)
		if !ok {
			return eris.Errorf("store driver %s cannot be seeded", cfg.Store.Driver)
		}
		if err := fx.Apply(cmd.Context(), seeder); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d venues, %d events, %d links\n",
			len(fx.Venues), len(fx.Events), len(fx.Links))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "fixtures.yaml", "fixtures file")
	rootCmd.AddCommand(seedCmd)
}
