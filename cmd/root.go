package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mosport/venue-signal/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "venue-signal",
	Short: "Tiered live-broadcast verification for sports venues",
	Long:  "Schedules signal checks by event proximity, judges venue social posts, keeps confidence and QoE scores current, and serves venue search.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
