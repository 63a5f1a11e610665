package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "newsroom",
	Short: "Editorial pipeline for the Daily Worker",
	Long: "Scores discovered events, verifies sources, drafts articles under quality checks, " +
		"routes them through editorial review, and feeds corrections back into source reliability.",
	SilenceUsage: true,
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
