package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Nell373/linebot-ai/internal/daemon"
	"github.com/Nell373/linebot-ai/internal/daemon/components"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the chat adapters, workers and maintenance jobs",
	Long:  `Starts Kimi as a long-running service using component lifecycle orchestration. It serves the platform webhooks, the event API and /health.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		forceClean, _ := cmd.Flags().GetBool("force-clean-locks")

		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		daemonMgr, err := daemon.NewDaemon(cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon manager: %w", err)
		}
		daemonMgr.SetForceCleanup(forceClean)
		components.Register(daemonMgr, cfg)

		slog.Info("Kimi daemon starting up...", "port", cfg.Server.Port, "data_dir", daemonMgr.DataDir())
		err = daemonMgr.Start(context.Background())
		if err != nil {
			// Cancellation via signal/context is a graceful shutdown case for CLI.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("Kimi daemon stopped gracefully")
				return nil
			}
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("Kimi daemon stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().Bool("force-clean-locks", false, "Force cleanup of stale lock files (default: warn-only)")
}
