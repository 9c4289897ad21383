package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Nell373/linebot-ai/internal/config"
	"github.com/Nell373/linebot-ai/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "kimi",
	Short: "Kimi chat bookkeeping assistant",
	Long:  `Kimi records expenses, income and reminders from LINE, Telegram and Slack conversations.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is a development convenience; real deployments use the environment.
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			slog.Debug("Ignoring unreadable .env", "error", err)
		}

		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.Setup(cfg.Server.LogLevel)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kimi/config.yaml)")
	rootCmd.PersistentFlags().String("server.log_level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Int("server.port", config.DefaultServerPort, "server port")
}
