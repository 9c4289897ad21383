package main

import (
	"context"
	"os"

	"github.com/Nell373/linebot-ai/internal/daemon/components"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant from the terminal",
	Long:  `Runs a local conversation against the real dispatcher and ledger. Cards are drawn in the terminal and their buttons are pressed by number.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		return executeWithState(cmd, func(ctx context.Context, state *components.StateComponent) error {
			return NewREPL(state.Dispatcher(), os.Stdin, os.Stdout, user).Run(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("user", "u", "local", "user id for the conversation")
}
