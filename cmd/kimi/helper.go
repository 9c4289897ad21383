package main

import (
	"context"
	"fmt"

	"github.com/Nell373/linebot-ai/internal/config"
	"github.com/Nell373/linebot-ai/internal/daemon/components"
	"github.com/Nell373/linebot-ai/internal/ledger"
	"github.com/Nell373/linebot-ai/internal/store"

	"github.com/spf13/cobra"
)

func loadConfigForCommand(cmd *cobra.Command) (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}

	loadedCfg, err := config.Load(cmd)
	if err != nil {
		return nil, err
	}

	return loadedCfg, nil
}

// executeWithState runs fn against the same state the daemon uses. It holds
// the data dir lock for the duration, so it refuses to run next to a daemon.
func executeWithState(cmd *cobra.Command, fn func(ctx context.Context, state *components.StateComponent) error) error {
	loadedCfg, err := loadConfigForCommand(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	dataDir, err := store.ResolveDataDir(loadedCfg.Daemon.DataDir)
	if err != nil {
		return err
	}

	signals := NewSignalHandler(context.Background())
	signals.Start()
	defer signals.Stop()
	ctx := signals.Context()

	state := components.NewStateComponent(loadedCfg, dataDir)
	if err := state.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize state: %w", err)
	}
	defer state.Stop(context.Background())

	return fn(ctx, state)
}

// openLedger opens the SQLite ledger directly. Reads are safe next to a
// running daemon.
func openLedger(ctx context.Context, loadedCfg *config.Config) (*ledger.SQLiteStore, error) {
	loc := config.LocationOrDefault(loadedCfg.Locale.Timezone)
	return ledger.NewSQLiteStore(ctx, loadedCfg.Ledger.Path, ledger.WithLocation(loc))
}
