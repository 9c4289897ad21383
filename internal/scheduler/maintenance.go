package scheduler

import (
	"context"
	"fmt"
	"time"
)

// Job ids registered by the daemon.
const (
	JobDedupPrune = "dedup-prune"
	JobSweep      = "lock-sweep"
)

// Pruner is satisfied by *idempotency.Guard.
type Pruner interface {
	Prune() int
	Save() error
}

// Sweeper drops entries idle for longer than the given duration.
// *concurrency.UserLocks and *conversation.MemoryStore satisfy it.
type Sweeper interface {
	Sweep(idle time.Duration) int
}

// PruneJob evicts expired dedup keys from every guard and snapshots them.
func PruneJob(guards ...Pruner) JobFunc {
	return func(ctx context.Context) (string, error) {
		pruned := 0
		for _, g := range guards {
			pruned += g.Prune()
			if err := g.Save(); err != nil {
				return fmt.Sprintf("pruned %d", pruned), fmt.Errorf("save dedup snapshot: %w", err)
			}
		}
		return fmt.Sprintf("pruned %d", pruned), nil
	}
}

// SweepJob drops idle per-user entries.
func SweepJob(idle time.Duration, sweepers ...Sweeper) JobFunc {
	return func(ctx context.Context) (string, error) {
		swept := 0
		for _, s := range sweepers {
			if err := ctx.Err(); err != nil {
				return fmt.Sprintf("swept %d", swept), err
			}
			swept += s.Sweep(idle)
		}
		return fmt.Sprintf("swept %d", swept), nil
	}
}
