package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Nell373/linebot-ai/internal/config"
	"github.com/Nell373/linebot-ai/internal/daemon"
	"github.com/Nell373/linebot-ai/internal/scheduler"
	"github.com/Nell373/linebot-ai/internal/store"
)

// SchedulerComponent runs the maintenance jobs: pruning both dedup guards
// and sweeping idle per-user locks and in-memory conversations.
type SchedulerComponent struct {
	sched       *scheduler.Scheduler
	cfg         *config.Config
	stateComp   *StateComponent
	dataDir     string
	initialized bool
	mu          sync.RWMutex
}

func NewSchedulerComponent(cfg *config.Config, stateComp *StateComponent, dataDir string) *SchedulerComponent {
	return &SchedulerComponent{
		cfg:       cfg,
		stateComp: stateComp,
		dataDir:   dataDir,
	}
}

func (s *SchedulerComponent) Name() string {
	return "Scheduler"
}

func (s *SchedulerComponent) Dependencies() []string {
	return []string{"State"}
}

func (s *SchedulerComponent) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stateComp == nil {
		return fmt.Errorf("stateComp not provided")
	}
	if s.stateComp.Dispatcher() == nil {
		return fmt.Errorf("state not initialized")
	}

	idle, err := config.DurationOrDefault(s.cfg.Conversation.TTL, config.DefaultConversationTTL)
	if err != nil {
		return fmt.Errorf("parse conversation ttl: %w", err)
	}
	shutdownTimeout, err := config.DurationOrDefault(s.cfg.Daemon.ShutdownTimeout, config.DefaultDaemonShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse daemon shutdown timeout: %w", err)
	}

	jobStore, err := scheduler.NewStore(store.JobLogPath(s.dataDir))
	if err != nil {
		return fmt.Errorf("failed to create scheduler store: %w", err)
	}
	sched := scheduler.NewScheduler(jobStore, scheduler.RuntimeConfig{
		ShutdownTimeout: shutdownTimeout,
		Location:        s.stateComp.Location(),
	})

	var pruners []scheduler.Pruner
	for _, g := range s.stateComp.Guards() {
		pruners = append(pruners, g)
	}
	sweepers := []scheduler.Sweeper{s.stateComp.Locks()}
	if mem := s.stateComp.MemoryConversations(); mem != nil {
		sweepers = append(sweepers, mem)
	}

	prune := s.cfg.Maintenance.PruneSchedule
	if prune == "" {
		prune = config.DefaultMaintenancePrune
	}
	sweep := s.cfg.Maintenance.SweepSchedule
	if sweep == "" {
		sweep = config.DefaultMaintenanceSweep
	}

	if err := sched.Register(scheduler.JobDedupPrune, prune, "drop expired dedup keys and snapshot them", scheduler.PruneJob(pruners...)); err != nil {
		return err
	}
	if err := sched.Register(scheduler.JobSweep, sweep, "evict idle user locks and conversations", scheduler.SweepJob(idle, sweepers...)); err != nil {
		return err
	}

	s.sched = sched
	s.initialized = true
	slog.Info("Scheduler initialized", "component", s.Name(), "prune", prune, "sweep", sweep)
	return nil
}

func (s *SchedulerComponent) Start(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return fmt.Errorf("scheduler not initialized")
	}
	if err := s.sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	slog.Info("Scheduler started", "component", s.Name())
	return nil
}

func (s *SchedulerComponent) Stop(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.sched == nil {
		return nil
	}
	if err := s.sched.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	slog.Info("Scheduler stopped", "component", s.Name())
	return nil
}

func (s *SchedulerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.sched == nil {
		return &daemon.ComponentHealth{Name: s.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if err := s.sched.Health(ctx); err != nil {
		return &daemon.ComponentHealth{Name: s.Name(), Healthy: false, Error: err}, nil
	}
	return &daemon.ComponentHealth{Name: s.Name(), Healthy: true}, nil
}

func (s *SchedulerComponent) Scheduler() *scheduler.Scheduler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sched
}
