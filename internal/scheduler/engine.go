package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Nell373/linebot-ai/internal/config"
	kerrors "github.com/Nell373/linebot-ai/internal/errors"

	"github.com/robfig/cron/v3"
)

// JobFunc runs one maintenance pass and returns a short result line.
type JobFunc func(ctx context.Context) (string, error)

type RuntimeConfig struct {
	ShutdownTimeout time.Duration
	Location        *time.Location
}

// Scheduler runs in-process maintenance jobs on cron schedules and keeps a
// run log in a Store.
type Scheduler struct {
	store *Store
	cron  *cron.Cron

	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	jobs    map[string]JobFunc

	shutdownTimeout time.Duration
}

func NewScheduler(store *Store, cfg RuntimeConfig) *Scheduler {
	if cfg.ShutdownTimeout <= 0 {
		if d, err := config.DurationOrDefault("", config.DefaultDaemonShutdownTimeout); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	log := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store: store,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(log),
			cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
		),
		ctx:             ctx,
		cancel:          cancel,
		jobs:            make(map[string]JobFunc),
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Register adds a job. The schedule accepts five-field cron specs and
// descriptors such as "@every 1m" or "@hourly".
func (s *Scheduler) Register(id, schedule, description string, fn JobFunc) error {
	if id == "" || fn == nil {
		return kerrors.InvalidInput("job id and function are required")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return kerrors.InvalidInput(fmt.Sprintf("invalid schedule %q for job %s: %v", schedule, id, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		return kerrors.Conflict("job already registered: " + id)
	}
	if err := s.store.Register(id, schedule, description); err != nil {
		return fmt.Errorf("record job %s: %w", id, err)
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.execute(s.ctx, id, fn) }); err != nil {
		return fmt.Errorf("schedule job %s: %w", id, err)
	}
	s.jobs[id] = fn

	slog.Info("Maintenance job registered", "job", id, "schedule", schedule)
	return nil
}

func (s *Scheduler) execute(ctx context.Context, id string, fn JobFunc) (string, error) {
	runID, err := s.store.Begin(id)
	if err != nil {
		slog.Warn("Maintenance job skipped", "job", id, "error", err)
		return "", err
	}

	start := time.Now()
	result, runErr := fn(ctx)
	if err := s.store.Finish(id, runID, result, runErr); err != nil {
		slog.Error("Failed to record job run", "job", id, "run_id", runID, "error", err)
	}

	if runErr != nil {
		slog.Error("Maintenance job failed", "job", id, "run_id", runID, "error", runErr)
		return result, runErr
	}
	slog.Debug("Maintenance job done", "job", id, "run_id", runID, "result", result, "duration", time.Since(start))
	return result, nil
}

// RunNow runs a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	fn, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return "", kerrors.NotFound("job not found: " + id)
	}
	return s.execute(ctx, id, fn)
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	s.cron.Start()

	slog.Info("Scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop waits for running jobs, up to the shutdown timeout.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	stopped := s.cron.Stop()
	defer s.cancel()

	select {
	case <-stopped.Done():
		slog.Info("Scheduler stopped gracefully")
		return nil
	case <-time.After(s.shutdownTimeout):
		slog.Warn("Scheduler shutdown timeout, force stopping")
		return kerrors.Internal("shutdown timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Health fails when the scheduler is stopped or a job's last run failed.
func (s *Scheduler) Health(ctx context.Context) error {
	if !s.IsRunning() {
		return kerrors.Internal("scheduler not running")
	}

	var failed []string
	for _, j := range s.store.Jobs() {
		if j.LastRun != nil && j.LastRun.Status == StatusFailed {
			failed = append(failed, j.ID)
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return kerrors.Transient(fmt.Sprintf("maintenance jobs failing: %v", failed))
	}
	return nil
}

// Jobs returns the run log.
func (s *Scheduler) Jobs() []Job {
	return s.store.Jobs()
}

// cronLogger routes robfig/cron logs to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
