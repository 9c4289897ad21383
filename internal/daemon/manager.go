package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Nell373/linebot-ai/internal/config"
	"github.com/Nell373/linebot-ai/internal/store"
)

// staleLockTTL is the age after which a leftover lock file is reported.
const staleLockTTL = 24 * time.Hour

// Daemon owns the bot's components and runs them in dependency order.
type Daemon struct {
	cfg          *config.Config
	dataDir      string
	components   []Component
	order        []string
	health       HealthStatus
	forceCleanup bool
	mu           sync.RWMutex
}

func NewDaemon(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	dataDir, err := store.ResolveDataDir(cfg.Daemon.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	return &Daemon{cfg: cfg, dataDir: dataDir, health: StatusStarting}, nil
}

func (d *Daemon) AddComponent(comp Component) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.components = append(d.components, comp)
	slog.Info("Component registered", "component", comp.Name(), "total_components", len(d.components))
}

// Start brings every component up and blocks until ctx is cancelled or the
// process receives SIGINT or SIGTERM, then stops them in reverse order.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("Kimi daemon starting...", "data_dir", d.dataDir)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.validateConfig(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := store.CleanupStaleLocks(d.dataDir, staleLockTTL, d.forceCleanup); err != nil {
		slog.Warn("Failed to cleanup stale locks", "data_dir", d.dataDir, "error", err)
	}

	shutdownTimeout, err := config.DurationOrDefault(d.cfg.Daemon.ShutdownTimeout, config.DefaultDaemonShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse daemon shutdown timeout: %w", err)
	}

	if err := d.initializeComponents(ctx); err != nil {
		d.rollback(ctx)
		return fmt.Errorf("component initialization failed: %w", err)
	}
	if err := d.startComponents(ctx); err != nil {
		_ = d.gracefulShutdown(context.Background(), shutdownTimeout)
		return fmt.Errorf("component startup failed: %w", err)
	}

	d.setHealth(StatusRunning)
	slog.Info("Kimi daemon is running", "components", len(d.components))
	go d.watchHealth(ctx)

	<-ctx.Done()
	slog.Info("Context cancelled, initiating graceful shutdown", "reason", ctx.Err())
	d.setHealth(StatusStopping)
	if err := d.gracefulShutdown(context.Background(), shutdownTimeout); err != nil {
		return err
	}
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ctx.Err()
	}
	return nil
}

func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.health
}

// SetForceCleanup removes a stale lock file at startup instead of only
// reporting it.
func (d *Daemon) SetForceCleanup(force bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forceCleanup = force
}

func (d *Daemon) ComponentHealth() map[string]*ComponentHealth {
	d.mu.RLock()
	components := make([]Component, len(d.components))
	copy(components, d.components)
	d.mu.RUnlock()

	result := make(map[string]*ComponentHealth, len(components))
	for _, comp := range components {
		health, err := comp.Health(context.Background())
		if health == nil {
			health = &ComponentHealth{Name: comp.Name()}
		}
		if err != nil {
			health.Error = err
		}
		result[comp.Name()] = health
	}
	return result
}

// DataDir is the resolved data directory.
func (d *Daemon) DataDir() string {
	return d.dataDir
}

func (d *Daemon) setHealth(status HealthStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.health = status
}

func (d *Daemon) validateConfig() error {
	if d.cfg.Server.Port < 1 || d.cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", d.cfg.Server.Port)
	}
	if err := os.MkdirAll(d.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	slog.Info("Configuration validated", "data_dir", d.dataDir, "port", d.cfg.Server.Port)
	return nil
}

func (d *Daemon) initializeComponents(ctx context.Context) error {
	order, err := d.resolveOrder()
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.order = order
	d.mu.Unlock()
	slog.Info("Component order resolved", "order", order)

	for _, name := range order {
		comp := d.byName(name)
		if err := comp.Init(ctx); err != nil {
			slog.Error("Component initialization failed", "component", name, "error", err)
			return fmt.Errorf("component %s init failed: %w", name, err)
		}
		slog.Info("Component initialized", "component", name)
	}
	return nil
}

func (d *Daemon) startComponents(ctx context.Context) error {
	for _, name := range d.componentOrder() {
		comp := d.byName(name)
		if comp == nil {
			continue
		}
		if err := comp.Start(ctx); err != nil {
			slog.Error("Component startup failed", "component", name, "error", err)
			return fmt.Errorf("component %s startup failed: %w", name, err)
		}
		slog.Info("Component started", "component", name)
	}
	return nil
}

func (d *Daemon) gracefulShutdown(ctx context.Context, timeout time.Duration) error {
	slog.Info("Graceful shutdown initiated", "timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.shutdownComponents(shutdownCtx) }()

	select {
	case err := <-done:
		slog.Info("Graceful shutdown completed")
		return err
	case <-shutdownCtx.Done():
		slog.Error("Shutdown timeout exceeded", "timeout", timeout)
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

// componentOrder is the resolved init order, or registration order before
// Init has run.
func (d *Daemon) componentOrder() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.order) > 0 {
		return append([]string(nil), d.order...)
	}
	out := make([]string, 0, len(d.components))
	for _, comp := range d.components {
		out = append(out, comp.Name())
	}
	return out
}

// shutdownComponents stops components in reverse order. A failing Stop is
// logged and does not keep the rest running.
func (d *Daemon) shutdownComponents(ctx context.Context) error {
	order := d.componentOrder()
	for i := len(order) - 1; i >= 0; i-- {
		comp := d.byName(order[i])
		if comp == nil {
			continue
		}
		if err := comp.Stop(ctx); err != nil {
			slog.Error("Component stop failed", "component", order[i], "error", err)
			continue
		}
		slog.Info("Component stopped", "component", order[i])
	}
	d.setHealth(StatusStopped)
	return nil
}

func (d *Daemon) rollback(ctx context.Context) {
	slog.Warn("Rolling back initialized components")
	_ = d.shutdownComponents(ctx)
}

func (d *Daemon) byName(name string) Component {
	for _, comp := range d.components {
		if comp.Name() == name {
			return comp
		}
	}
	return nil
}

func (d *Daemon) watchHealth(ctx context.Context) {
	interval, err := config.DurationOrDefault(d.cfg.Daemon.HealthCheckInterval, config.DefaultDaemonHealthInterval)
	if err != nil {
		slog.Error("Failed to parse daemon health check interval", "error", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			unhealthy := 0
			for name, h := range d.ComponentHealth() {
				if !h.Healthy {
					unhealthy++
					slog.Warn("Component unhealthy", "component", name, "error", h.Error)
				}
			}
			if unhealthy > 0 {
				slog.Warn("Daemon has unhealthy components", "count", unhealthy)
			}
		}
	}
}

// resolveOrder sorts components so each comes after its dependencies.
func (d *Daemon) resolveOrder() ([]string, error) {
	const (
		visiting = iota + 1
		done
	)
	state := make(map[string]int, len(d.components))
	order := make([]string, 0, len(d.components))

	var visit func(name, from string) error
	visit = func(name, from string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("circular dependency detected involving %s", name)
		case done:
			return nil
		}
		comp := d.byName(name)
		if comp == nil {
			return fmt.Errorf("component %s depends on %s which is not registered", from, name)
		}
		state[name] = visiting
		for _, dep := range comp.Dependencies() {
			if err := visit(dep, name); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, comp := range d.components {
		if err := visit(comp.Name(), ""); err != nil {
			return nil, err
		}
	}
	return order, nil
}
