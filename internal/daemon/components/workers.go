package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Nell373/linebot-ai/internal/config"
	"github.com/Nell373/linebot-ai/internal/daemon"
	"github.com/Nell373/linebot-ai/internal/egress"
	"github.com/Nell373/linebot-ai/internal/ingress"
	"github.com/Nell373/linebot-ai/internal/worker"
)

// WorkersComponent runs the lane pool and owns egress, which the adapters
// component fills with output adapters before anything is sent.
type WorkersComponent struct {
	pool        *worker.Pool
	egress      *egress.DefaultEgress
	ing         *ingress.Ingress
	ingressComp *IngressComponent
	stateComp   *StateComponent
	cfg         *config.WorkerConfig
	initialized bool
	started     bool
	mu          sync.RWMutex
}

func NewWorkersComponent(cfg *config.WorkerConfig, ingComp *IngressComponent, stateComp *StateComponent) *WorkersComponent {
	return &WorkersComponent{
		ingressComp: ingComp,
		stateComp:   stateComp,
		cfg:         cfg,
		egress:      egress.NewEgress(),
	}
}

func (w *WorkersComponent) Name() string {
	return "Workers"
}

func (w *WorkersComponent) Dependencies() []string {
	return []string{"State", "Ingress"}
}

func (w *WorkersComponent) Init(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ingressComp == nil || w.stateComp == nil {
		return fmt.Errorf("required component dependencies not provided")
	}
	if w.cfg == nil {
		return fmt.Errorf("worker config not provided")
	}

	ing := w.ingressComp.GetIngress()
	disp := w.stateComp.Dispatcher()
	if ing == nil || disp == nil {
		return fmt.Errorf("required dependencies not initialized")
	}

	shutdownTimeout, err := config.DurationOrDefault(w.cfg.ShutdownTimeout, config.DefaultWorkerShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse worker shutdown timeout: %w", err)
	}
	sendTimeout, err := config.DurationOrDefault(w.cfg.SendTimeout, config.DefaultWorkerSendTimeout)
	if err != nil {
		return fmt.Errorf("parse worker send timeout: %w", err)
	}

	w.ing = ing
	w.pool = worker.NewPool(w.cfg.Count, ing.Queue(), disp, w.egress, w.stateComp.Locks(), worker.RuntimeConfig{
		ShutdownTimeout: shutdownTimeout,
		SendTimeout:     sendTimeout,
	})

	w.initialized = true
	slog.Info("Workers initialized", "component", w.Name(), "lanes", w.pool.Size())
	return nil
}

func (w *WorkersComponent) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.initialized {
		return fmt.Errorf("Workers not initialized")
	}

	if err := w.pool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}

	w.started = true
	slog.Info("Workers started", "component", w.Name())
	return nil
}

// Stop closes ingress first so the pool sees the end of the queue and
// finishes what is already buffered.
func (w *WorkersComponent) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		slog.Info("Workers not started, skipping stop", "component", w.Name())
		return nil
	}

	slog.Info("Stopping Workers...", "component", w.Name())
	if w.ing != nil {
		_ = w.ing.Close()
	}
	err := w.pool.Stop(ctx)
	w.started = false
	if err != nil {
		return err
	}
	slog.Info("Workers stopped", "component", w.Name())
	return nil
}

func (w *WorkersComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.initialized {
		return &daemon.ComponentHealth{
			Name:    w.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	if !w.started {
		return &daemon.ComponentHealth{
			Name:    w.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not started"),
		}, nil
	}

	if err := w.pool.Health(ctx); err != nil {
		return &daemon.ComponentHealth{Name: w.Name(), Healthy: false, Error: err}, nil
	}
	if err := w.egress.Health(ctx); err != nil {
		return &daemon.ComponentHealth{Name: w.Name(), Healthy: false, Error: fmt.Errorf("egress: %w", err)}, nil
	}

	return &daemon.ComponentHealth{
		Name:    w.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}

func (w *WorkersComponent) Egress() *egress.DefaultEgress {
	return w.egress
}
