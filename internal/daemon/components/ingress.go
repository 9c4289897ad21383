package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Nell373/linebot-ai/internal/config"
	"github.com/Nell373/linebot-ai/internal/daemon"
	"github.com/Nell373/linebot-ai/internal/ingress"
)

type IngressComponent struct {
	ingress     *ingress.Ingress
	stateComp   *StateComponent
	cfg         *config.IngressConfig
	initialized bool
	started     bool
	mu          sync.RWMutex
}

func NewIngressComponent(stateComp *StateComponent, cfg *config.IngressConfig) *IngressComponent {
	return &IngressComponent{
		stateComp: stateComp,
		cfg:       cfg,
	}
}

func (i *IngressComponent) Name() string {
	return "Ingress"
}

func (i *IngressComponent) Dependencies() []string {
	return []string{"State"}
}

func (i *IngressComponent) Init(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.stateComp == nil {
		return fmt.Errorf("stateComp not provided")
	}
	deliveries := i.stateComp.Deliveries()
	if deliveries == nil {
		return fmt.Errorf("state not initialized")
	}
	if i.cfg == nil {
		return fmt.Errorf("ingress config not provided")
	}

	submitTimeout, err := config.DurationOrDefault(i.cfg.SubmitTimeout, config.DefaultIngressSubmitTimeout)
	if err != nil {
		return fmt.Errorf("parse ingress submit timeout: %w", err)
	}
	drainTimeout, err := config.DurationOrDefault(i.cfg.DrainTimeout, config.DefaultIngressDrainTimeout)
	if err != nil {
		return fmt.Errorf("parse ingress drain timeout: %w", err)
	}

	i.ingress = ingress.NewIngress(
		i.cfg.QueueSize,
		ingress.RuntimeConfig{
			SubmitTimeout: submitTimeout,
			DrainTimeout:  drainTimeout,
		},
		deliveries,
	)
	i.initialized = true
	slog.Info("Ingress initialized", "component", i.Name())
	return nil
}

func (i *IngressComponent) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.initialized {
		return fmt.Errorf("Ingress not initialized")
	}

	i.started = true
	slog.Info("Ingress started", "component", i.Name())
	return nil
}

// Stop closes the queue. The workers usually got there first; Close is
// idempotent.
func (i *IngressComponent) Stop(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.started {
		slog.Info("Ingress not started, skipping stop", "component", i.Name())
		return nil
	}

	slog.Info("Stopping Ingress...", "component", i.Name())
	if i.ingress != nil {
		_ = i.ingress.Close()
	}
	i.started = false
	slog.Info("Ingress stopped", "component", i.Name())
	return nil
}

func (i *IngressComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if !i.started {
		return &daemon.ComponentHealth{
			Name:    i.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not started"),
		}, nil
	}
	if err := i.ingress.Health(ctx); err != nil {
		return &daemon.ComponentHealth{Name: i.Name(), Healthy: false, Error: err}, nil
	}

	return &daemon.ComponentHealth{
		Name:    i.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}

func (i *IngressComponent) GetIngress() *ingress.Ingress {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.ingress
}
