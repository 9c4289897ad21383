package components

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Nell373/linebot-ai/internal/adapter"
	"github.com/Nell373/linebot-ai/internal/config"
	"github.com/Nell373/linebot-ai/internal/daemon"
	kerrors "github.com/Nell373/linebot-ai/internal/errors"
	"github.com/Nell373/linebot-ai/internal/ingress"
)

// AdaptersComponent starts the platform adapters. Inbound events go to
// ingress; every output adapter is registered with the workers' egress.
type AdaptersComponent struct {
	cfg         *config.AdaptersConfig
	ingressComp *IngressComponent
	workersComp *WorkersComponent
	manager     *adapter.RuntimeManager
	initialized bool
	started     bool
	mu          sync.RWMutex
}

func NewAdaptersComponent(cfg *config.AdaptersConfig, ingComp *IngressComponent, workersComp *WorkersComponent) *AdaptersComponent {
	return &AdaptersComponent{cfg: cfg, ingressComp: ingComp, workersComp: workersComp}
}

func (a *AdaptersComponent) Name() string {
	return "Adapters"
}

func (a *AdaptersComponent) Dependencies() []string {
	return []string{"Ingress", "Workers"}
}

func (a *AdaptersComponent) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg == nil || a.ingressComp == nil || a.workersComp == nil {
		return fmt.Errorf("adapters component dependencies not provided")
	}
	ing := a.ingressComp.GetIngress()
	if ing == nil {
		return fmt.Errorf("ingress not initialized")
	}

	manager, err := adapter.NewRuntimeManager(*a.cfg, SubmitHandler(ing), adapter.RuntimeAdapterOptions{
		IncludeHTTPNull:     true,
		RequireSlackSecrets: true,
	})
	if err != nil {
		return fmt.Errorf("build adapters: %w", err)
	}

	out := a.workersComp.Egress()
	for _, o := range manager.OutputAdapters() {
		if err := out.Register(o); err != nil {
			return fmt.Errorf("register output adapter %s: %w", o.Name(), err)
		}
	}

	a.manager = manager
	a.initialized = true
	slog.Info("Adapters initialized", "component", a.Name(), "outputs", len(manager.OutputAdapters()))
	return nil
}

func (a *AdaptersComponent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return fmt.Errorf("adapters component not initialized")
	}
	a.manager.Start(ctx)
	a.started = true
	slog.Info("Adapters started", "component", a.Name())
	return nil
}

func (a *AdaptersComponent) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}
	err := a.manager.Stop(ctx)
	a.started = false
	if err != nil {
		return err
	}
	slog.Info("Adapters stopped", "component", a.Name())
	return nil
}

func (a *AdaptersComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.initialized {
		return &daemon.ComponentHealth{Name: a.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if !a.started {
		return &daemon.ComponentHealth{Name: a.Name(), Healthy: false, Error: fmt.Errorf("not started")}, nil
	}
	if err := a.manager.Health(ctx); err != nil {
		return &daemon.ComponentHealth{Name: a.Name(), Healthy: false, Error: err}, nil
	}
	return &daemon.ComponentHealth{Name: a.Name(), Healthy: true}, nil
}

// SubmitHandler turns adapter callbacks into ingress events. A redelivery
// is acknowledged as handled so the platform stops retrying.
func SubmitHandler(ing *ingress.Ingress) adapter.EventHandler {
	return func(ctx context.Context, source, kind, userID, replyTo, content string, metadata map[string]string) error {
		evt := ingress.NewEvent(source, ingress.Kind(kind), userID, replyTo, content, metadata)
		evt.ExternalID = metadata[adapter.MetaDeliveryID]

		err := ing.Submit(ctx, &evt)
		if stderrors.Is(err, kerrors.ErrDuplicateEvent) {
			return nil
		}
		return err
	}
}
