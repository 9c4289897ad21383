package egress

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Nell373/linebot-ai/internal/adapter"
	"github.com/Nell373/linebot-ai/internal/errors"
	"github.com/Nell373/linebot-ai/internal/reply"
)

// Egress delivers replies through the output adapter of the source the
// triggering event came from.
type Egress interface {
	Register(adapter adapter.OutputAdapter) error
	Unregister(name string) error

	// Send routes r to the adapter named source.
	Send(ctx context.Context, source string, to adapter.Target, r *reply.Reply) error

	Health(ctx context.Context) error
	ListAdapters() []adapter.OutputAdapter
}

type DefaultEgress struct {
	mu       sync.RWMutex
	adapters map[string]adapter.OutputAdapter
}

func NewEgress() *DefaultEgress {
	return &DefaultEgress{
		adapters: make(map[string]adapter.OutputAdapter),
	}
}

func (e *DefaultEgress) Register(adapter adapter.OutputAdapter) error {
	if adapter == nil {
		return errors.InvalidInput("adapter cannot be nil")
	}

	name := adapter.Name()
	if name == "" {
		return errors.InvalidInput("adapter name cannot be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.adapters[name]; exists {
		return errors.Conflict("adapter already registered: " + name)
	}

	e.adapters[name] = adapter
	slog.Info("Egress adapter registered", "name", name)
	return nil
}

func (e *DefaultEgress) Unregister(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.adapters[name]; !exists {
		return errors.NotFound("adapter not found: " + name)
	}

	delete(e.adapters, name)
	slog.Info("Egress adapter unregistered", "name", name)
	return nil
}

func (e *DefaultEgress) Send(ctx context.Context, source string, to adapter.Target, r *reply.Reply) error {
	if r == nil {
		return nil
	}
	if source == "" {
		return errors.InvalidInput("reply source missing")
	}

	out, err := e.getAdapter(source)
	if err != nil {
		return err
	}

	if err := out.Send(ctx, to, r); err != nil {
		return errors.Wrap(err, "failed to send reply")
	}

	slog.Debug("Reply sent", "source", source, "user_id", to.UserID, "content_length", len(r.Body()))
	return nil
}

func (e *DefaultEgress) getAdapter(name string) (adapter.OutputAdapter, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out, ok := e.adapters[name]
	if !ok {
		return nil, errors.NotFound("no adapter found for source: " + name)
	}

	return out, nil
}

func (e *DefaultEgress) Health(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.adapters) == 0 {
		return errors.Internal("no adapters registered")
	}

	var unhealthy []string
	for name, out := range e.adapters {
		if err := out.Health(ctx); err != nil {
			unhealthy = append(unhealthy, name)
			slog.Warn("Adapter unhealthy", "name", name, "error", err)
		}
	}

	if len(unhealthy) > 0 {
		sort.Strings(unhealthy)
		return errors.Transient(fmt.Sprintf("%d adapter(s) unhealthy: %v", len(unhealthy), unhealthy))
	}

	return nil
}

func (e *DefaultEgress) ListAdapters() []adapter.OutputAdapter {
	e.mu.RLock()
	defer e.mu.RUnlock()

	adapters := make([]adapter.OutputAdapter, 0, len(e.adapters))
	for _, out := range e.adapters {
		adapters = append(adapters, out)
	}
	sort.Slice(adapters, func(i, j int) bool { return adapters[i].Name() < adapters[j].Name() })
	return adapters
}
