package ingress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Nell373/linebot-ai/internal/config"
	"github.com/Nell373/linebot-ai/internal/errors"
)

type RuntimeConfig struct {
	SubmitTimeout     time.Duration
	DrainTimeout      time.Duration
	DrainPollInterval time.Duration
}

// Deduper remembers platform delivery ids. *idempotency.Guard satisfies it.
type Deduper interface {
	ShouldProcess(scope, key string) bool
	Forget(scope, key string)
}

type Ingress struct {
	queue             chan *Event
	dedup             Deduper
	router            Router
	resolver          Resolver
	submitTimeout     time.Duration
	drainTimeout      time.Duration
	drainPollInterval time.Duration
	closeOnce         sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewIngress builds a bounded queue. dedup may be nil when the platforms
// never redeliver.
func NewIngress(size int, runtimeCfg RuntimeConfig, dedup Deduper) *Ingress {
	if size <= 0 {
		size = config.DefaultIngressQueueSize
	}
	if runtimeCfg.SubmitTimeout <= 0 {
		d, err := config.DurationOrDefault("", config.DefaultIngressSubmitTimeout)
		if err == nil {
			runtimeCfg.SubmitTimeout = d
		}
	}
	if runtimeCfg.DrainTimeout <= 0 {
		d, err := config.DurationOrDefault("", config.DefaultIngressDrainTimeout)
		if err == nil {
			runtimeCfg.DrainTimeout = d
		}
	}
	if runtimeCfg.DrainPollInterval <= 0 {
		runtimeCfg.DrainPollInterval = 50 * time.Millisecond
	}

	return &Ingress{
		queue:             make(chan *Event, size),
		dedup:             dedup,
		router:            NewStandardRouter(),
		resolver:          NewStandardResolver(),
		submitTimeout:     runtimeCfg.SubmitTimeout,
		drainTimeout:      runtimeCfg.DrainTimeout,
		drainPollInterval: runtimeCfg.DrainPollInterval,
	}
}

// Router exposes the router so callers can register slash commands.
func (i *Ingress) Router() *StandardRouter {
	r, _ := i.router.(*StandardRouter)
	return r
}

// Submit validates, routes and enqueues an event. It returns
// ErrDuplicateEvent for a redelivery and ErrTransient when the queue stays
// full for the submit timeout. A delivery id is only remembered once its
// event was queued or handled, so a platform retry after a failure gets in.
func (i *Ingress) Submit(ctx context.Context, evt *Event) (err error) {
	if evt == nil {
		return errors.InvalidInput("event is nil")
	}
	if !evt.Kind.Valid() {
		return errors.InvalidInput("unknown event kind: " + string(evt.Kind))
	}

	slog.Debug("Ingress received event", "event_id", evt.ID, "kind", evt.Kind, "source", evt.Source)

	if evt.ExternalID != "" && i.dedup != nil {
		if !i.dedup.ShouldProcess(evt.Source, evt.ExternalID) {
			slog.Warn("Duplicate delivery detected", "key", DeliveryKey(evt.Source, evt.ExternalID))
			return errors.ErrDuplicateEvent
		}
		defer func() {
			if err != nil {
				i.dedup.Forget(evt.Source, evt.ExternalID)
			}
		}()
	}

	dest := i.router.Route(ctx, evt)
	switch dest.Type {
	case DestDrop:
		slog.Info("Event dropped by router", "event_id", evt.ID)
		return nil
	case DestCommand:
		slog.Info("Handling as command", "event_id", evt.ID)
		if dest.Handler != nil {
			return dest.Handler(ctx, evt)
		}
		return nil
	case DestPipeline:
		// Continue to Resolver -> Queue
	default:
		return errors.InvalidInput("unknown destination type")
	}

	user, err := i.resolver.ResolveUser(ctx, evt)
	if err != nil {
		return errors.InvalidInput(err.Error())
	}
	evt.UserID = user

	replyTo, err := i.resolver.ResolveReplyTo(ctx, evt)
	if err != nil {
		return errors.Wrap(err, "reply target resolution failed")
	}
	evt.ReplyTo = replyTo

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return errors.Transient("ingress closed")
	}

	select {
	case i.queue <- evt:
		slog.Debug("Event queued", "event_id", evt.ID, "user_id", evt.UserID)
		return nil
	case <-time.After(i.submitTimeout):
		slog.Warn("Queue full, dropping event", "event_id", evt.ID)
		return errors.ErrTransient
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Ingress) Queue() <-chan *Event {
	return i.queue
}

// Close waits for workers to drain the queue, then closes it. Later calls
// are no-ops.
func (i *Ingress) Close() error {
	i.closeOnce.Do(i.drainAndClose)
	return nil
}

func (i *Ingress) drainAndClose() {
	slog.Info("Ingress shutting down, draining queue")

	drainStart := time.Now()
	remaining := len(i.queue)
	for remaining > 0 && time.Since(drainStart) < i.drainTimeout {
		time.Sleep(i.drainPollInterval)
		now := len(i.queue)
		if now == remaining {
			slog.Warn("Queue drain stalled", "remaining", remaining)
			break
		}
		remaining = now
	}

	if remaining > 0 {
		slog.Warn("Queue drain incomplete", "remaining", remaining)
	}
	i.mu.Lock()
	i.closed = true
	close(i.queue)
	i.mu.Unlock()
	slog.Info("Ingress shutdown complete")
}

func (i *Ingress) Health(ctx context.Context) error {
	if i.queue == nil {
		return errors.Internal("queue not initialized")
	}

	usage := float64(len(i.queue)) / float64(cap(i.queue))
	slog.Debug("Ingress health metrics",
		"queue_len", len(i.queue),
		"queue_cap", cap(i.queue),
		"usage", usage,
	)

	if usage > 0.9 {
		return errors.Transient("queue nearly full")
	}
	return nil
}
