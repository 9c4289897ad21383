package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Nell373/linebot-ai/internal/adapter"
	"github.com/Nell373/linebot-ai/internal/concurrency"
	"github.com/Nell373/linebot-ai/internal/config"
	"github.com/Nell373/linebot-ai/internal/dispatcher"
	"github.com/Nell373/linebot-ai/internal/errors"
	"github.com/Nell373/linebot-ai/internal/ingress"
	"github.com/Nell373/linebot-ai/internal/logger"
	"github.com/Nell373/linebot-ai/internal/reply"
)

// Handler runs one conversation turn. *dispatcher.Dispatcher satisfies it.
type Handler interface {
	HandleTextMessage(ctx context.Context, userID, text string) dispatcher.Result
	HandlePostback(ctx context.Context, userID, payload string) dispatcher.Result
}

// Sender delivers a reply. *egress.DefaultEgress satisfies it.
type Sender interface {
	Send(ctx context.Context, source string, to adapter.Target, r *reply.Reply) error
}

type RuntimeConfig struct {
	ShutdownTimeout time.Duration
	SendTimeout     time.Duration
}

func (c RuntimeConfig) withDefaults() RuntimeConfig {
	if c.ShutdownTimeout <= 0 {
		if d, err := config.DurationOrDefault("", config.DefaultWorkerShutdownTimeout); err == nil {
			c.ShutdownTimeout = d
		}
	}
	if c.SendTimeout <= 0 {
		if d, err := config.DurationOrDefault("", config.DefaultWorkerSendTimeout); err == nil {
			c.SendTimeout = d
		}
	}
	return c
}

// Worker consumes one lane of events, one turn at a time.
type Worker struct {
	mu      sync.RWMutex
	started bool
	quit    chan struct{}
	wg      sync.WaitGroup

	lane    string
	events  <-chan *ingress.Event
	handler Handler
	sender  Sender
	locks   *concurrency.UserLocks

	shutdownTimeout time.Duration
	sendTimeout     time.Duration
}

func NewWorker(lane string, events <-chan *ingress.Event, handler Handler, sender Sender, locks *concurrency.UserLocks, runtimeCfg RuntimeConfig) *Worker {
	runtimeCfg = runtimeCfg.withDefaults()
	return &Worker{
		lane:    lane,
		events:  events,
		handler: handler,
		sender:  sender,
		locks:   locks,

		shutdownTimeout: runtimeCfg.ShutdownTimeout,
		sendTimeout:     runtimeCfg.SendTimeout,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("worker %s: %w", w.lane, errors.InvalidInput("worker already started"))
	}

	w.started = true
	w.quit = make(chan struct{})

	w.wg.Add(1)
	concurrency.SafeGo("worker-"+w.lane, func() {
		defer w.wg.Done()

		slog.Debug("Worker started", "lane", w.lane)
		w.eventLoop(ctx)
		slog.Debug("Worker stopped", "lane", w.lane)
	}, nil)

	return nil
}

func (w *Worker) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.quit:
			return
		case evt, ok := <-w.events:
			if !ok {
				return
			}
			w.process(ctx, evt)
		}
	}
}

func (w *Worker) process(ctx context.Context, evt *ingress.Event) {
	start := time.Now()

	ctx = logger.WithTraceID(ctx, evt.ID)
	ctx = logger.WithUserID(ctx, evt.UserID)
	log := logger.From(ctx).With("lane", w.lane, "source", evt.Source, "kind", evt.Kind)

	if err := w.processEvent(ctx, evt); err != nil {
		log.Error("Event processing failed", "error", err)
		return
	}

	log.Debug("Event processed", "duration", time.Since(start))
}

func (w *Worker) processEvent(ctx context.Context, evt *ingress.Event) error {
	if err := validateEvent(evt); err != nil {
		return fmt.Errorf("validate event: %w", err)
	}

	if w.locks != nil {
		w.locks.Lock(evt.UserID)
		defer w.locks.Unlock(evt.UserID)
	}

	var res dispatcher.Result
	switch evt.Kind {
	case ingress.KindPostback:
		res = w.handler.HandlePostback(ctx, evt.UserID, evt.Content)
	default:
		res = w.handler.HandleTextMessage(ctx, evt.UserID, evt.Content)
	}

	if res.Dropped || res.Reply == nil {
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()

	to := adapter.Target{
		UserID:  strings.TrimPrefix(evt.UserID, evt.Source+":"),
		ReplyTo: evt.ReplyTo,
	}
	if err := w.sender.Send(sendCtx, evt.Source, to, res.Reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func validateEvent(evt *ingress.Event) error {
	if evt == nil {
		return errors.InvalidInput("event is nil")
	}
	if evt.ID == "" {
		return errors.InvalidInput("event ID is empty")
	}
	if evt.UserID == "" {
		return errors.InvalidInput("user ID is empty")
	}
	if !evt.Kind.Valid() {
		return errors.InvalidInput("unknown event kind: " + string(evt.Kind))
	}
	return nil
}

func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return nil
	}

	close(w.quit)
	w.started = false

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(w.shutdownTimeout):
		slog.Warn("Worker shutdown timeout, force stopping", "lane", w.lane)
		return errors.Internal("shutdown timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) Health(ctx context.Context) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.started {
		return errors.Internal("worker not started")
	}
	if w.events == nil {
		return errors.Internal("event channel not initialized")
	}
	if w.handler == nil {
		return errors.Internal("handler not configured")
	}
	if w.sender == nil {
		return errors.Internal("sender not configured")
	}
	return nil
}
