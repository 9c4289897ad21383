package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Nell373/linebot-ai/internal/concurrency"
	"github.com/Nell373/linebot-ai/internal/config"
	"github.com/Nell373/linebot-ai/internal/errors"
	"github.com/Nell373/linebot-ai/internal/ingress"
)

// Pool fans the ingress queue out to a fixed set of lanes. A user always
// lands on the same lane, so one user's events are handled in arrival order
// while different users run concurrently.
type Pool struct {
	mu       sync.Mutex
	started  bool
	source   <-chan *ingress.Event
	lanes    []chan *ingress.Event
	workers  []*Worker
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}

	shutdownTimeout time.Duration
}

func NewPool(count int, source <-chan *ingress.Event, handler Handler, sender Sender, locks *concurrency.UserLocks, runtimeCfg RuntimeConfig) *Pool {
	if count <= 0 {
		count = config.DefaultWorkerCount
	}
	runtimeCfg = runtimeCfg.withDefaults()

	p := &Pool{
		source:          source,
		lanes:           make([]chan *ingress.Event, count),
		workers:         make([]*Worker, count),
		quit:            make(chan struct{}),
		done:            make(chan struct{}),
		shutdownTimeout: runtimeCfg.ShutdownTimeout,
	}
	for i := range p.lanes {
		// Unbuffered: once the fan-out stops, no event sits unread in a lane.
		p.lanes[i] = make(chan *ingress.Event)
		p.workers[i] = NewWorker(strconv.Itoa(i), p.lanes[i], handler, sender, locks, runtimeCfg)
	}
	return p
}

// Size returns the number of lanes.
func (p *Pool) Size() int {
	return len(p.lanes)
}

func (p *Pool) laneFor(userID string) int {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(p.lanes)))
}

func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.InvalidInput("worker pool already started")
	}

	for _, w := range p.workers {
		if err := w.Start(ctx); err != nil {
			return err
		}
	}

	concurrency.SafeGo("worker-fanout", func() { p.fanout(ctx) }, nil)
	p.started = true
	slog.Info("Worker pool started", "lanes", len(p.lanes))
	return nil
}

func (p *Pool) fanout(ctx context.Context) {
	defer close(p.done)
	defer func() {
		for _, lane := range p.lanes {
			close(lane)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case evt, ok := <-p.source:
			if !ok {
				return
			}
			if evt == nil {
				continue
			}
			select {
			case p.lanes[p.laneFor(evt.UserID)] <- evt:
			case <-ctx.Done():
				return
			case <-p.quit:
				return
			}
		}
	}
}

// Stop waits for the source to close and the lanes to drain. After the
// shutdown timeout the fan-out is abandoned and pending events are lost.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}
	p.started = false

	timer := time.NewTimer(p.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
	case <-timer.C:
		slog.Warn("Worker pool drain timed out")
		p.quitOnce.Do(func() { close(p.quit) })
		<-p.done
	case <-ctx.Done():
		p.quitOnce.Do(func() { close(p.quit) })
		<-p.done
	}

	var errs []string
	for _, w := range p.workers {
		if err := w.Stop(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("lane %s: %v", w.lane, err))
		}
	}
	if len(errs) > 0 {
		return errors.Internal("failed to stop workers: " + strings.Join(errs, "; "))
	}
	slog.Info("Worker pool stopped")
	return nil
}

func (p *Pool) Health(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return errors.Internal("worker pool not started")
	}
	for _, w := range p.workers {
		if err := w.Health(ctx); err != nil {
			return fmt.Errorf("lane %s: %w", w.lane, err)
		}
	}
	return nil
}
