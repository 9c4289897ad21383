package components

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Nell373/linebot-ai/internal/concurrency"
	"github.com/Nell373/linebot-ai/internal/config"
	"github.com/Nell373/linebot-ai/internal/conversation"
	"github.com/Nell373/linebot-ai/internal/daemon"
	"github.com/Nell373/linebot-ai/internal/dispatcher"
	"github.com/Nell373/linebot-ai/internal/idempotency"
	"github.com/Nell373/linebot-ai/internal/ledger"
	"github.com/Nell373/linebot-ai/internal/store"
	"github.com/Nell373/linebot-ai/internal/transport"
)

const (
	LedgerSQLite = "sqlite"
	LedgerNATS   = "nats"

	ConversationMemory = "memory"
	ConversationRedis  = "redis"
)

// ledgerBackend is the executor and reader the dispatcher runs against.
// *ledger.SQLiteStore and *transport.NATSExecutor both satisfy it.
type ledgerBackend interface {
	transport.Ledger
	Ping(ctx context.Context) error
	Close() error
}

// StateComponent owns everything that outlives a single turn: the data
// directory lock, conversation state, the two dedup guards, the ledger and
// the dispatcher built on top of them.
type StateComponent struct {
	cfg     *config.Config
	dataDir string

	lock          *store.FileLock
	conversations conversation.Store
	memory        *conversation.MemoryStore
	redis         *conversation.RedisStore
	callbacks     *idempotency.Guard
	deliveries    *idempotency.Guard
	ledger        ledgerBackend
	locks         *concurrency.UserLocks
	dispatcher    *dispatcher.Dispatcher
	location      *time.Location

	initialized bool
	started     bool
	mu          sync.RWMutex
}

func NewStateComponent(cfg *config.Config, dataDir string) *StateComponent {
	return &StateComponent{cfg: cfg, dataDir: dataDir}
}

func (s *StateComponent) Name() string {
	return "State"
}

func (s *StateComponent) Dependencies() []string {
	return []string{}
}

func (s *StateComponent) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("State init cancelled: %w", ctx.Err())
	default:
	}

	if s.cfg == nil {
		return fmt.Errorf("config not provided")
	}

	lockCfg, err := store.NewFileLockConfig(s.cfg.Daemon)
	if err != nil {
		return err
	}
	lock, err := store.NewFileLock(ctx, "daemon", s.dataDir, lockCfg)
	if err != nil {
		return fmt.Errorf("data dir %s is locked by another instance: %w", s.dataDir, err)
	}
	s.lock = lock

	if err := s.initLocked(ctx); err != nil {
		s.closeLocked()
		return err
	}

	s.initialized = true
	slog.Info("State initialized", "component", s.Name(),
		"data_dir", s.dataDir,
		"conversation", s.conversationBackend(),
		"ledger", s.ledgerBackendName(),
		"timezone", s.location.String(),
	)
	return nil
}

func (s *StateComponent) initLocked(ctx context.Context) error {
	s.location = config.LocationOrDefault(s.cfg.Locale.Timezone)
	s.locks = concurrency.NewUserLocks()

	if err := s.openConversations(); err != nil {
		return err
	}
	if err := s.openGuards(); err != nil {
		return err
	}
	if err := s.openLedger(ctx); err != nil {
		return err
	}

	sentinels := s.cfg.Locale.NoneSentinels
	if len(sentinels) == 0 {
		sentinels = config.DefaultNoneSentinels
	}
	s.dispatcher = dispatcher.New(s.conversations, s.callbacks, s.ledger, s.ledger,
		dispatcher.WithLocation(s.location),
		dispatcher.WithNoneSentinels(sentinels),
	)
	return nil
}

func (s *StateComponent) openConversations() error {
	switch s.conversationBackend() {
	case ConversationMemory:
		s.memory = conversation.NewMemoryStore(s.cfg.Conversation.Shards)
		s.conversations = s.memory
	case ConversationRedis:
		ttl, err := config.DurationOrDefault(s.cfg.Conversation.TTL, config.DefaultConversationTTL)
		if err != nil {
			return fmt.Errorf("parse conversation ttl: %w", err)
		}
		url := s.cfg.Conversation.RedisURL
		if strings.TrimSpace(url) == "" {
			url = config.DefaultConversationRedisURL
		}
		rs, err := conversation.NewRedisStore(url, ttl)
		if err != nil {
			return err
		}
		s.redis = rs
		s.conversations = rs
	default:
		return fmt.Errorf("unknown conversation backend %q", s.cfg.Conversation.Backend)
	}
	return nil
}

func (s *StateComponent) openGuards() error {
	window, err := config.DurationOrDefault(s.cfg.Dedup.Window, config.DefaultDedupWindow)
	if err != nil {
		return fmt.Errorf("parse dedup window: %w", err)
	}
	retention, err := config.DurationOrDefault(s.cfg.Dedup.Retention, config.DefaultDedupRetention)
	if err != nil {
		return fmt.Errorf("parse dedup retention: %w", err)
	}

	s.callbacks = idempotency.NewGuard(
		idempotency.WithWindow(window),
		idempotency.WithRetention(retention),
		idempotency.WithSnapshot(s.cfg.Dedup.SnapshotPath),
	)
	if err := s.callbacks.Load(); err != nil {
		slog.Warn("Ignoring unreadable dedup snapshot", "path", s.cfg.Dedup.SnapshotPath, "error", err)
	}

	// A platform redelivery can arrive minutes later, so the delivery guard
	// rejects a repeat for the whole retention period.
	s.deliveries = idempotency.NewGuard(
		idempotency.WithWindow(retention),
		idempotency.WithRetention(retention),
		idempotency.WithSnapshot(store.DeliveriesPath(s.dataDir)),
	)
	if err := s.deliveries.Load(); err != nil {
		slog.Warn("Ignoring unreadable delivery snapshot", "path", store.DeliveriesPath(s.dataDir), "error", err)
	}
	return nil
}

func (s *StateComponent) openLedger(ctx context.Context) error {
	switch s.ledgerBackendName() {
	case LedgerSQLite:
		st, err := ledger.NewSQLiteStore(ctx, s.cfg.Ledger.Path, ledger.WithLocation(s.location))
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		s.ledger = st
	case LedgerNATS:
		timeout, err := config.DurationOrDefault(s.cfg.Ledger.RequestTimeout, config.DefaultLedgerRequestTimeout)
		if err != nil {
			return fmt.Errorf("parse ledger request timeout: %w", err)
		}
		url := s.cfg.Ledger.NatsURL
		if strings.TrimSpace(url) == "" {
			url = config.DefaultLedgerNatsURL
		}
		subject := s.cfg.Ledger.Subject
		if strings.TrimSpace(subject) == "" {
			subject = config.DefaultLedgerSubject
		}
		conn, err := transport.Connect(url, "kimi-daemon", timeout)
		if err != nil {
			return err
		}
		s.ledger = transport.NewNATSExecutor(conn, subject, timeout)
	default:
		return fmt.Errorf("unknown ledger backend %q", s.cfg.Ledger.Backend)
	}
	return nil
}

func (s *StateComponent) conversationBackend() string {
	b := strings.ToLower(strings.TrimSpace(s.cfg.Conversation.Backend))
	if b == "" {
		return config.DefaultConversationBackend
	}
	return b
}

func (s *StateComponent) ledgerBackendName() string {
	b := strings.ToLower(strings.TrimSpace(s.cfg.Ledger.Backend))
	if b == "" {
		return config.DefaultLedgerBackend
	}
	return b
}

func (s *StateComponent) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return fmt.Errorf("State not initialized")
	}
	s.started = true
	slog.Info("State started", "component", s.Name())
	return nil
}

// Stop snapshots both guards and releases the ledger, the redis client and
// the data dir lock. It runs last, after the workers have drained.
func (s *StateComponent) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		slog.Info("State not initialized, skipping stop", "component", s.Name())
		return nil
	}

	slog.Info("Stopping State...", "component", s.Name())
	var errs []string
	for name, g := range map[string]*idempotency.Guard{"dedup": s.callbacks, "deliveries": s.deliveries} {
		if g == nil {
			continue
		}
		if err := g.Save(); err != nil {
			errs = append(errs, fmt.Sprintf("save %s snapshot: %v", name, err))
		}
	}
	if err := s.closeLocked(); err != nil {
		errs = append(errs, err.Error())
	}

	s.initialized = false
	s.started = false
	if len(errs) > 0 {
		return fmt.Errorf("State stop: %s", strings.Join(errs, "; "))
	}
	slog.Info("State stopped", "component", s.Name())
	return nil
}

func (s *StateComponent) closeLocked() error {
	var errs []string
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("close ledger: %v", err))
		}
		s.ledger = nil
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("close redis: %v", err))
		}
		s.redis = nil
	}
	if s.lock != nil {
		s.lock.Unlock()
		s.lock = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *StateComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return &daemon.ComponentHealth{Name: s.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if s.lock == nil || !s.lock.IsLocked() {
		return &daemon.ComponentHealth{Name: s.Name(), Healthy: false, Error: fmt.Errorf("data dir lock lost")}, nil
	}
	if err := s.ledger.Ping(ctx); err != nil {
		return &daemon.ComponentHealth{Name: s.Name(), Healthy: false, Error: fmt.Errorf("ledger: %w", err)}, nil
	}
	return &daemon.ComponentHealth{Name: s.Name(), Healthy: true}, nil
}

func (s *StateComponent) Dispatcher() *dispatcher.Dispatcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dispatcher
}

func (s *StateComponent) Locks() *concurrency.UserLocks {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locks
}

// Deliveries is the guard ingress uses to drop platform redeliveries.
func (s *StateComponent) Deliveries() *idempotency.Guard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deliveries
}

// Guards returns both dedup guards for the prune job.
func (s *StateComponent) Guards() []*idempotency.Guard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return []*idempotency.Guard{s.callbacks, s.deliveries}
}

// MemoryConversations is nil when conversation state lives in redis, where
// keys expire on their own.
func (s *StateComponent) MemoryConversations() *conversation.MemoryStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memory
}

func (s *StateComponent) Location() *time.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.location
}
