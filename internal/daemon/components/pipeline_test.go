package components

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Nell373/linebot-ai/internal/adapter"
	"github.com/Nell373/linebot-ai/internal/config"
	"github.com/Nell373/linebot-ai/internal/daemon"
	"github.com/Nell373/linebot-ai/internal/reply"
	"github.com/Nell373/linebot-ai/internal/scheduler"
	"github.com/Nell373/linebot-ai/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedReply struct {
	to    adapter.Target
	reply *reply.Reply
}

type recordingOutput struct {
	name string
	mu   sync.Mutex
	got  []capturedReply
}

func (o *recordingOutput) Name() string                     { return o.name }
func (o *recordingOutput) Health(ctx context.Context) error { return nil }
func (o *recordingOutput) Send(ctx context.Context, to adapter.Target, r *reply.Reply) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got = append(o.got, capturedReply{to: to, reply: r})
	return nil
}

func (o *recordingOutput) replies() []capturedReply {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]capturedReply(nil), o.got...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server:       config.ServerConfig{Port: 8080},
		Ingress:      config.IngressConfig{QueueSize: 16},
		Worker:       config.WorkerConfig{Count: 2, ShutdownTimeout: "2s", SendTimeout: "1s"},
		Conversation: config.ConversationConfig{Backend: ConversationMemory},
		Dedup:        config.DedupConfig{SnapshotPath: filepath.Join(dir, "dedup.json")},
		Ledger:       config.LedgerConfig{Backend: LedgerSQLite, Path: filepath.Join(dir, "ledger.db")},
		Locale:       config.LocaleConfig{Timezone: "Asia/Taipei"},
		Daemon:       config.DaemonConfig{DataDir: dir, LockTimeout: "100ms", LockRetry: "10ms"},
	}
}

func TestStateComponent_Lifecycle(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	state := NewStateComponent(cfg, cfg.Daemon.DataDir)
	require.NoError(t, state.Init(ctx))
	require.NoError(t, state.Start(ctx))

	assert.NotNil(t, state.Dispatcher())
	assert.NotNil(t, state.Locks())
	assert.NotNil(t, state.MemoryConversations())
	assert.Len(t, state.Guards(), 2)
	assert.Equal(t, "Asia/Taipei", state.Location().String())

	h, err := state.Health(ctx)
	require.NoError(t, err)
	assert.True(t, h.Healthy, "%v", h.Error)

	// A second daemon on the same data dir cannot take the lock.
	other := NewStateComponent(cfg, cfg.Daemon.DataDir)
	assert.Error(t, other.Init(ctx))

	state.Deliveries().ShouldProcess("line", "evt-1")
	require.NoError(t, state.Stop(ctx))

	_, err = os.Stat(store.DeliveriesPath(cfg.Daemon.DataDir))
	assert.NoError(t, err, "delivery snapshot written on stop")

	h, _ = state.Health(ctx)
	assert.False(t, h.Healthy)

	// The lock is free again.
	again := NewStateComponent(cfg, cfg.Daemon.DataDir)
	require.NoError(t, again.Init(ctx))
	assert.False(t, again.Deliveries().ShouldProcess("line", "evt-1"), "snapshot restored")
	require.NoError(t, again.Stop(ctx))
}

func TestStateComponent_UnknownBackends(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.Ledger.Backend = "postgres"
	assert.Error(t, NewStateComponent(cfg, cfg.Daemon.DataDir).Init(ctx))

	cfg = testConfig(t)
	cfg.Conversation.Backend = "memcached"
	state := NewStateComponent(cfg, cfg.Daemon.DataDir)
	assert.Error(t, state.Init(ctx))

	// A failed init releases the lock.
	cfg.Conversation.Backend = ConversationMemory
	state = NewStateComponent(cfg, cfg.Daemon.DataDir)
	require.NoError(t, state.Init(ctx))
	require.NoError(t, state.Stop(ctx))
}

func TestPipeline_EventToReply(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state := NewStateComponent(cfg, cfg.Daemon.DataDir)
	ing := NewIngressComponent(state, &cfg.Ingress)
	workers := NewWorkersComponent(&cfg.Worker, ing, state)
	adapters := NewAdaptersComponent(&cfg.Adapters, ing, workers)
	sched := NewSchedulerComponent(cfg, state, cfg.Daemon.DataDir)

	order := []daemon.Component{state, ing, workers, adapters, sched}
	for _, c := range order {
		require.NoError(t, c.Init(ctx), c.Name())
	}

	out := &recordingOutput{name: "test"}
	require.NoError(t, workers.Egress().Register(out))

	for _, c := range order {
		require.NoError(t, c.Start(ctx), c.Name())
	}
	for _, c := range order {
		h, err := c.Health(ctx)
		require.NoError(t, err)
		assert.True(t, h.Healthy, "%s: %v", c.Name(), h.Error)
	}

	submit := SubmitHandler(ing.GetIngress())
	meta := map[string]string{adapter.MetaDeliveryID: "d-1"}
	require.NoError(t, submit(ctx, "test", adapter.KindText, "U1", "chat-1", "選單", meta))
	// The platform retried the same delivery.
	require.NoError(t, submit(ctx, "test", adapter.KindText, "U1", "chat-1", "選單", meta))

	require.Eventually(t, func() bool { return len(out.replies()) == 1 }, 2*time.Second, 10*time.Millisecond)

	got := out.replies()[0]
	assert.Equal(t, adapter.Target{UserID: "U1", ReplyTo: "chat-1"}, got.to)
	assert.NotEmpty(t, got.reply.Buttons())

	result, err := sched.Scheduler().RunNow(ctx, scheduler.JobSweep)
	require.NoError(t, err)
	assert.Contains(t, result, "swept")

	for i := len(order) - 1; i >= 0; i-- {
		require.NoError(t, order[i].Stop(ctx), order[i].Name())
	}

	// After shutdown ingress refuses new work.
	assert.Error(t, submit(ctx, "test", adapter.KindText, "U1", "chat-1", "選單", nil))
	assert.Len(t, out.replies(), 1)
}
