package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Nell373/linebot-ai/internal/config"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

type mockComponent struct {
	name         string
	dependencies []string
	log          *callLog
	initCalled   bool
	startCalled  bool
	stopCalled   bool
	initError    error
	startError   error
	stopError    error
	healthError  error
	healthResult *ComponentHealth
}

func newMockComponent(name string, dependencies []string, log *callLog) *mockComponent {
	if log == nil {
		log = &callLog{}
	}
	return &mockComponent{
		name:         name,
		dependencies: dependencies,
		log:          log,
		healthResult: &ComponentHealth{
			Name:    name,
			Healthy: true,
		},
	}
}

func (m *mockComponent) Name() string {
	return m.name
}

func (m *mockComponent) Dependencies() []string {
	return m.dependencies
}

func (m *mockComponent) Init(ctx context.Context) error {
	m.initCalled = true
	m.log.add("init:" + m.name)
	return m.initError
}

func (m *mockComponent) Start(ctx context.Context) error {
	m.startCalled = true
	m.log.add("start:" + m.name)
	return m.startError
}

func (m *mockComponent) Stop(ctx context.Context) error {
	m.stopCalled = true
	m.log.add("stop:" + m.name)
	return m.stopError
}

func (m *mockComponent) Health(ctx context.Context) (*ComponentHealth, error) {
	return m.healthResult, m.healthError
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	d, err := NewDaemon(&config.Config{
		Server: config.ServerConfig{Port: 8080},
		Daemon: config.DaemonConfig{DataDir: t.TempDir()},
	})
	if err != nil {
		t.Fatalf("NewDaemon() failed: %v", err)
	}
	return d
}

func equalCalls(t *testing.T, got, want []string) {
	t.Helper()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestNewDaemon(t *testing.T) {
	if _, err := NewDaemon(nil); err == nil {
		t.Fatal("NewDaemon(nil) should fail")
	}

	d := newTestDaemon(t)
	if len(d.components) != 0 {
		t.Errorf("components = %v, want 0", len(d.components))
	}
	if d.Health() != StatusStarting {
		t.Errorf("health = %v, want %v", d.Health(), StatusStarting)
	}
}

func TestValidateConfig_ResolvesDefaultDataDir(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	d, err := NewDaemon(&config.Config{Server: config.ServerConfig{Port: 8080}})
	if err != nil {
		t.Fatalf("NewDaemon() failed: %v", err)
	}
	if err := d.validateConfig(); err != nil {
		t.Fatalf("validateConfig() failed: %v", err)
	}

	expected := filepath.Join(tmpHome, ".kimi")
	if d.DataDir() != expected {
		t.Fatalf("data dir = %q, want %q", d.DataDir(), expected)
	}
	if _, err := os.Stat(expected); err != nil {
		t.Fatalf("expected data dir to exist at %s: %v", expected, err)
	}
}

func TestValidateConfig_RejectsBadPort(t *testing.T) {
	d := newTestDaemon(t)
	d.cfg.Server.Port = 70000
	if err := d.validateConfig(); err == nil {
		t.Fatal("expected invalid port error")
	}
}

func TestInitializeComponents_DependencyOrder(t *testing.T) {
	d := newTestDaemon(t)
	log := &callLog{}

	// Registered out of order on purpose.
	d.AddComponent(newMockComponent("Workers", []string{"Ingress", "State"}, log))
	d.AddComponent(newMockComponent("Ingress", []string{"State"}, log))
	d.AddComponent(newMockComponent("State", nil, log))

	if err := d.initializeComponents(context.Background()); err != nil {
		t.Fatalf("initializeComponents() failed: %v", err)
	}
	equalCalls(t, log.list(), []string{"init:State", "init:Ingress", "init:Workers"})
}

func TestInitializeComponentsCircularDependency(t *testing.T) {
	d := newTestDaemon(t)
	d.AddComponent(newMockComponent("A", []string{"B"}, nil))
	d.AddComponent(newMockComponent("B", []string{"A"}, nil))

	if err := d.initializeComponents(context.Background()); err == nil {
		t.Fatal("expected circular dependency error")
	}
}

func TestInitializeComponentsMissingDependency(t *testing.T) {
	d := newTestDaemon(t)
	d.AddComponent(newMockComponent("A", []string{"Missing"}, nil))

	err := d.initializeComponents(context.Background())
	if err == nil {
		t.Fatal("expected missing dependency error")
	}
	if want := "component A depends on Missing which is not registered"; err.Error() != want {
		t.Fatalf("error = %q, want %q", err, want)
	}
}

func TestComponentHealth_NilReport(t *testing.T) {
	d := newTestDaemon(t)
	c := newMockComponent("Workers", nil, nil)
	c.healthResult = nil
	c.healthError = fmt.Errorf("not started")
	d.AddComponent(c)

	got := d.ComponentHealth()["Workers"]
	if got == nil || got.Healthy || got.Error == nil {
		t.Fatalf("Workers = %+v, want unhealthy with error", got)
	}
}

func TestStartAndShutdownFollowInitOrder(t *testing.T) {
	d := newTestDaemon(t)
	log := &callLog{}

	d.AddComponent(newMockComponent("HTTPServer", []string{"Ingress"}, log))
	d.AddComponent(newMockComponent("Ingress", []string{"State"}, log))
	d.AddComponent(newMockComponent("State", nil, log))

	if err := d.initializeComponents(context.Background()); err != nil {
		t.Fatalf("initializeComponents() failed: %v", err)
	}
	if err := d.startComponents(context.Background()); err != nil {
		t.Fatalf("startComponents() failed: %v", err)
	}
	if err := d.shutdownComponents(context.Background()); err != nil {
		t.Fatalf("shutdownComponents() failed: %v", err)
	}

	equalCalls(t, log.list()[3:], []string{
		"start:State", "start:Ingress", "start:HTTPServer",
		"stop:HTTPServer", "stop:Ingress", "stop:State",
	})
	if d.Health() != StatusStopped {
		t.Errorf("health = %v, want %v", d.Health(), StatusStopped)
	}
}

func TestStartComponentsStopsOnError(t *testing.T) {
	d := newTestDaemon(t)
	ok := newMockComponent("A", nil, nil)
	bad := newMockComponent("B", []string{"A"}, nil)
	bad.startError = fmt.Errorf("port in use")
	never := newMockComponent("C", []string{"B"}, nil)

	d.AddComponent(ok)
	d.AddComponent(bad)
	d.AddComponent(never)

	if err := d.initializeComponents(context.Background()); err != nil {
		t.Fatalf("initializeComponents() failed: %v", err)
	}
	if err := d.startComponents(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if never.startCalled {
		t.Error("component after the failure was started")
	}
}

func TestShutdownContinuesPastErrors(t *testing.T) {
	d := newTestDaemon(t)
	first := newMockComponent("A", nil, nil)
	failing := newMockComponent("B", []string{"A"}, nil)
	failing.stopError = fmt.Errorf("boom")

	d.AddComponent(first)
	d.AddComponent(failing)

	if err := d.gracefulShutdown(context.Background(), time.Second); err != nil {
		t.Fatalf("gracefulShutdown() failed: %v", err)
	}
	if !first.stopCalled || !failing.stopCalled {
		t.Error("expected every component to be stopped")
	}
}

func TestComponentHealth(t *testing.T) {
	d := newTestDaemon(t)
	healthy := newMockComponent("Healthy", nil, nil)
	sick := newMockComponent("Sick", nil, nil)
	sick.healthResult = &ComponentHealth{Name: "Sick", Healthy: false}
	sick.healthError = fmt.Errorf("queue nearly full")

	d.AddComponent(healthy)
	d.AddComponent(sick)

	got := d.ComponentHealth()
	if len(got) != 2 {
		t.Fatalf("health entries = %d, want 2", len(got))
	}
	if !got["Healthy"].Healthy {
		t.Error("Healthy reported unhealthy")
	}
	if got["Sick"].Healthy || got["Sick"].Error == nil {
		t.Errorf("Sick = %+v, want unhealthy with error", got["Sick"])
	}
}

func TestRollback(t *testing.T) {
	d := newTestDaemon(t)
	a := newMockComponent("A", nil, nil)
	b := newMockComponent("B", []string{"A"}, nil)
	b.initError = fmt.Errorf("cannot open ledger")

	d.AddComponent(a)
	d.AddComponent(b)

	if err := d.initializeComponents(context.Background()); err == nil {
		t.Fatal("expected init error")
	}
	d.rollback(context.Background())

	if !a.stopCalled || !b.stopCalled {
		t.Error("expected rollback to stop every component")
	}
	if d.Health() != StatusStopped {
		t.Errorf("health = %v, want %v", d.Health(), StatusStopped)
	}
}

func TestStartRunsUntilCancelled(t *testing.T) {
	d := newTestDaemon(t)
	log := &callLog{}
	d.AddComponent(newMockComponent("State", nil, log))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for d.Health() != StatusRunning {
		if time.Now().After(deadline) {
			t.Fatal("daemon never reached running")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("Start() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	equalCalls(t, log.list(), []string{"init:State", "start:State", "stop:State"})
}
