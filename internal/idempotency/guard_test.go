package idempotency

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const payload = "action=finish&type=expense&category=%E9%A4%90%E9%A3%B2&amount=150&account=%E9%BB%98%E8%AA%8D"

func TestGuard_RepeatsInsideWindowAreDropped(t *testing.T) {
	clock := newFakeClock()
	g := NewGuard(WithClock(clock.Now))

	accepted := 0
	for i := 0; i < 5; i++ {
		if g.ShouldProcess("U1", payload) {
			accepted++
		}
		clock.Advance(200 * time.Millisecond)
	}
	assert.Equal(t, 1, accepted)
}

func TestGuard_WindowIsMeasuredFromLastAcceptance(t *testing.T) {
	clock := newFakeClock()
	g := NewGuard(WithClock(clock.Now))

	require.True(t, g.ShouldProcess("U1", payload))
	clock.Advance(2 * time.Second)
	assert.False(t, g.ShouldProcess("U1", payload))

	clock.Advance(2 * time.Second)
	assert.True(t, g.ShouldProcess("U1", payload), "4s after the accepted delivery")
	assert.False(t, g.ShouldProcess("U1", payload))
}

func TestGuard_KeyIsExactUserAndPayload(t *testing.T) {
	clock := newFakeClock()
	g := NewGuard(WithClock(clock.Now))

	assert.True(t, g.ShouldProcess("U1", payload))
	assert.True(t, g.ShouldProcess("U2", payload))
	assert.True(t, g.ShouldProcess("U1", payload+"&note=x"))
	assert.True(t, g.ShouldProcess("U1", "action=record"))
	assert.False(t, g.ShouldProcess("U1", "action=record"))
}

func TestGuard_ForgetReopensKey(t *testing.T) {
	clock := newFakeClock()
	g := NewGuard(WithClock(clock.Now), WithWindow(10*time.Minute))

	require.True(t, g.ShouldProcess("line", "evt-1"))
	require.False(t, g.ShouldProcess("line", "evt-1"))

	g.Forget("line", "evt-1")
	assert.Equal(t, 0, g.Len())
	assert.True(t, g.ShouldProcess("line", "evt-1"))

	// Forgetting an unknown pair is a no-op.
	g.Forget("line", "evt-2")
	assert.Equal(t, 1, g.Len())
}

func TestGuard_PrunesAfterRetention(t *testing.T) {
	clock := newFakeClock()
	g := NewGuard(WithClock(clock.Now))

	g.ShouldProcess("U1", "a")
	g.ShouldProcess("U2", "b")
	clock.Advance(5 * time.Minute)
	g.ShouldProcess("U3", "c")
	require.Equal(t, 3, g.Len())

	clock.Advance(6 * time.Minute)
	assert.Equal(t, 2, g.Prune())
	assert.Equal(t, 1, g.Len())

	// lazy eviction on the hot path
	clock.Advance(5 * time.Minute)
	g.ShouldProcess("U4", "d")
	assert.Equal(t, 1, g.Len())
}

func TestGuard_CustomWindow(t *testing.T) {
	clock := newFakeClock()
	g := NewGuard(WithClock(clock.Now), WithWindow(10*time.Second), WithRetention(time.Second))

	require.True(t, g.ShouldProcess("U1", "x"))
	clock.Advance(5 * time.Second)
	assert.False(t, g.ShouldProcess("U1", "x"), "retention is never shorter than the window")
}

func TestGuard_SnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedup.json")
	clock := newFakeClock()

	g := NewGuard(WithClock(clock.Now), WithSnapshot(path))
	require.NoError(t, g.Load())
	require.True(t, g.ShouldProcess("U1", payload))
	require.NoError(t, g.Save())

	_, err := os.Stat(path)
	require.NoError(t, err)

	clock.Advance(time.Second)
	restored := NewGuard(WithClock(clock.Now), WithSnapshot(path))
	require.NoError(t, restored.Load())
	assert.False(t, restored.ShouldProcess("U1", payload))

	clock.Advance(20 * time.Minute)
	stale := NewGuard(WithClock(clock.Now), WithSnapshot(path))
	require.NoError(t, stale.Load())
	assert.Equal(t, 0, stale.Len())
}

func TestGuard_LoadRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedup.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	g := NewGuard(WithSnapshot(path))
	assert.Error(t, g.Load())
}

func TestGuard_ConcurrentCallersAcceptOnce(t *testing.T) {
	clock := newFakeClock()
	g := NewGuard(WithClock(clock.Now))

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.ShouldProcess("U1", payload) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
}
