package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	kerrors "github.com/Nell373/linebot-ai/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGuard struct {
	pruned  int
	saves   int
	saveErr error
}

func (f *fakeGuard) Prune() int { return f.pruned }

func (f *fakeGuard) Save() error {
	f.saves++
	return f.saveErr
}

type fakeSweeper struct{ swept int }

func (f *fakeSweeper) Sweep(idle time.Duration) int { return f.swept }

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	st, err := NewStore("")
	require.NoError(t, err)
	return NewScheduler(st, RuntimeConfig{ShutdownTimeout: time.Second})
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := newTestScheduler(t)
	noop := func(ctx context.Context) (string, error) { return "", nil }

	require.NoError(t, s.Register("a", "@every 1m", "", noop))
	assert.True(t, kerrors.IsCategory(s.Register("a", "@every 1m", "", noop), kerrors.ErrConflict))
	assert.True(t, kerrors.IsCategory(s.Register("b", "every minute", "", noop), kerrors.ErrInvalidInput))
	assert.True(t, kerrors.IsCategory(s.Register("", "@hourly", "", noop), kerrors.ErrInvalidInput))
	assert.True(t, kerrors.IsCategory(s.Register("c", "@hourly", "", nil), kerrors.ErrInvalidInput))
	require.NoError(t, s.Register("d", "*/5 * * * *", "", noop))
}

func TestScheduler_RunNowAndHealth(t *testing.T) {
	s := newTestScheduler(t)
	guard := &fakeGuard{pruned: 2}
	locks, states := &fakeSweeper{swept: 1}, &fakeSweeper{swept: 4}

	require.NoError(t, s.Register(JobDedupPrune, "@every 1m", "prune", PruneJob(guard)))
	require.NoError(t, s.Register(JobSweep, "@every 10m", "sweep", SweepJob(time.Minute, locks, states)))

	assert.Error(t, s.Health(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	out, err := s.RunNow(context.Background(), JobDedupPrune)
	require.NoError(t, err)
	assert.Equal(t, "pruned 2", out)
	assert.Equal(t, 1, guard.saves)

	out, err = s.RunNow(context.Background(), JobSweep)
	require.NoError(t, err)
	assert.Equal(t, "swept 5", out)

	require.NoError(t, s.Health(context.Background()))

	guard.saveErr = errors.New("read-only file system")
	_, err = s.RunNow(context.Background(), JobDedupPrune)
	require.Error(t, err)
	assert.True(t, kerrors.IsCategory(s.Health(context.Background()), kerrors.ErrTransient))

	_, err = s.RunNow(context.Background(), "missing")
	assert.True(t, kerrors.IsCategory(err, kerrors.ErrNotFound))

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.IsRunning())
	assert.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_FiresOnSchedule(t *testing.T) {
	s := newTestScheduler(t)
	var runs atomic.Int32
	require.NoError(t, s.Register("tick", "@every 1s", "", func(ctx context.Context) (string, error) {
		runs.Add(1)
		return "", nil
	}))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool {
		jobs := s.Jobs()
		return len(jobs) == 1 && jobs[0].Runs > 0
	}, 3*time.Second, 50*time.Millisecond)
	assert.Positive(t, runs.Load())
}

func TestSweepJob_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := SweepJob(time.Minute, &fakeSweeper{swept: 1})(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
