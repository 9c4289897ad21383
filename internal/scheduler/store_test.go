package scheduler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RunLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	st, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, st.Register(JobDedupPrune, "@every 1m", "prune dedup keys"))

	runID, err := st.Begin(JobDedupPrune)
	require.NoError(t, err)

	// A second run cannot start while the first is in flight.
	_, err = st.Begin(JobDedupPrune)
	assert.Error(t, err)

	require.NoError(t, st.Finish(JobDedupPrune, runID, "pruned 3", nil))
	assert.Error(t, st.Finish(JobDedupPrune, "other-run", "", nil))

	runID, err = st.Begin(JobDedupPrune)
	require.NoError(t, err)
	require.NoError(t, st.Finish(JobDedupPrune, runID, "", errors.New("disk full")))

	jobs := st.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, 2, jobs[0].Runs)
	assert.Equal(t, 1, jobs[0].Failures)
	require.NotNil(t, jobs[0].LastRun)
	assert.Equal(t, StatusFailed, jobs[0].LastRun.Status)
	assert.Equal(t, "disk full", jobs[0].LastRun.Error)

	_, err = st.Begin("unknown")
	assert.Error(t, err)
}

func TestStore_PersistsAndRecoversInterruptedRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	st, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, st.Register(JobSweep, "@every 10m", "sweep idle entries"))
	_, err = st.Begin(JobSweep)
	require.NoError(t, err)

	// Simulate a crash mid-run by reopening the file.
	reopened, err := NewStore(path)
	require.NoError(t, err)
	jobs := reopened.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, StatusRunning, jobs[0].LastRun.Status)

	require.NoError(t, reopened.Register(JobSweep, "@every 10m", "sweep idle entries"))
	jobs = reopened.Jobs()
	assert.Equal(t, StatusFailed, jobs[0].LastRun.Status)
	assert.Equal(t, "interrupted", jobs[0].LastRun.Error)

	_, err = reopened.Begin(JobSweep)
	assert.NoError(t, err)
}

func TestStore_MemoryOnly(t *testing.T) {
	st, err := NewStore("")
	require.NoError(t, err)
	require.NoError(t, st.Register("noop", "@hourly", ""))
	assert.Len(t, st.Jobs(), 1)
}

func TestStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewStore(path)
	assert.Error(t, err)
}
