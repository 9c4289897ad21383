package scheduler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
)

type RunStatus string

const (
	StatusRunning RunStatus = "RUNNING"
	StatusDone    RunStatus = "DONE"
	StatusFailed  RunStatus = "FAILED"
)

type Run struct {
	ID         string    `json:"id"`
	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
}

type Job struct {
	ID          string `json:"id"`
	Schedule    string `json:"schedule"` // cron spec or "@every 1m"
	Description string `json:"description"`
	Runs        int    `json:"runs"`
	Failures    int    `json:"failures"`
	LastRun     *Run   `json:"last_run,omitempty"`
}

type jobFile struct {
	Jobs map[string]*Job `json:"jobs"`
}

// Store keeps the last run of every maintenance job. With a path it is
// persisted as JSON so `kimi` can report what ran before a restart.
type Store struct {
	path string
	data jobFile
	now  func() time.Time
	mu   sync.RWMutex
}

// NewStore loads path if it exists. An empty path keeps the log in memory.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path: path,
		data: jobFile{Jobs: make(map[string]*Job)},
		now:  time.Now,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(content) == 0 {
		return nil
	}
	if err := json.Unmarshal(content, &s.data); err != nil {
		return fmt.Errorf("decode job log: %w", err)
	}
	if s.data.Jobs == nil {
		s.data.Jobs = make(map[string]*Job)
	}
	return nil
}

// save writes the log; lock held by caller.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return atomic.WriteFile(s.path, bytes.NewReader(b))
}

// Register records a job, keeping its history when the id is already known.
func (s *Store) Register(id, schedule, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.data.Jobs[id]
	if !ok {
		j = &Job{ID: id}
		s.data.Jobs[id] = j
	}
	j.Schedule = schedule
	j.Description = description
	// A run left RUNNING by a crash never finishes.
	if j.LastRun != nil && j.LastRun.Status == StatusRunning {
		j.LastRun.Status = StatusFailed
		j.LastRun.Error = "interrupted"
	}
	return s.save()
}

// Begin marks a new run of id. It fails while a previous run is in flight.
func (s *Store) Begin(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.data.Jobs[id]
	if !ok {
		return "", fmt.Errorf("job not found: %s", id)
	}
	if j.LastRun != nil && j.LastRun.Status == StatusRunning {
		return "", fmt.Errorf("job %s already running as %s", id, j.LastRun.ID)
	}

	run := &Run{
		ID:        ulid.Make().String(),
		Status:    StatusRunning,
		StartedAt: s.now(),
	}
	j.LastRun = run
	return run.ID, s.save()
}

// Finish closes runID with its outcome.
func (s *Store) Finish(id, runID, result string, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.data.Jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	if j.LastRun == nil || j.LastRun.ID != runID {
		return fmt.Errorf("run mismatch for job %s", id)
	}

	j.Runs++
	j.LastRun.FinishedAt = s.now()
	j.LastRun.Result = result
	if runErr != nil {
		j.Failures++
		j.LastRun.Status = StatusFailed
		j.LastRun.Error = runErr.Error()
	} else {
		j.LastRun.Status = StatusDone
	}
	return s.save()
}

// Jobs returns copies of all jobs ordered by id.
func (s *Store) Jobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.data.Jobs))
	for _, j := range s.data.Jobs {
		cp := *j
		if j.LastRun != nil {
			run := *j.LastRun
			cp.LastRun = &run
		}
		jobs = append(jobs, cp)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].ID < jobs[k].ID })
	return jobs
}
