package concurrency

import (
	"sync"
	"time"
)

type userLock struct {
	mu       sync.Mutex
	holders  int
	lastUsed time.Time
}

// UserLocks serializes turns per user. Entries nobody holds or waits on can
// be dropped with Sweep.
type UserLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
	now   func() time.Time
}

func NewUserLocks() *UserLocks {
	return &UserLocks{
		locks: make(map[string]*userLock),
		now:   time.Now,
	}
}

func (m *UserLocks) Lock(userID string) {
	m.mu.Lock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = &userLock{}
		m.locks[userID] = lock
	}
	lock.holders++
	m.mu.Unlock()
	lock.mu.Lock()
}

func (m *UserLocks) Unlock(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[userID]
	if !ok {
		return
	}
	lock.holders--
	lock.lastUsed = m.now()
	lock.mu.Unlock()
}

// Sweep removes locks idle for longer than idle and reports how many went.
func (m *UserLocks) Sweep(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-idle)
	removed := 0
	for id, lock := range m.locks {
		if lock.holders == 0 && lock.lastUsed.Before(cutoff) {
			delete(m.locks, id)
			removed++
		}
	}
	return removed
}

func (m *UserLocks) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
