package conversation

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Store keeps at most one State per user. Last writer wins.
type Store interface {
	Get(ctx context.Context, userID string) (State, bool, error)
	Put(ctx context.Context, userID string, s State) error
	Clear(ctx context.Context, userID string) error
}

const defaultShards = 32

type entry struct {
	state     State
	updatedAt time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// MemoryStore is a lock-striped in-process Store. Entries do not survive
// a restart; a lost entry resets the user's flow.
type MemoryStore struct {
	shards []*shard
	now    func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithMemoryClock replaces time.Now for idle-entry bookkeeping.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

func NewMemoryStore(shards int, opts ...MemoryOption) *MemoryStore {
	if shards <= 0 {
		shards = defaultShards
	}
	m := &MemoryStore{
		shards: make([]*shard, shards),
		now:    time.Now,
	}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[string]entry)}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

func (m *MemoryStore) Get(_ context.Context, userID string) (State, bool, error) {
	sh := m.shardFor(userID)
	sh.mu.RLock()
	e, ok := sh.entries[userID]
	sh.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return e.state, true, nil
}

// Put stores s for userID. An idle state deletes the entry.
func (m *MemoryStore) Put(ctx context.Context, userID string, s State) error {
	if IsIdle(s) {
		return m.Clear(ctx, userID)
	}
	sh := m.shardFor(userID)
	sh.mu.Lock()
	sh.entries[userID] = entry{state: s, updatedAt: m.now()}
	sh.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID string) error {
	sh := m.shardFor(userID)
	sh.mu.Lock()
	delete(sh.entries, userID)
	sh.mu.Unlock()
	return nil
}

// Sweep drops entries untouched for longer than idle and returns how many
// were removed.
func (m *MemoryStore) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	removed := 0
	for _, sh := range m.shards {
		sh.mu.Lock()
		for id, e := range sh.entries {
			if e.updatedAt.Before(cutoff) {
				delete(sh.entries, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len counts live entries.
func (m *MemoryStore) Len() int {
	n := 0
	for _, sh := range m.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}
