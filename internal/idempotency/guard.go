// Package idempotency drops callback events that platforms redeliver.
package idempotency

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

const (
	DefaultWindow    = 3 * time.Second
	DefaultRetention = 10 * time.Minute
)

type snapshot struct {
	Keys map[string]int64 `json:"keys"` // key -> last acceptance (unix nanos)
}

// Guard remembers when each (user, payload) pair was last accepted.
type Guard struct {
	window    time.Duration
	retention time.Duration
	now       func() time.Time
	path      string

	mu   sync.Mutex
	seen map[string]time.Time
}

type Option func(*Guard)

func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

func WithWindow(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.window = d
		}
	}
}

func WithRetention(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.retention = d
		}
	}
}

// WithSnapshot makes Load and Save read and write path.
func WithSnapshot(path string) Option {
	return func(g *Guard) { g.path = path }
}

func NewGuard(opts ...Option) *Guard {
	g := &Guard{
		window:    DefaultWindow,
		retention: DefaultRetention,
		now:       time.Now,
		seen:      make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.retention < g.window {
		g.retention = g.window
	}
	return g
}

// Key is the exact dedup key for a callback.
func Key(userID, payload string) string {
	return userID + ":" + payload
}

// ShouldProcess reports whether the callback is new. It returns false when
// the same user sent the same payload less than the window ago, and
// otherwise stamps the pair with the current time.
func (g *Guard) ShouldProcess(userID, payload string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.pruneLocked(now)

	key := Key(userID, payload)
	if last, ok := g.seen[key]; ok && now.Sub(last) < g.window {
		return false
	}
	g.seen[key] = now
	return true
}

// Forget drops the pair so the next ShouldProcess accepts it. Callers use
// it when an accepted event could not be handed on.
func (g *Guard) Forget(userID, payload string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, Key(userID, payload))
}

// Prune evicts entries older than the retention and returns the count.
func (g *Guard) Prune() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pruneLocked(g.now())
}

func (g *Guard) pruneLocked(now time.Time) int {
	count := 0
	for k, last := range g.seen {
		if now.Sub(last) > g.retention {
			delete(g.seen, k)
			count++
		}
	}
	return count
}

func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// Load restores a snapshot written by Save. A missing file is not an error.
func (g *Guard) Load() error {
	if g.path == "" {
		return nil
	}

	data, err := os.ReadFile(g.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for k, ns := range snap.Keys {
		g.seen[k] = time.Unix(0, ns)
	}
	g.pruneLocked(g.now())
	return nil
}

// Save writes the live entries to the snapshot path atomically.
func (g *Guard) Save() error {
	if g.path == "" {
		return nil
	}

	g.mu.Lock()
	snap := snapshot{Keys: make(map[string]int64, len(g.seen))}
	for k, t := range g.seen {
		snap.Keys[k] = t.UnixNano()
	}
	g.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(g.path, bytes.NewReader(data))
}
