// Package store owns the daemon data directory: its layout and the lock
// that keeps a second daemon from opening the same ledger and snapshots.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Nell373/linebot-ai/internal/config"

	"github.com/gofrs/flock"
)

type FileLock struct {
	fileLock   *flock.Flock
	lockPath   string
	owner      string
	acquiredAt time.Time
	mu         sync.RWMutex
}

type FileLockConfig struct {
	LockTimeout time.Duration
	LockRetry   time.Duration
}

// NewFileLockConfig parses the daemon lock settings.
func NewFileLockConfig(cfg config.DaemonConfig) (*FileLockConfig, error) {
	timeout, err := config.DurationOrDefault(cfg.LockTimeout, config.DefaultDaemonLockTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse lock timeout: %w", err)
	}
	retry, err := config.DurationOrDefault(cfg.LockRetry, config.DefaultDaemonLockRetry)
	if err != nil {
		return nil, fmt.Errorf("parse lock retry: %w", err)
	}
	return &FileLockConfig{LockTimeout: timeout, LockRetry: retry}, nil
}

func DefaultFileLockConfig() *FileLockConfig {
	cfg, _ := NewFileLockConfig(config.DaemonConfig{})
	return cfg
}

// NewFileLock takes the data directory lock, retrying until the timeout.
func NewFileLock(ctx context.Context, owner, dataDir string, cfg *FileLockConfig) (*FileLock, error) {
	if cfg == nil {
		cfg = DefaultFileLockConfig()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	lockPath := LockPath(dataDir)
	fl := &FileLock{
		fileLock: flock.New(lockPath),
		lockPath: lockPath,
		owner:    owner,
	}

	lockCtx, cancel := context.WithTimeout(ctx, cfg.LockTimeout)
	defer cancel()

	locked, err := fl.fileLock.TryLockContext(lockCtx, cfg.LockRetry)
	if err != nil && lockCtx.Err() == nil {
		return nil, fmt.Errorf("failed to attempt lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("data dir %s is locked by another instance (timeout after %v)", dataDir, cfg.LockTimeout)
	}

	fl.acquiredAt = time.Now()
	slog.Info("File lock acquired",
		"owner", owner,
		"path", lockPath,
		"acquired_at", fl.acquiredAt.Format(time.RFC3339Nano),
	)

	return fl, nil
}

func (fl *FileLock) Unlock() {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.fileLock == nil {
		slog.Warn("FileLock already unlocked", "owner", fl.owner)
		return
	}

	held := time.Since(fl.acquiredAt)
	if err := fl.fileLock.Unlock(); err != nil {
		slog.Error("Failed to release file lock", "path", fl.lockPath, "error", err)
	} else {
		slog.Info("File lock released", "owner", fl.owner, "held_duration_ms", held.Milliseconds())
	}

	fl.fileLock = nil
}

func (fl *FileLock) IsLocked() bool {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.fileLock != nil
}

func (fl *FileLock) Path() string {
	return fl.lockPath
}

func (fl *FileLock) HeldDuration() time.Duration {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	if fl.acquiredAt.IsZero() || fl.fileLock == nil {
		return 0
	}
	return time.Since(fl.acquiredAt)
}

// CleanupStaleLocks removes a lock file older than maxAge when force is set.
// flock locks die with their process, so the file only matters to tooling
// that checks for its presence.
func CleanupStaleLocks(dataDir string, maxAge time.Duration, force bool) error {
	lockPath := LockPath(dataDir)
	info, err := os.Stat(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	age := time.Since(info.ModTime())
	if age <= maxAge {
		return nil
	}
	slog.Warn("Found stale lock file", "path", lockPath, "age", age, "max_age", maxAge)
	if !force {
		return nil
	}

	// Never delete a lock somebody holds.
	probe := flock.New(lockPath)
	locked, err := probe.TryLock()
	if err != nil {
		return err
	}
	if !locked {
		return fmt.Errorf("lock %s is held by a running instance", lockPath)
	}
	defer probe.Unlock()

	if err := os.Remove(lockPath); err != nil {
		return err
	}
	slog.Info("Stale lock file removed", "path", filepath.Base(lockPath))
	return nil
}
