package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Nell373/linebot-ai/internal/config"

	"github.com/gofrs/flock"
)

func shortLockConfig(timeout time.Duration) *FileLockConfig {
	return &FileLockConfig{
		LockTimeout: timeout,
		LockRetry:   10 * time.Millisecond,
	}
}

func TestNewFileLock(t *testing.T) {
	dir := t.TempDir()

	lock, err := NewFileLock(context.Background(), "daemon", dir, nil)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if !lock.IsLocked() {
		t.Error("Expected lock to be held")
	}
	if lock.Path() != LockPath(dir) {
		t.Errorf("lock path = %q, want %q", lock.Path(), LockPath(dir))
	}
	if _, err := os.Stat(lock.Path()); err != nil {
		t.Errorf("lock file missing: %v", err)
	}

	lock.Unlock()
	if lock.IsLocked() {
		t.Error("Expected lock to be released after Unlock()")
	}
	if lock.HeldDuration() != 0 {
		t.Error("Expected zero held duration after Unlock()")
	}
}

func TestFileLockCreatesDataDir(t *testing.T) {
	dir := t.TempDir() + "/nested/data"

	lock, err := NewFileLock(context.Background(), "daemon", dir, shortLockConfig(time.Second))
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Unlock()

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("data dir not created: %v", err)
	}
}

func TestFileLockSecondInstanceTimesOut(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileLock(context.Background(), "first", dir, nil)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer first.Unlock()

	start := time.Now()
	_, err = NewFileLock(context.Background(), "second", dir, shortLockConfig(100*time.Millisecond))
	if err == nil {
		t.Fatal("Expected second lock to fail")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("second lock waited %v", elapsed)
	}
}

func TestFileLockRetryAcquiresAfterRelease(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileLock(context.Background(), "first", dir, nil)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		first.Unlock()
	}()

	second, err := NewFileLock(context.Background(), "second", dir, shortLockConfig(2*time.Second))
	if err != nil {
		t.Fatalf("Expected retry to acquire lock: %v", err)
	}
	second.Unlock()
}

func TestFileLockDoubleUnlock(t *testing.T) {
	lock, err := NewFileLock(context.Background(), "daemon", t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	lock.Unlock()
	lock.Unlock()
}

func TestFileLockHeldDuration(t *testing.T) {
	lock, err := NewFileLock(context.Background(), "daemon", t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Unlock()

	time.Sleep(10 * time.Millisecond)
	if lock.HeldDuration() < 10*time.Millisecond {
		t.Errorf("held duration = %v", lock.HeldDuration())
	}
}

func TestFileLockConcurrentAcquire(t *testing.T) {
	dir := t.TempDir()

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := NewFileLock(context.Background(), "racer", dir, shortLockConfig(50*time.Millisecond))
			if err != nil {
				return
			}
			mu.Lock()
			acquired++
			mu.Unlock()
			time.Sleep(200 * time.Millisecond)
			lock.Unlock()
		}()
	}
	wg.Wait()

	if acquired < 1 {
		t.Fatalf("expected at least one winner, got %d", acquired)
	}
}

func TestNewFileLockConfig(t *testing.T) {
	cfg, err := NewFileLockConfig(config.DaemonConfig{LockTimeout: "2s", LockRetry: "5ms"})
	if err != nil {
		t.Fatalf("parse lock config: %v", err)
	}
	if cfg.LockTimeout != 2*time.Second || cfg.LockRetry != 5*time.Millisecond {
		t.Fatalf("config = %+v", cfg)
	}

	if _, err := NewFileLockConfig(config.DaemonConfig{LockTimeout: "soon"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCleanupStaleLocks(t *testing.T) {
	dir := t.TempDir()
	path := LockPath(dir)
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	if err := CleanupStaleLocks(dir, time.Minute, false); err != nil {
		t.Fatalf("cleanup without force: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("lock removed without force")
	}

	held := flock.New(path)
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("probe lock: %v", err)
	}
	if err := CleanupStaleLocks(dir, time.Minute, true); err == nil {
		t.Fatal("expected held lock to be kept")
	}
	held.Unlock()

	if err := CleanupStaleLocks(dir, time.Minute, true); err != nil {
		t.Fatalf("cleanup with force: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("stale lock not removed")
	}

	if err := CleanupStaleLocks(dir, time.Minute, true); err != nil {
		t.Fatalf("cleanup of missing lock: %v", err)
	}
}
