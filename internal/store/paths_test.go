package store

import (
	"path/filepath"
	"testing"
)

func TestResolveDataDir_ExpandsHomeShortcut(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ResolveDataDir("~/.kimi")
	if err != nil {
		t.Fatalf("resolve data dir: %v", err)
	}
	if want := filepath.Join(home, ".kimi"); got != want {
		t.Fatalf("path mismatch: got %q want %q", got, want)
	}

	got, err = ResolveDataDir("  ")
	if err != nil {
		t.Fatalf("resolve default data dir: %v", err)
	}
	if want := filepath.Join(home, ".kimi"); got != want {
		t.Fatalf("default mismatch: got %q want %q", got, want)
	}
}

func TestLayout(t *testing.T) {
	dir := filepath.Join("var", "kimi")
	if got := LockPath(dir); got != filepath.Join(dir, "kimi.lock") {
		t.Fatalf("lock path = %q", got)
	}
	if got := JobLogPath(dir); got != filepath.Join(dir, "scheduler", "jobs.json") {
		t.Fatalf("job log path = %q", got)
	}
	if got := DeliveriesPath(dir); got != filepath.Join(dir, "deliveries.json") {
		t.Fatalf("deliveries path = %q", got)
	}
}
