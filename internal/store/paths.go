package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Nell373/linebot-ai/internal/pathutil"
)

const (
	lockFileName   = "kimi.lock"
	jobLogFileName = "jobs.json"
	deliveriesName = "deliveries.json"
)

// ResolveDataDir resolves the configured data directory. If empty, it
// falls back to ~/.kimi.
func ResolveDataDir(dataDir string) (string, error) {
	if trimmed := strings.TrimSpace(dataDir); trimmed != "" {
		return pathutil.Expand(trimmed)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kimi"), nil
}

// LockPath returns the lock file guarding dataDir.
func LockPath(dataDir string) string {
	return filepath.Join(dataDir, lockFileName)
}

// JobLogPath returns where the scheduler keeps its run log.
func JobLogPath(dataDir string) string {
	return filepath.Join(dataDir, "scheduler", jobLogFileName)
}

// DeliveriesPath returns the snapshot of recently seen platform delivery ids.
func DeliveriesPath(dataDir string) string {
	return filepath.Join(dataDir, deliveriesName)
}
