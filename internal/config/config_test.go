package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("LINE_CHANNEL_SECRET", "")
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	// We pass nil for cmd to skip flags
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Expected default port %d, got %d", DefaultServerPort, cfg.Server.Port)
	}
	if cfg.Dedup.Window != DefaultDedupWindow {
		t.Errorf("Expected default dedup window %s, got %s", DefaultDedupWindow, cfg.Dedup.Window)
	}
	if cfg.Dedup.Retention != DefaultDedupRetention {
		t.Errorf("Expected default dedup retention %s, got %s", DefaultDedupRetention, cfg.Dedup.Retention)
	}
	if cfg.Conversation.Backend != DefaultConversationBackend {
		t.Errorf("Expected default conversation backend %s, got %s", DefaultConversationBackend, cfg.Conversation.Backend)
	}
	if cfg.Conversation.Shards != DefaultConversationShards {
		t.Errorf("Expected default shards %d, got %d", DefaultConversationShards, cfg.Conversation.Shards)
	}
	if cfg.Ledger.Backend != DefaultLedgerBackend {
		t.Errorf("Expected default ledger backend %s, got %s", DefaultLedgerBackend, cfg.Ledger.Backend)
	}
	if want := filepath.Join(home, ".kimi", "ledger.db"); cfg.Ledger.Path != want {
		t.Errorf("Expected default ledger path %s, got %s", want, cfg.Ledger.Path)
	}
	if cfg.Locale.Timezone != DefaultLocaleTimezone {
		t.Errorf("Expected default timezone %s, got %s", DefaultLocaleTimezone, cfg.Locale.Timezone)
	}
	if len(cfg.Locale.NoneSentinels) != len(DefaultNoneSentinels) {
		t.Errorf("Expected %d none sentinels, got %v", len(DefaultNoneSentinels), cfg.Locale.NoneSentinels)
	}
	if cfg.Worker.Count != DefaultWorkerCount {
		t.Errorf("Expected default worker count %d, got %d", DefaultWorkerCount, cfg.Worker.Count)
	}
	if cfg.Ingress.QueueSize != DefaultIngressQueueSize {
		t.Errorf("Expected default queue size %d, got %d", DefaultIngressQueueSize, cfg.Ingress.QueueSize)
	}
	if cfg.Maintenance.PruneSchedule != DefaultMaintenancePrune {
		t.Errorf("Expected default prune schedule %s, got %s", DefaultMaintenancePrune, cfg.Maintenance.PruneSchedule)
	}
	if cfg.Adapters.Telegram.UpdateTimeout != DefaultTelegramUpdateTimeout {
		t.Errorf("Expected default telegram update timeout %d, got %d", DefaultTelegramUpdateTimeout, cfg.Adapters.Telegram.UpdateTimeout)
	}
	if cfg.Adapters.Line.Port != DefaultLinePort {
		t.Errorf("Expected default line port %d, got %d", DefaultLinePort, cfg.Adapters.Line.Port)
	}
}

func TestLoadWithConfigFlag(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := []byte(`
server:
  port: 9090
conversation:
  backend: redis
  redis_url: redis://cache:6379/2
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("failed to load config with --config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Conversation.Backend != "redis" {
		t.Fatalf("expected redis backend, got %s", cfg.Conversation.Backend)
	}
	if cfg.Conversation.RedisURL != "redis://cache:6379/2" {
		t.Fatalf("expected redis url override, got %s", cfg.Conversation.RedisURL)
	}
}

func TestLoadWithMissingConfigFlagReturnsError(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}

	if _, err := Load(cmd); err == nil {
		t.Fatal("expected error when --config points to missing file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KIMI_LEDGER__BACKEND", "nats")
	t.Setenv("KIMI_LEDGER__NATS_URL", "nats://broker:4222")
	t.Setenv("LINE_CHANNEL_SECRET", "line-secret")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Ledger.Backend != "nats" {
		t.Fatalf("ledger backend = %q, want nats", cfg.Ledger.Backend)
	}
	if cfg.Ledger.NatsURL != "nats://broker:4222" {
		t.Fatalf("ledger nats url = %q", cfg.Ledger.NatsURL)
	}
	if cfg.Adapters.Line.ChannelSecret != "line-secret" {
		t.Fatalf("line secret not picked up from LINE_CHANNEL_SECRET")
	}
}

func TestLoad_FlagOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  log_level: warn\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	cmd.Flags().String("server.log_level", DefaultServerLogLevel, "log level")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("set config flag: %v", err)
	}
	if err := cmd.Flags().Set("server.log_level", "debug"); err != nil {
		t.Fatalf("set log level flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Fatalf("log level = %q, want debug", cfg.Server.LogLevel)
	}
}

func TestLoad_ExpandsConfiguredPaths(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	content := []byte(`
daemon:
  data_dir: ~/kimi-data
ledger:
  path: ~/kimi-data/books.db
dedup:
  snapshot_path: ~/kimi-data/dedup.json
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("set config flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if want := filepath.Join(tmpDir, "kimi-data"); cfg.Daemon.DataDir != want {
		t.Fatalf("data dir = %q, want %q", cfg.Daemon.DataDir, want)
	}
	if want := filepath.Join(tmpDir, "kimi-data", "books.db"); cfg.Ledger.Path != want {
		t.Fatalf("ledger path = %q, want %q", cfg.Ledger.Path, want)
	}
	if want := filepath.Join(tmpDir, "kimi-data", "dedup.json"); cfg.Dedup.SnapshotPath != want {
		t.Fatalf("snapshot path = %q, want %q", cfg.Dedup.SnapshotPath, want)
	}
}
