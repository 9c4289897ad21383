package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Nell373/linebot-ai/internal/pathutil"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Adapters     AdaptersConfig     `koanf:"adapters"`
	Ingress      IngressConfig      `koanf:"ingress"`
	Worker       WorkerConfig       `koanf:"worker"`
	Conversation ConversationConfig `koanf:"conversation"`
	Dedup        DedupConfig        `koanf:"dedup"`
	Ledger       LedgerConfig       `koanf:"ledger"`
	Locale       LocaleConfig       `koanf:"locale"`
	Maintenance  MaintenanceConfig  `koanf:"maintenance"`
	Daemon       DaemonConfig       `koanf:"daemon"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

type AdaptersConfig struct {
	Line     LineConfig     `koanf:"line"`
	Slack    SlackConfig    `koanf:"slack"`
	Telegram TelegramConfig `koanf:"telegram"`
}

type LineConfig struct {
	Enabled       bool   `koanf:"enabled"`
	Port          int    `koanf:"port"`
	ChannelSecret string `koanf:"channel_secret"`
	ChannelToken  string `koanf:"channel_token"`
}

type SlackConfig struct {
	Enabled       bool   `koanf:"enabled"`
	Port          int    `koanf:"port"`
	SigningSecret string `koanf:"signing_secret"`
	BotToken      string `koanf:"bot_token"`
}

type TelegramConfig struct {
	Enabled       bool   `koanf:"enabled"`
	BotToken      string `koanf:"bot_token"`
	UpdateTimeout int    `koanf:"update_timeout"`
}

type IngressConfig struct {
	QueueSize     int    `koanf:"queue_size"`
	SubmitTimeout string `koanf:"submit_timeout"`
	DrainTimeout  string `koanf:"drain_timeout"`
}

type WorkerConfig struct {
	Count           int    `koanf:"count"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
	SendTimeout     string `koanf:"send_timeout"`
}

// ConversationConfig selects where in-flight conversation state lives.
type ConversationConfig struct {
	Backend  string `koanf:"backend"` // memory | redis
	Shards   int    `koanf:"shards"`
	RedisURL string `koanf:"redis_url"`
	TTL      string `koanf:"ttl"`
}

type DedupConfig struct {
	Window       string `koanf:"window"`
	Retention    string `koanf:"retention"`
	SnapshotPath string `koanf:"snapshot_path"`
}

// LedgerConfig selects the command executor. "sqlite" applies commands
// in-process; "nats" forwards them to a `kimi ledger serve` instance.
type LedgerConfig struct {
	Backend        string `koanf:"backend"` // sqlite | nats
	Path           string `koanf:"path"`
	NatsURL        string `koanf:"nats_url"`
	Subject        string `koanf:"subject"`
	RequestTimeout string `koanf:"request_timeout"`
}

type LocaleConfig struct {
	Timezone      string   `koanf:"timezone"`
	NoneSentinels []string `koanf:"none_sentinels"`
}

type MaintenanceConfig struct {
	PruneSchedule string `koanf:"prune_schedule"`
	SweepSchedule string `koanf:"sweep_schedule"`
}

type DaemonConfig struct {
	ShutdownTimeout     string `koanf:"shutdown_timeout"`
	HealthCheckInterval string `koanf:"health_check_interval"`
	DataDir             string `koanf:"data_dir"`
	LockTimeout         string `koanf:"lock_timeout"`
	LockRetry           string `koanf:"lock_retry"`
}

const (
	DefaultServerPort            = 8080
	DefaultServerLogLevel        = "info"
	DefaultServerReadTimeout     = "10s"
	DefaultServerWriteTimeout    = "10s"
	DefaultServerIdleTimeout     = "60s"
	DefaultServerShutdownTimeout = "5s"
	DefaultLinePort              = 5000
	DefaultSlackPort             = 3000
	DefaultTelegramUpdateTimeout = 60
	DefaultIngressQueueSize      = 256
	DefaultIngressSubmitTimeout  = "500ms"
	DefaultIngressDrainTimeout   = "5s"
	DefaultWorkerCount           = 4
	DefaultWorkerShutdownTimeout = "30s"
	DefaultWorkerSendTimeout     = "10s"
	DefaultConversationBackend   = "memory"
	DefaultConversationShards    = 32
	DefaultConversationRedisURL  = "redis://localhost:6379/0"
	DefaultConversationTTL       = "30m"
	DefaultDedupWindow           = "3s"
	DefaultDedupRetention        = "10m"
	DefaultLedgerBackend         = "sqlite"
	DefaultLedgerNatsURL         = "nats://localhost:4222"
	DefaultLedgerSubject         = "kimi.ledger"
	DefaultLedgerRequestTimeout  = "5s"
	DefaultLocaleTimezone        = "Asia/Taipei"
	DefaultMaintenancePrune      = "@every 1m"
	DefaultMaintenanceSweep      = "@every 10m"
	DefaultDaemonShutdownTimeout = "30s"
	DefaultDaemonHealthInterval  = "30s"
	DefaultDaemonLockTimeout     = "10s"
	DefaultDaemonLockRetry       = "100ms"
)

// DefaultNoneSentinels are note answers that mean "no note".
var DefaultNoneSentinels = []string{"無", "没有", "沒有", "none", "-"}

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	dataDir := filepath.Join(os.Getenv("HOME"), ".kimi")

	defaults := map[string]interface{}{
		"server.port":                      DefaultServerPort,
		"server.log_level":                 DefaultServerLogLevel,
		"server.read_timeout":              DefaultServerReadTimeout,
		"server.write_timeout":             DefaultServerWriteTimeout,
		"server.idle_timeout":              DefaultServerIdleTimeout,
		"server.shutdown_timeout":          DefaultServerShutdownTimeout,
		"adapters.line.port":               DefaultLinePort,
		"adapters.slack.port":              DefaultSlackPort,
		"adapters.telegram.update_timeout": DefaultTelegramUpdateTimeout,
		"ingress.queue_size":               DefaultIngressQueueSize,
		"ingress.submit_timeout":           DefaultIngressSubmitTimeout,
		"ingress.drain_timeout":            DefaultIngressDrainTimeout,
		"worker.count":                     DefaultWorkerCount,
		"worker.shutdown_timeout":          DefaultWorkerShutdownTimeout,
		"worker.send_timeout":              DefaultWorkerSendTimeout,
		"conversation.backend":             DefaultConversationBackend,
		"conversation.shards":              DefaultConversationShards,
		"conversation.redis_url":           DefaultConversationRedisURL,
		"conversation.ttl":                 DefaultConversationTTL,
		"dedup.window":                     DefaultDedupWindow,
		"dedup.retention":                  DefaultDedupRetention,
		"dedup.snapshot_path":              filepath.Join(dataDir, "dedup.json"),
		"ledger.backend":                   DefaultLedgerBackend,
		"ledger.path":                      filepath.Join(dataDir, "ledger.db"),
		"ledger.nats_url":                  DefaultLedgerNatsURL,
		"ledger.subject":                   DefaultLedgerSubject,
		"ledger.request_timeout":           DefaultLedgerRequestTimeout,
		"locale.timezone":                  DefaultLocaleTimezone,
		"locale.none_sentinels":            DefaultNoneSentinels,
		"maintenance.prune_schedule":       DefaultMaintenancePrune,
		"maintenance.sweep_schedule":       DefaultMaintenanceSweep,
		"daemon.shutdown_timeout":          DefaultDaemonShutdownTimeout,
		"daemon.health_check_interval":     DefaultDaemonHealthInterval,
		"daemon.data_dir":                  dataDir,
		"daemon.lock_timeout":              DefaultDaemonLockTimeout,
		"daemon.lock_retry":                DefaultDaemonLockRetry,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".kimi", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// KIMI_LEDGER__NATS_URL -> ledger.nats_url; a single underscore stays inside the key.
	k.Load(env.Provider("KIMI_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "KIMI_")), "__", ".", -1)
	}), nil)

	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	// Platform credentials under their conventional names
	if cfg.Adapters.Line.ChannelSecret == "" {
		cfg.Adapters.Line.ChannelSecret = os.Getenv("LINE_CHANNEL_SECRET")
	}
	if cfg.Adapters.Line.ChannelToken == "" {
		cfg.Adapters.Line.ChannelToken = os.Getenv("LINE_CHANNEL_ACCESS_TOKEN")
	}
	if cfg.Adapters.Telegram.BotToken == "" {
		cfg.Adapters.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}

	return &cfg, nil
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	for _, field := range []*string{&cfg.Daemon.DataDir, &cfg.Ledger.Path, &cfg.Dedup.SnapshotPath} {
		expanded, err := expandConfiguredPath(*field)
		if err != nil {
			return err
		}
		if expanded != "" {
			*field = expanded
		}
	}

	return nil
}

func expandConfiguredPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	expanded, err := pathutil.Expand(trimmed)
	if err != nil {
		return "", err
	}
	return expanded, nil
}
