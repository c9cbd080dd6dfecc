package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/stickerbot/core/event"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// Workers bounds how many updates are processed concurrently.
	Workers int          `yaml:"workers" envconfig:"TELEGRAM_WORKERS"`
	Sender  SenderConfig `yaml:"sender"`
}

// SenderConfig tunes the asynchronous outbound queue.
type SenderConfig struct {
	QueueSize  int `yaml:"queue_size" envconfig:"TELEGRAM_SENDER_QUEUE_SIZE"`
	Workers    int `yaml:"workers" envconfig:"TELEGRAM_SENDER_WORKERS"`
	MaxRetries int `yaml:"max_retries" envconfig:"TELEGRAM_SENDER_MAX_RETRIES"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// SessionMemory keeps sessions in process memory.
	SessionMemory = "memory"
	// SessionPostgres stores sessions in the sessions table.
	SessionPostgres = "postgres"
	// SessionSQLite stores sessions in a local SQLite file.
	SessionSQLite = "sqlite"
)

// WindowConfig is a sliding window rate limit. A zero value takes the
// defaults; a negative limit disables the limiter.
type WindowConfig struct {
	Limit    int `yaml:"limit"`
	WindowMS int `yaml:"window_ms"`
}

// Window returns the window length.
func (w WindowConfig) Window() time.Duration {
	return time.Duration(w.WindowMS) * time.Millisecond
}

// RateLimitConfig holds the two limiter instances.
// Global applies to every sender; PublicPack guards edits of shared packs.
// ExcludeUpdates lists event kinds the global limiter ignores
// (e.g. "callback_query", "inline_query").
type RateLimitConfig struct {
	Global         WindowConfig `yaml:"global"`
	PublicPack     WindowConfig `yaml:"public_pack"`
	ExcludeUpdates []string     `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// SessionConfig selects the session store and scene timeouts.
type SessionConfig struct {
	Driver     string `yaml:"driver" envconfig:"SESSION_DRIVER"`
	SQLitePath string `yaml:"sqlite_path" envconfig:"SESSION_SQLITE_PATH"`
	// SceneTTLSeconds drops scenes left idle for longer; 0 disables.
	SceneTTLSeconds int    `yaml:"scene_ttl_seconds" envconfig:"SESSION_SCENE_TTL_SECONDS"`
	UserPrefix      string `yaml:"user_prefix"`
}

// SceneTTL returns the scene idle timeout.
func (s SessionConfig) SceneTTL() time.Duration {
	return time.Duration(s.SceneTTLSeconds) * time.Second
}

// I18nConfig locates translation catalogs. An empty Dir uses the embedded ones.
type I18nConfig struct {
	DefaultLocale string `yaml:"default_locale" envconfig:"I18N_DEFAULT_LOCALE"`
	Dir           string `yaml:"dir" envconfig:"I18N_DIR"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Session   SessionConfig   `yaml:"session"`
	I18n      I18nConfig      `yaml:"i18n"`
	// IgnoreUpdates lists event kinds absorbed before any processing.
	IgnoreUpdates []string `yaml:"ignore_updates" envconfig:"IGNORE_UPDATES"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode fills dst from the YAML file at path, then overlays environment variables.
// dst may be any struct; bots embed Config in their own configuration.
func Decode(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	if cfg.Telegram.Workers <= 0 {
		cfg.Telegram.Workers = 64
	}

	if err := normalizeWindow("rate_limit.global", &cfg.RateLimit.Global, 10, 1000); err != nil {
		return err
	}
	if err := normalizeWindow("rate_limit.public_pack", &cfg.RateLimit.PublicPack, 1, 60_000); err != nil {
		return err
	}
	kinds, err := normalizeKinds("rate_limit.exclude_updates", cfg.RateLimit.ExcludeUpdates)
	if err != nil {
		return err
	}
	cfg.RateLimit.ExcludeUpdates = kinds

	if cfg.IgnoreUpdates == nil {
		cfg.IgnoreUpdates = []string{
			string(event.KindChannelPost),
			string(event.KindEditedChannelPost),
			string(event.KindPoll),
		}
	}
	if cfg.IgnoreUpdates, err = normalizeKinds("ignore_updates", cfg.IgnoreUpdates); err != nil {
		return err
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Session.Driver))
	if driver == "" {
		driver = SessionMemory
	}
	switch driver {
	case SessionMemory, SessionPostgres:
	case SessionSQLite:
		if strings.TrimSpace(cfg.Session.SQLitePath) == "" {
			cfg.Session.SQLitePath = "sessions.db"
		}
	default:
		return fmt.Errorf("invalid session.driver %q; allowed: memory, postgres, sqlite", cfg.Session.Driver)
	}
	cfg.Session.Driver = driver
	if cfg.Session.SceneTTLSeconds < 0 {
		return fmt.Errorf("session.scene_ttl_seconds must be >= 0")
	}
	if strings.TrimSpace(cfg.Session.UserPrefix) == "" {
		cfg.Session.UserPrefix = "user"
	}

	if strings.TrimSpace(cfg.I18n.DefaultLocale) == "" {
		cfg.I18n.DefaultLocale = "en"
	}
	return nil
}

// normalizeWindow fills an unset window with defaults. An explicit negative
// limit disables the limiter.
func normalizeWindow(name string, w *WindowConfig, limit, windowMS int) error {
	if w.Limit < 0 {
		w.Limit = 0
		return nil
	}
	if w.Limit == 0 && w.WindowMS == 0 {
		w.Limit, w.WindowMS = limit, windowMS
		return nil
	}
	if w.Limit > 0 && w.WindowMS <= 0 {
		return fmt.Errorf("%s.window_ms must be > 0 when limit is set", name)
	}
	return nil
}

func normalizeKinds(name string, values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		k := event.ParseKind(v)
		if k == event.KindOther {
			return nil, fmt.Errorf("invalid %s value %q", name, v)
		}
		out = append(out, string(k))
	}
	return out, nil
}
