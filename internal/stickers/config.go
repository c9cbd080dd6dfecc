package stickers

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/stickerbot/core/config"
	coredatabase "github.com/m3rciful/stickerbot/core/database"
)

// DefaultRestoreBotID is the id of Telegram's own sticker bot; messages
// forwarded from it start the restore flow.
const DefaultRestoreBotID int64 = 429000

// FeatureConfig holds settings of the sticker features.
type FeatureConfig struct {
	BotUsername  string `yaml:"bot_username" envconfig:"BOT_USERNAME"`
	ClubURL      string `yaml:"club_url" envconfig:"CLUB_URL"`
	RestoreBotID int64  `yaml:"restore_bot_id"`
	// PublicPacks are selectable by everyone through /public.
	PublicPacks []string `yaml:"public_packs"`
}

// Config is the sticker bot configuration: the core sections inline plus
// the database and feature sections.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Stickers FeatureConfig       `yaml:"stickers"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// LoadConfig reads the YAML file at path, overlays the environment and validates.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := cfg.Stickers.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (f *FeatureConfig) normalize() error {
	f.BotUsername = strings.TrimPrefix(strings.TrimSpace(f.BotUsername), "@")
	if f.BotUsername == "" {
		return fmt.Errorf("stickers.bot_username is required")
	}
	if f.RestoreBotID == 0 {
		f.RestoreBotID = DefaultRestoreBotID
	}
	return nil
}

// Env is the immutable process context handed to handlers.
type Env struct {
	StartedAt time.Time
}
