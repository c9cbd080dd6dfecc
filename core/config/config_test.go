package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "t"}}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll || cfg.Telegram.Workers != 64 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if g := cfg.RateLimit.Global; g.Limit != 10 || g.Window() != time.Second {
		t.Fatalf("global = %+v", g)
	}
	if p := cfg.RateLimit.PublicPack; p.Limit != 1 || p.Window() != time.Minute {
		t.Fatalf("public_pack = %+v", p)
	}
	if cfg.Session.Driver != SessionMemory || cfg.Session.UserPrefix != "user" {
		t.Fatalf("session = %+v", cfg.Session)
	}
	if len(cfg.IgnoreUpdates) != 3 || cfg.IgnoreUpdates[0] != "channel_post" {
		t.Fatalf("ignore_updates = %v", cfg.IgnoreUpdates)
	}
	if cfg.I18n.DefaultLocale != "en" {
		t.Fatalf("locale = %q", cfg.I18n.DefaultLocale)
	}
}

func TestNormalizeValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no token", cfg: Config{}},
		{name: "bad run mode", cfg: Config{Telegram: TelegramConfig{Token: "t", RunMode: "push"}}},
		{name: "webhook without url", cfg: Config{Telegram: TelegramConfig{Token: "t", RunMode: "webhook"}}},
		{name: "bad driver", cfg: Config{Telegram: TelegramConfig{Token: "t"}, Session: SessionConfig{Driver: "redis"}}},
		{name: "bad exclude", cfg: Config{Telegram: TelegramConfig{Token: "t"}, RateLimit: RateLimitConfig{ExcludeUpdates: []string{"nope"}}}},
		{name: "limit without window", cfg: Config{Telegram: TelegramConfig{Token: "t"}, RateLimit: RateLimitConfig{Global: WindowConfig{Limit: 5}}}},
	}
	for _, tt := range tests {
		cfg := tt.cfg
		if err := Normalize(&cfg); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
}

func TestNormalizeKindsAndDisable(t *testing.T) {
	cfg := &Config{
		Telegram:      TelegramConfig{Token: "t", RunMode: "polling"},
		RateLimit:     RateLimitConfig{PublicPack: WindowConfig{Limit: -1}, ExcludeUpdates: []string{"Callback", " inline_query "}},
		Session:       SessionConfig{Driver: "SQLite"},
		IgnoreUpdates: []string{},
	}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	ex := cfg.RateLimit.ExcludeUpdates
	if len(ex) != 2 || ex[0] != "callback_query" || ex[1] != "inline_query" {
		t.Fatalf("exclude = %v", ex)
	}
	if cfg.RateLimit.PublicPack.Limit != 0 {
		t.Fatalf("public_pack should be disabled: %+v", cfg.RateLimit.PublicPack)
	}
	if cfg.Session.Driver != SessionSQLite || cfg.Session.SQLitePath != "sessions.db" {
		t.Fatalf("session = %+v", cfg.Session)
	}
	if len(cfg.IgnoreUpdates) != 0 {
		t.Fatalf("explicit empty ignore list must stay empty: %v", cfg.IgnoreUpdates)
	}
}

func TestLoadOverlaysEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
telegram:
  token: from-file
  workers: 8
rate_limit:
  global:
    limit: 3
    window_ms: 500
session:
  driver: memory
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("BOT_TOKEN", "from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" || cfg.Telegram.Workers != 8 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if cfg.RateLimit.Global.Limit != 3 || cfg.RateLimit.Global.WindowMS != 500 {
		t.Fatalf("global = %+v", cfg.RateLimit.Global)
	}
}
