package stickers

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`telegram:
  token: "t"
  admin_id: 7
stickers:
  bot_username: "@stikbot"
  public_packs: [community]
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.AdminID != 7 || cfg.Stickers.BotUsername != "stikbot" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Stickers.RestoreBotID != DefaultRestoreBotID {
		t.Fatalf("restore bot id = %d", cfg.Stickers.RestoreBotID)
	}
	if cfg.CoreConfig().Session.Driver != "memory" {
		t.Fatalf("driver = %q", cfg.CoreConfig().Session.Driver)
	}
}

func TestLoadConfigRequiresBotUsername(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("telegram:\n  token: t\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error")
	}
}
