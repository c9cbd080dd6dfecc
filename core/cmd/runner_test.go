package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	coreconfig "github.com/m3rciful/stickerbot/core/config"
	coretelegram "github.com/m3rciful/stickerbot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type app struct{}

func (app) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{}, nil
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("STICKERBOT_CONFIG", "from-env.yaml")
	cases := []struct {
		name string
		opts Options
		want string
	}{
		{"flag", Options{Args: []string{"--config", "flag.yaml"}, ConfigEnvVar: "STICKERBOT_CONFIG"}, "flag.yaml"},
		{"short flag", Options{Args: []string{"-c", "short.yaml"}}, "short.yaml"},
		{"env", Options{Args: []string{}, ConfigEnvVar: "STICKERBOT_CONFIG", DefaultConfigPath: "config.yaml"}, "from-env.yaml"},
		{"default", Options{Args: []string{}, ConfigEnvVar: "UNSET_CONFIG_VAR", DefaultConfigPath: "config.yaml"}, "config.yaml"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveConfigPath(tc.opts)
			if err != nil {
				t.Fatalf("ResolveConfigPath: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}

	if _, err := ResolveConfigPath(Options{Args: []string{}, ConfigEnvVar: "UNSET_CONFIG_VAR"}); err == nil {
		t.Fatal("expected an error without any config source")
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("STICKERBOT_TEST_VAR=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STICKERBOT_TEST_VAR", "")
	os.Unsetenv("STICKERBOT_TEST_VAR")

	if err := LoadEnvFiles(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadEnvFiles: %v", err)
	}
	if got := os.Getenv("STICKERBOT_TEST_VAR"); got != "loaded" {
		t.Fatalf("STICKERBOT_TEST_VAR = %q", got)
	}
}

func TestRunWiresHooks(t *testing.T) {
	var loaded string
	ran := false
	err := Run(Options{
		Args:           []string{"--config", "bot.yaml"},
		LoadConfig:     func(p string) (ConfigCarrier, error) { loaded = p; return carrier{cfg: &coreconfig.Config{}}, nil },
		Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return app{}, nil },
		ShutdownLogger: func() error { return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			ran = true
			if opts.OnStart == nil || opts.OnStop == nil {
				t.Fatal("lifecycle hooks not wired")
			}
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if loaded != "bot.yaml" || !ran {
		t.Fatalf("loaded = %q, ran = %v", loaded, ran)
	}
}

func TestRunRequiresCoreConfig(t *testing.T) {
	err := Run(Options{
		Args:       []string{"--config", "bot.yaml"},
		LoadConfig: func(string) (ConfigCarrier, error) { return carrier{}, nil },
		Bootstrap:  func(ConfigCarrier) (TelegramApp, error) { return app{}, nil },
	})
	if err == nil {
		t.Fatal("expected an error for a missing core config")
	}
}
