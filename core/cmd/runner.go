package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/m3rciful/stickerbot/core/buildinfo"
	coreconfig "github.com/m3rciful/stickerbot/core/config"
	"github.com/m3rciful/stickerbot/core/logger"
	coretelegram "github.com/m3rciful/stickerbot/core/telegram"
)

// ConfigCarrier exposes access to the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp is the minimal interface required to run a Telegram bot.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	// Name is the program name shown in flag usage.
	Name string
	// Args are the command line arguments without the program name; nil reads os.Args.
	Args []string

	ConfigEnvVar      string
	DefaultConfigPath string
	// EnvFiles are loaded into the environment before the config; missing files are skipped.
	EnvFiles []string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(cfg ConfigCarrier) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

// ResolveConfigPath picks the config file: --config, then the env var, then the default.
func ResolveConfigPath(opts Options) (string, error) {
	name := opts.Name
	if name == "" {
		name = "bot"
	}
	args := opts.Args
	if args == nil && len(os.Args) > 1 {
		args = os.Args[1:]
	}

	fset := pflag.NewFlagSet(name, pflag.ContinueOnError)
	configFlag := fset.StringP("config", "c", "", "path to the YAML config file")
	if err := fset.Parse(args); err != nil {
		return "", fmt.Errorf("cmd: %w", err)
	}

	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = os.Getenv(env)
	}
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}
	if cfgPath == "" {
		return "", fmt.Errorf("cmd: config path not provided via --config, %s or DefaultConfigPath", env)
	}
	return cfgPath, nil
}

// LoadEnvFiles loads dotenv files without overriding variables already set.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("cmd: load %s: %w", f, err)
		}
	}
	return nil
}

// Run loads configuration, bootstraps the Telegram app, and starts the bot runtime.
func Run(opts Options) error {
	if opts.LoadConfig == nil {
		return fmt.Errorf("cmd: LoadConfig is required")
	}
	if opts.Bootstrap == nil {
		return fmt.Errorf("cmd: Bootstrap is required")
	}

	cfgPath, err := ResolveConfigPath(opts)
	if err != nil {
		return err
	}
	if err := LoadEnvFiles(opts.EnvFiles...); err != nil {
		return err
	}

	log.Printf("loading config: %s (version %s, commit %s)", cfgPath, buildinfo.Version, buildinfo.Commit)
	cfg, err := opts.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}
	if cfg.CoreConfig() == nil {
		return fmt.Errorf("cmd: loaded config is missing core configuration")
	}

	application, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	runOpts, err := application.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options build failed: %w", err)
	}

	startedAt := time.Now()
	prevStart := runOpts.OnStart
	runOpts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if prevStart != nil {
			if err := prevStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, "app", "ready",
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}

	prevStop := runOpts.OnStop
	runOpts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, "app", "shutdown")
		if prevStop != nil {
			return prevStop(ctx, rt)
		}
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}

	return run(ctx, runOpts)
}
