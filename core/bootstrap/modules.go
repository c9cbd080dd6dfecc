package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	coreconfig "github.com/m3rciful/stickerbot/core/config"
	"github.com/m3rciful/stickerbot/core/event"
	"github.com/m3rciful/stickerbot/core/i18n"
	"github.com/m3rciful/stickerbot/core/logger"
	"github.com/m3rciful/stickerbot/core/middleware"
	"github.com/m3rciful/stickerbot/core/pipeline"
	"github.com/m3rciful/stickerbot/core/ratelimit"
	"github.com/m3rciful/stickerbot/core/scene"
	"github.com/m3rciful/stickerbot/core/session"
	coretelegram "github.com/m3rciful/stickerbot/core/telegram"
)

// EscapeCommands always leave an active scene.
var EscapeCommands = []string{"/cancel", "/start"}

// Wiring is what feature modules register their handlers and scenes into.
type Wiring struct {
	Config   *coreconfig.Config
	Registry *coretelegram.Registry
	Scenes   *scene.Engine
	// PublicPack is the narrow limiter for edits of shared packs.
	PublicPack *ratelimit.Limiter
}

// Seeder loads reference data before modules are installed.
type Seeder interface {
	Seed(ctx context.Context) error
}

// SeederFunc adapts a bare function to the Seeder interface.
type SeederFunc func(ctx context.Context) error

// Seed executes the underlying function.
func (f SeederFunc) Seed(ctx context.Context) error {
	return f(ctx)
}

// Module installs a feature set.
type Module interface {
	Install(ctx context.Context, w *Wiring) error
}

// ModuleFunc adapts a function to the Module interface.
type ModuleFunc func(ctx context.Context, w *Wiring) error

// Install executes the underlying function.
func (f ModuleFunc) Install(ctx context.Context, w *Wiring) error {
	return f(ctx, w)
}

// Modules groups optional bootstrapping hooks for seeding and feature installation.
type Modules struct {
	Seeders  []Seeder
	Features []Module
}

// AssembleOptions are the inputs of Assemble besides the modules.
type AssembleOptions struct {
	Config     *coreconfig.Config
	Store      session.Store
	Translator i18n.Translator

	// Contain overrides the error boundary settings (incident sink, notice key).
	Contain middleware.ContainOptions
	// OnAdminReject runs when a non-admin calls an admin-only command.
	OnAdminReject pipeline.Handler
}

// Assembly is the composed dispatch side of a bot.
type Assembly struct {
	Wiring     *Wiring
	Router     *pipeline.Router
	Dispatcher *pipeline.Dispatcher
}

// RunOptions returns the options RunTelegram needs for this assembly.
func (a *Assembly) RunOptions() coretelegram.RunOptions {
	return coretelegram.RunOptions{
		Config:     a.Wiring.Config,
		Registry:   a.Wiring.Registry,
		Dispatcher: a.Dispatcher,
	}
}

// Assemble runs seeders, installs feature modules and builds the dispatcher
// around the resulting routes.
func Assemble(ctx context.Context, opts AssembleOptions, mods Modules) (*Assembly, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bootstrap: nil session store provided")
	}

	w := &Wiring{
		Config:     cfg,
		Registry:   coretelegram.NewRegistry(),
		Scenes:     scene.NewEngine(scene.WithTTL(cfg.Session.SceneTTL()), scene.WithEscapes(EscapeCommands...)),
		PublicPack: ratelimit.New(cfg.RateLimit.PublicPack.Limit, cfg.RateLimit.PublicPack.Window()),
	}

	for _, s := range mods.Seeders {
		if err := s.Seed(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap: seed failed: %w", err)
		}
	}
	for _, m := range mods.Features {
		if err := m.Install(ctx, w); err != nil {
			return nil, fmt.Errorf("bootstrap: module install failed: %w", err)
		}
	}

	router := pipeline.NewRouter()
	admin := middleware.AdminOptions{AdminID: cfg.Telegram.AdminID, OnReject: opts.OnAdminReject}
	if err := w.Registry.Mount(router, admin); err != nil {
		return nil, fmt.Errorf("bootstrap: route mount failed: %w", err)
	}

	d, err := middleware.NewDispatcher(middleware.Options{
		Ignore:       kinds(cfg.IgnoreUpdates),
		Contain:      opts.Contain,
		Translator:   opts.Translator,
		Limiter:      ratelimit.New(cfg.RateLimit.Global.Limit, cfg.RateLimit.Global.Window()),
		LimitExclude: kinds(cfg.RateLimit.ExcludeUpdates),
		Store:        opts.Store,
		Resolver:     session.Resolver{UserPrefix: cfg.Session.UserPrefix},
		Scenes:       w.Scenes,
		Router:       router,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: dispatcher init failed: %w", err)
	}

	logger.Info(ctx, "pipeline", "chain.ready",
		slog.String("stages", fmt.Sprint(d.Stages())),
		slog.Int("commands", len(w.Registry.Commands())),
		slog.Int("callbacks", len(w.Registry.ListCallbacks())),
		slog.Int("scenes", len(w.Scenes.IDs())),
	)
	return &Assembly{Wiring: w, Router: router, Dispatcher: d}, nil
}

func kinds(values []string) []event.Kind {
	out := make([]event.Kind, 0, len(values))
	for _, v := range values {
		out = append(out, event.ParseKind(v))
	}
	return out
}
