// Package stickers is the sticker pack bot: its command table, callbacks,
// scenes and inline mode, installed on the core dispatch pipeline.
package stickers

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/m3rciful/stickerbot/core/bootstrap"
	"github.com/m3rciful/stickerbot/core/i18n"
	"github.com/m3rciful/stickerbot/core/logger"
	"github.com/m3rciful/stickerbot/core/pipeline"
	"github.com/m3rciful/stickerbot/core/ratelimit"
	"github.com/m3rciful/stickerbot/core/scene"
	"github.com/m3rciful/stickerbot/core/session"
	coretelegram "github.com/m3rciful/stickerbot/core/telegram"
	"github.com/m3rciful/stickerbot/core/telegram/sender"
)

//go:embed locales/*.yaml
var localesFS embed.FS

// LoadTranslations returns the catalogs from dir, or the embedded ones when dir is empty.
func LoadTranslations(dir, fallback string) (*i18n.Catalog, error) {
	if strings.TrimSpace(dir) != "" {
		return i18n.LoadDir(dir, fallback)
	}
	return i18n.LoadFS(localesFS, "locales", fallback)
}

// App is the sticker bot.
type App struct {
	cfg     *Config
	env     Env
	catalog Catalog
	tr      *i18n.Catalog
	store   session.Store
	infra   *bootstrap.Result

	scenes      *scene.Engine
	publicLimit *ratelimit.Limiter
	queue       atomic.Pointer[sender.Queue]
}

// Options are the collaborators of an App. Zero fields get defaults.
type Options struct {
	Env        Env
	Catalog    Catalog
	Translator *i18n.Catalog
	Store      session.Store
	// Infra is closed when the bot stops.
	Infra *bootstrap.Result
}

// New builds an App over an opened session store.
func New(cfg *Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("stickers: nil config")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("stickers: nil session store")
	}
	if opts.Env.StartedAt.IsZero() {
		opts.Env.StartedAt = time.Now()
	}
	if opts.Catalog == nil {
		opts.Catalog = NewMemoryCatalog()
	}
	if opts.Translator == nil {
		tr, err := LoadTranslations(cfg.I18n.Dir, cfg.I18n.DefaultLocale)
		if err != nil {
			return nil, err
		}
		opts.Translator = tr
	}
	return &App{
		cfg:     cfg,
		env:     opts.Env,
		catalog: opts.Catalog,
		tr:      opts.Translator,
		store:   opts.Store,
		infra:   opts.Infra,
	}, nil
}

// Bootstrap initializes logging and the session store, then builds the App.
func Bootstrap(cfg *Config, env Env) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{Config: &cfg.Config, Database: cfg.Database})
	if err != nil {
		return nil, err
	}
	app, err := New(cfg, Options{Env: env, Store: res.Store, Infra: res})
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	return app, nil
}

// Assemble installs the sticker features and returns the composed pipeline.
func (a *App) Assemble(ctx context.Context) (*bootstrap.Assembly, error) {
	return bootstrap.Assemble(ctx, bootstrap.AssembleOptions{
		Config:        &a.cfg.Config,
		Store:         a.store,
		Translator:    a.tr,
		OnAdminReject: a.adminDenied,
	}, bootstrap.Modules{
		Seeders:  []bootstrap.Seeder{bootstrap.SeederFunc(a.seedPublicPacks)},
		Features: []bootstrap.Module{bootstrap.ModuleFunc(a.install)},
	})
}

// TelegramRunOptions satisfies cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	asm, err := a.Assemble(context.Background())
	if err != nil {
		return coretelegram.RunOptions{}, err
	}
	opts := asm.RunOptions()
	opts.AllowedUpdates = []string{"message", "edited_message", "callback_query", "inline_query", "chosen_inline_result"}
	opts.OnStart = func(_ context.Context, rt coretelegram.Runtime) error {
		a.queue.Store(rt.Queue)
		return nil
	}
	opts.OnStop = func(ctx context.Context, _ coretelegram.Runtime) error {
		if a.infra == nil {
			return nil
		}
		if err := a.infra.Close(); err != nil {
			logger.Warn(ctx, "app", "infra.close_failed", logger.Err(err))
		}
		return nil
	}
	return opts, nil
}

// seedPublicPacks registers the configured public packs, owned by nobody.
func (a *App) seedPublicPacks(ctx context.Context) error {
	for _, name := range a.cfg.Stickers.PublicPacks {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := a.catalog.Pack(ctx, name); err == nil {
			continue
		}
		if err := a.catalog.Create(ctx, Pack{Name: name, Title: name, Type: TypeCommon, Public: true}); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) adminDenied(c *pipeline.Context) error {
	return c.Reply(c.T("cmd.admin.denied"))
}
