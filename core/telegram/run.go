// Package telegram adapts Telebot to the update pipeline: it polls updates,
// converts them to events and dispatches each on a bounded worker pool.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/stickerbot/core/config"
	"github.com/m3rciful/stickerbot/core/logger"
	"github.com/m3rciful/stickerbot/core/pipeline"
	"github.com/m3rciful/stickerbot/core/telegram/sender"
)

const defaultWorkers = 64

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry
	// Dispatcher runs every update; required.
	Dispatcher *pipeline.Dispatcher

	QueueOptions sender.Options
	Queue        *sender.Queue

	AllowedUpdates        []string
	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot      *tele.Bot
	Queue    *sender.Queue
	Registry *Registry
}

// RunTelegram composes and runs a Telegram bot until the provided context is
// done. In-flight updates finish before it returns.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	if opts.Dispatcher == nil {
		return fmt.Errorf("telegram: nil dispatcher provided")
	}

	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	pollerOpts := PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		AllowedUpdates:         opts.AllowedUpdates,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	}
	poller := BuildPoller(pollerOpts)

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: BuildHTTPClient(pollerOpts.PollTimeout()),
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	buildTook := time.Since(buildStart)

	queue := opts.Queue
	if queue == nil {
		qopts := opts.QueueOptions
		if qopts.QueueSize == 0 {
			qopts.QueueSize = cfg.Telegram.Sender.QueueSize
		}
		if qopts.Workers == 0 {
			qopts.Workers = cfg.Telegram.Sender.Workers
		}
		if qopts.MaxRetries == 0 {
			qopts.MaxRetries = cfg.Telegram.Sender.MaxRetries
		}
		queue = sender.New(qopts)
	}

	rt := Runtime{Bot: bot, Queue: queue, Registry: reg}

	switch p := poller.(type) {
	case *tele.Webhook:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
	default:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", "polling"),
			slog.Int("timeout_seconds", int(pollerOpts.PollTimeout()/time.Second)),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
		if !opts.DisableWebhookCleanup && strings.EqualFold(cfg.Telegram.RunMode, coreconfig.RunModeLongpoll) {
			if err := deleteWebhook(cfg.Telegram.Token, false); err != nil {
				logger.Warn(ctx, "tg", "delete_webhook",
					slog.String("status", "fail"),
					slog.String("mode", "polling"),
					logger.Err(err),
				)
			} else {
				logger.Info(ctx, "tg", "delete_webhook",
					slog.String("status", "ok"),
					slog.String("mode", "polling"),
				)
			}
		}
	}

	InitBotCommands(bot, reg)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			queue.Close()
			return err
		}
	}

	workers := cfg.Telegram.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	pump := &Pump{Bot: bot, Dispatcher: opts.Dispatcher, Queue: queue, Workers: workers}
	runErr := pump.Run(ctx, poller)

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}

	queue.Close()

	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// Pump moves updates from a poller into the dispatcher. Each update runs on
// its own goroutine, at most Workers at a time; same-key ordering is left to
// the session lock.
type Pump struct {
	Bot        *tele.Bot
	Dispatcher *pipeline.Dispatcher
	Queue      *sender.Queue
	Workers    int
	// Context builds the Telebot context of an update; defaults to Bot.NewContext.
	Context func(upd tele.Update) tele.Context
}

// Run polls until ctx is done, then waits for in-flight updates.
func (p *Pump) Run(ctx context.Context, poller tele.Poller) error {
	workers := p.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	updates := make(chan tele.Update, workers)
	stop := make(chan struct{})
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		poller.Poll(p.Bot, updates, stop)
	}()

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-pollDone:
			break loop
		case upd := <-updates:
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				logger.Warn(ctx, "tg", "update.dropped", slog.Int("update_id", upd.ID))
				break loop
			}
			wg.Add(1)
			go func(upd tele.Update) {
				defer wg.Done()
				defer func() { <-sem }()
				p.Handle(context.WithoutCancel(ctx), upd)
			}(upd)
		}
	}

	close(stop)
	dropped := 0
drain:
	for {
		select {
		case <-pollDone:
			break drain
		case <-updates:
			dropped++
		}
	}
	wg.Wait()
	logger.Info(ctx, "tg", "pump.stopped", slog.Int("count", dropped))
	return ctx.Err()
}

// Handle dispatches a single update synchronously.
func (p *Pump) Handle(ctx context.Context, upd tele.Update) *pipeline.Context {
	newContext := p.Context
	if newContext == nil {
		newContext = p.Bot.NewContext
	}
	ev := FromUpdate(upd)
	return p.Dispatcher.Dispatch(ctx, ev, NewResponder(newContext(upd), p.Queue))
}

func deleteWebhook(token string, dropPending bool) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty token")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/deleteWebhook", token)
	body := "drop_pending_updates=false"
	if dropPending {
		body = "drop_pending_updates=true"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deleteWebhook status: %s", resp.Status)
	}
	return nil
}
