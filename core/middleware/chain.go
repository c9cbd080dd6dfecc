package middleware

import (
	"errors"
	"time"

	"github.com/m3rciful/stickerbot/core/event"
	"github.com/m3rciful/stickerbot/core/i18n"
	"github.com/m3rciful/stickerbot/core/pipeline"
	"github.com/m3rciful/stickerbot/core/ratelimit"
	"github.com/m3rciful/stickerbot/core/scene"
	"github.com/m3rciful/stickerbot/core/session"
)

// Options holds everything the standard chain is built from.
type Options struct {
	// Ignore lists event kinds absorbed before anything else.
	Ignore []event.Kind

	Contain    ContainOptions
	Translator i18n.Translator

	// Limiter is the per-sender limiter; nil disables it.
	Limiter      *ratelimit.Limiter
	LimitNotice  string
	LimitExclude []event.Kind

	Store       session.Store
	Resolver    session.Resolver
	Locker      *session.Locker
	SaveTimeout time.Duration

	Scenes *scene.Engine
	Router *pipeline.Router
}

// Chain returns the stages in the order later stages rely on:
// filter, contain, i18n, ratelimit, chat_member, session, batch, scene, router.
// Session save and batch flush run as Finally hooks of their stages, in that
// order, after descent stops for any reason.
func Chain(opts Options) ([]pipeline.Stage, error) {
	if opts.Store == nil {
		return nil, errors.New("middleware: session store is required")
	}
	if opts.Router == nil {
		return nil, errors.New("middleware: router is required")
	}
	stages := []pipeline.Stage{
		IgnoreKinds(opts.Ignore...),
		Contain(opts.Contain),
		Localize(opts.Translator),
		GlobalRateLimit(opts.Limiter, opts.LimitNotice, opts.LimitExclude...),
		ChatMemberFilter(),
		Session(SessionOptions{
			Store:       opts.Store,
			Resolver:    opts.Resolver,
			Locker:      opts.Locker,
			SaveTimeout: opts.SaveTimeout,
		}),
		Batch(),
	}
	if opts.Scenes != nil {
		stages = append(stages, Scenes(opts.Scenes))
	}
	stages = append(stages, Route(opts.Router))
	return stages, nil
}

// NewDispatcher builds a dispatcher over Chain.
func NewDispatcher(opts Options, dopts ...pipeline.Option) (*pipeline.Dispatcher, error) {
	stages, err := Chain(opts)
	if err != nil {
		return nil, err
	}
	return pipeline.New(stages, dopts...)
}
