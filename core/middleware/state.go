package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/stickerbot/core/i18n"
	"github.com/m3rciful/stickerbot/core/logger"
	"github.com/m3rciful/stickerbot/core/pipeline"
	"github.com/m3rciful/stickerbot/core/session"
)

const (
	releaseKey         = "session.release"
	defaultSaveTimeout = 5 * time.Second
)

// Localize attaches the translator and the client locale.
func Localize(tr i18n.Translator) pipeline.Stage {
	return pipeline.Stage{
		Name: "i18n",
		Enter: func(c *pipeline.Context) (pipeline.Signal, error) {
			c.SetTranslator(tr)
			if l := i18n.Normalize(c.Event.Locale()); l != "" {
				c.SetLocale(l)
			}
			return pipeline.Continue, nil
		},
	}
}

// SessionOptions configures the session stage.
type SessionOptions struct {
	Store    session.Store
	Resolver session.Resolver

	// Locker serializes events of one key from load to save. Nil creates one.
	Locker *session.Locker

	// SaveTimeout bounds Save; it is detached from event cancellation.
	SaveTimeout time.Duration

	Now func() time.Time
}

// Session checks the session of the event's key out of the store and saves
// it back in Finally, holding the key lock in between. Events without a
// resolvable key continue with no session, so session-dependent stages skip.
func Session(opts SessionOptions) pipeline.Stage {
	if opts.Locker == nil {
		opts.Locker = session.NewLocker()
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = defaultSaveTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return pipeline.Stage{
		Name: "session",
		Enter: func(c *pipeline.Context) (pipeline.Signal, error) {
			key, ok := opts.Resolver.Resolve(c.Event.Origin)
			if !ok {
				return pipeline.Continue, nil
			}
			release, err := opts.Locker.Lock(c.Context(), key)
			if err != nil {
				return pipeline.Halt, err
			}
			// Finally only releases stages that were entered; a failing or
			// panicking Load must not keep the key locked.
			checkedOut := false
			defer func() {
				if !checkedOut {
					release()
				}
			}()
			s, err := opts.Store.Load(c.Context(), key)
			if err != nil {
				return pipeline.Halt, err
			}
			s.Refresh(c.Event.Sender, opts.Now())
			c.Key = key
			c.Session = s
			c.Set(releaseKey, release)
			checkedOut = true
			c.SetLocale(i18n.Normalize(s.Locale()))
			c.SetContext(logger.WithSessionKey(c.Context(), string(key)))
			return pipeline.Continue, nil
		},
		Finally: func(c *pipeline.Context) error {
			release, _ := c.Get(releaseKey).(func())
			if release == nil {
				return nil
			}
			defer release()
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Context()), opts.SaveTimeout)
			defer cancel()
			start := time.Now()
			if err := opts.Store.Save(ctx, c.Key, c.Session); err != nil {
				return err
			}
			if logger.ShouldSampleDebug() {
				logger.Debug(c.Context(), "session", "session.saved",
					slog.String("status", "ok"),
					slog.Duration("duration", logger.Took(start)),
				)
			}
			return nil
		},
	}
}
