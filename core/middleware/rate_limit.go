package middleware

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/stickerbot/core/event"
	"github.com/m3rciful/stickerbot/core/logger"
	"github.com/m3rciful/stickerbot/core/pipeline"
	"github.com/m3rciful/stickerbot/core/ratelimit"
	"github.com/m3rciful/stickerbot/core/session"
)

// DefaultLimitNotice is the translation key of the throttle notice.
const DefaultLimitNotice = "ratelimit"

// GlobalRateLimit admits events per sender. Rejected events get at most one
// notice per window and stop the chain. Events without a sender and the
// excluded kinds pass untouched.
func GlobalRateLimit(l *ratelimit.Limiter, noticeKey string, exclude ...event.Kind) pipeline.Stage {
	if noticeKey == "" {
		noticeKey = DefaultLimitNotice
	}
	skip := make(map[event.Kind]struct{}, len(exclude))
	for _, k := range exclude {
		skip[k] = struct{}{}
	}
	return pipeline.Stage{
		Name: "ratelimit",
		Enter: func(c *pipeline.Context) (pipeline.Signal, error) {
			if l == nil || !l.Enabled() || !c.Event.Origin.HasSender() {
				return pipeline.Continue, nil
			}
			if _, ok := skip[c.Event.Kind]; ok {
				return pipeline.Continue, nil
			}
			key := strconv.FormatInt(c.Event.Origin.SenderID, 10)
			if admitted(c, l, "global", key, noticeKey) {
				return pipeline.Continue, nil
			}
			return pipeline.Halt, nil
		},
	}
}

// PackTarget returns the pack an event changes and whether there is one.
type PackTarget func(c *pipeline.Context) (session.PackRef, bool)

// SelectedPack targets the pack selected in the session.
func SelectedPack(c *pipeline.Context) (session.PackRef, bool) {
	if c.Session == nil || c.Session.Pack.Name == "" {
		return session.PackRef{}, false
	}
	return c.Session.Pack, true
}

// PublicPackLimit is a router gate throttling changes to the selected pack
// when it is public. Private packs pass untouched.
func PublicPackLimit(l *ratelimit.Limiter, noticeKey string) pipeline.Gate {
	return PackLimit(l, noticeKey, SelectedPack)
}

// PackLimit throttles changes to the public pack returned by target, keyed
// by sender and pack. Handlers that name the pack in their payload pass a
// target reading it from there instead of the session.
func PackLimit(l *ratelimit.Limiter, noticeKey string, target PackTarget) pipeline.Gate {
	if noticeKey == "" {
		noticeKey = DefaultLimitNotice
	}
	if target == nil {
		target = SelectedPack
	}
	return func(c *pipeline.Context) (bool, error) {
		if l == nil || !l.Enabled() {
			return true, nil
		}
		ref, ok := target(c)
		if !ok || !ref.Public {
			return true, nil
		}
		key := strconv.FormatInt(c.Event.Origin.SenderID, 10) + ":" + strings.ToLower(ref.Name)
		return admitted(c, l, "public_pack", key, noticeKey), nil
	}
}

func admitted(c *pipeline.Context, l *ratelimit.Limiter, scope, key, noticeKey string) bool {
	d := l.Take(key)
	if d.Allowed {
		return true
	}
	logger.Warn(c.Context(), "ratelimit", "ratelimit.rejected",
		slog.String("status", "rate_limited"),
		slog.String("op", scope),
		slog.Int("limit", l.Limit()),
		slog.Int64("window_ms", l.Window().Milliseconds()),
		slog.Duration("retry_after", d.RetryAfter),
		slog.Bool("notice", d.Notify),
	)
	if d.Notify && c.Event.Origin.HasChat() {
		if err := c.Notice(noticeKey); err != nil {
			logger.Warn(c.Context(), "ratelimit", "ratelimit.notice_failed",
				logger.Err(err),
			)
		}
	}
	return false
}
