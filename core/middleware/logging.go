package middleware

import (
	"context"
	"log/slog"
	"reflect"
	"strings"

	"github.com/m3rciful/stickerbot/core/event"
	"github.com/m3rciful/stickerbot/core/logger"
	"github.com/m3rciful/stickerbot/core/pipeline"
)

// requestContext enriches the event context with the correlation id and
// update identifiers so every downstream log line carries them.
func requestContext(c *pipeline.Context) context.Context {
	ev := c.Event
	ctx := c.Context()
	rid := logger.BuildRID(ev.ID, ev.Origin.ChatID, ev.Origin.SenderID)
	ctx = logger.WithRID(ctx, rid)
	ctx = logger.WithUpdateMeta(ctx, ev.ID, ev.Origin.SenderID, ev.Origin.ChatID)
	ctx = logger.WithLogger(ctx, logger.Component("pipeline"))
	return ctx
}

// logReceived writes a sampled debug line per update.
func logReceived(c *pipeline.Context) {
	if !logger.ShouldSampleDebug() {
		return
	}
	ev := c.Event
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("kind", string(ev.Kind)),
	}
	if ev.Origin.ChatType != "" {
		attrs = append(attrs, slog.String("chat_type", ev.Origin.ChatType))
	}
	if ev.Sender != nil {
		if ev.Sender.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(ev.Sender.Username, 64)))
		}
		if ev.Sender.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", ev.Sender.LanguageCode))
		}
	}
	switch ev.Kind {
	case event.KindCallbackQuery:
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(ev.Data, 256)))
	case event.KindInlineQuery:
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(ev.Query, 256)))
	default:
		if ev.Text != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(ev.Text, 256)))
		}
	}
	logger.Debug(c.Context(), "pipeline", "update.received", attrs...)
}

// logHandled writes the per-update summary once the chain has unwound.
func logHandled(c *pipeline.Context, errs []error) {
	status, outcome := "ok", "ok"
	if len(errs) > 0 {
		status, outcome = "fail", "fail"
	} else if c.HaltedBy() == "ratelimit" {
		status, outcome = "rate_limited", "rate_limited"
	}
	route := c.Route()
	if route == "" {
		route = "none"
	}
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("kind", string(c.Event.Kind)),
		slog.String("route", route),
		slog.String("outcome", outcome),
		slog.Int("messages", c.Sent()),
		slog.Duration("duration", logger.Took(c.Started())),
	}
	if c.Batch != nil {
		attrs = append(attrs, slog.Int("acks", c.Batch.Appended()))
	}
	if halted := c.HaltedBy(); halted != "" {
		attrs = append(attrs, slog.String("stage", halted))
	}
	if len(errs) > 0 {
		attrs = append(attrs,
			slog.Int("count", len(errs)),
			slog.String("err_code", deriveErrorCode(errs[0])),
		)
	}
	logger.Info(c.Context(), "pipeline", "update.handled", attrs...)
}

// deriveErrorCode returns a stable upper-case code for err: its Code() when
// any error in the chain has one, otherwise the innermost type name.
func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	type coder interface{ Code() string }
	for e := err; e != nil; {
		if c, ok := e.(coder); ok {
			if code := strings.TrimSpace(c.Code()); code != "" {
				return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
			}
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		next := u.Unwrap()
		if next == nil {
			break
		}
		e = next
		err = e
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(strings.ReplaceAll(t.Name(), " ", "_"))
	}
	return "UNKNOWN_ERROR"
}
