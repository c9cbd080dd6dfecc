package logger

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
)

type ctxKey uint8

const (
	loggerKey ctxKey = iota
	metaKey
)

// updateMeta identifies the update a context belongs to. It is stored by
// value and copied on every change, so a derived context never mutates the
// meta seen by its parent.
type updateMeta struct {
	rid        string
	updateID   int
	userID     int64
	chatID     int64
	sessionKey string
	route      string
}

func metaFrom(ctx context.Context) updateMeta {
	if ctx == nil {
		return updateMeta{}
	}
	m, _ := ctx.Value(metaKey).(updateMeta)
	return m
}

func withMeta(ctx context.Context, edit func(*updateMeta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	edit(&m)
	return context.WithValue(ctx, metaKey, m)
}

// fill adds the meta fields a record does not already carry.
func (m updateMeta) fill(rec record) {
	rec.setDefault("rid", m.rid)
	rec.setDefault("session_key", m.sessionKey)
	rec.setDefault("route", m.route)
	if m.updateID != 0 {
		rec.setDefault("update_id", int64(m.updateID))
	}
	if m.userID != 0 {
		rec.setDefault("user_id", m.userID)
	}
	if m.chatID != 0 {
		rec.setDefault("chat_id", m.chatID)
	}
}

// WithLogger stores log in ctx for FromContext.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger stored by WithLogger, or the base logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
			return l
		}
	}
	return base
}

// WithRID attaches the update correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *updateMeta) { m.rid = rid })
}

// WithUpdateMeta attaches the update, user and chat identifiers.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *updateMeta) {
		m.updateID, m.userID, m.chatID = updateID, userID, chatID
	})
}

// WithSessionKey attaches the session key of the event being processed.
func WithSessionKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return withMeta(ctx, func(m *updateMeta) { m.sessionKey = key })
}

// WithRoute attaches the route or scene step handling the event.
func WithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return withMeta(ctx, func(m *updateMeta) { m.route = route })
}

// BuildRID returns a correlation id of the form updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return strconv.Itoa(updateID) + ":" + strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(userID, 10)
}

// CompactRID rewrites each part of a BuildRID id in base 36, joined by dots.
// Other strings are returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	var b strings.Builder
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatInt(n, 36))
	}
	return b.String()
}
