package middleware

import (
	"log/slog"

	"github.com/m3rciful/stickerbot/core/logger"
	"github.com/m3rciful/stickerbot/core/pipeline"
)

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	AdminID  int64
	OnReject pipeline.Handler
}

// AdminOnly is a router gate letting only the configured admin through.
// With no admin configured every sender is rejected.
func AdminOnly(opts AdminOptions) pipeline.Gate {
	return func(c *pipeline.Context) (bool, error) {
		if opts.AdminID != 0 && c.Event.Origin.SenderID == opts.AdminID {
			return true, nil
		}
		logger.Warn(c.Context(), "pipeline", "access.denied",
			slog.String("status", "fail"),
			slog.String("route", c.Route()),
		)
		if opts.OnReject != nil {
			return false, opts.OnReject(c)
		}
		return false, nil
	}
}
