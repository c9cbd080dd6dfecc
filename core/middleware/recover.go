package middleware

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/m3rciful/stickerbot/core/logger"
	"github.com/m3rciful/stickerbot/core/pipeline"
	"github.com/m3rciful/stickerbot/core/session"
)

// DefaultErrorNotice is the translation key of the generic failure message.
const DefaultErrorNotice = "error"

// Incident is one contained failure.
type Incident struct {
	ID  string
	Err error
	// Notified is set when the user got the generic notice for it.
	Notified bool
}

// ContainOptions configures the error containment stage.
type ContainOptions struct {
	// NoticeKey is translated and sent once to the chat on handler failures.
	NoticeKey string
	// NewID returns incident ids; defaults to random UUIDs.
	NewID func() string
	// Report receives every contained failure after it was logged.
	Report func(c *pipeline.Context, inc Incident)
}

// Contain is the error boundary of the chain. It attaches log correlation data
// to the event, and on the way out logs every failure raised below it with an
// incident id, tells the user something went wrong without detail, and writes
// the per-update summary line.
func Contain(opts ContainOptions) pipeline.Stage {
	if opts.NoticeKey == "" {
		opts.NoticeKey = DefaultErrorNotice
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return pipeline.Stage{
		Name: "contain",
		Enter: func(c *pipeline.Context) (pipeline.Signal, error) {
			c.SetContext(requestContext(c))
			logReceived(c)
			return pipeline.Continue, nil
		},
		Exit: func(c *pipeline.Context, errs []error) []error {
			if err := ackSkipped(c); err != nil {
				errs = append(errs, err)
			}
			for _, err := range errs {
				inc := Incident{ID: opts.NewID(), Err: err}
				if notifiable(err) && c.Event.Origin.HasChat() && !c.Noticed() {
					if nerr := c.Notice(opts.NoticeKey); nerr != nil {
						logger.Warn(c.Context(), "pipeline", "error.notice_failed",
							slog.String("incident_id", inc.ID),
							logger.Err(nerr),
						)
					} else {
						inc.Notified = true
					}
				}
				logIncident(c, inc)
				if opts.Report != nil {
					opts.Report(c, inc)
				}
			}
			logHandled(c, errs)
			return nil
		},
	}
}

// notifiable reports whether the user should hear about err. Persistence
// failures happen after the reply was sent, so they stay internal.
func notifiable(err error) bool {
	var se *session.StoreError
	if errors.As(err, &se) && se.Op == "save" {
		return false
	}
	return true
}

func logIncident(c *pipeline.Context, inc Incident) {
	attrs := []slog.Attr{
		slog.String("status", "fail"),
		slog.String("kind", string(c.Event.Kind)),
		slog.String("incident_id", inc.ID),
		logger.Err(inc.Err),
		slog.String("err_code", deriveErrorCode(inc.Err)),
		slog.Bool("notified", inc.Notified),
	}
	var he *pipeline.HandlerError
	if errors.As(inc.Err, &he) {
		attrs = append(attrs, slog.String("stage", he.Stage))
		if he.Route != "" {
			attrs = append(attrs, slog.String("route", he.Route))
		}
	}
	var pe *pipeline.PanicError
	if errors.As(inc.Err, &pe) {
		attrs = append(attrs, slog.String("stack", string(pe.Stack)))
	}
	var se *session.StoreError
	if errors.As(inc.Err, &se) {
		logger.Error(c.Context(), "session", "session."+se.Op+"_failed", attrs...)
		return
	}
	logger.Error(c.Context(), "pipeline", "update.failed", attrs...)
}
