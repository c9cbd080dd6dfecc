package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m3rciful/stickerbot/core/batch"
	"github.com/m3rciful/stickerbot/core/event"
	"github.com/m3rciful/stickerbot/core/i18n"
	"github.com/m3rciful/stickerbot/core/logger"
	"github.com/m3rciful/stickerbot/core/session"
)

// ErrNoBatch is returned when a deferred acknowledgement is appended for an
// event kind that does not take one.
var ErrNoBatch = errors.New("pipeline: event takes no deferred acknowledgement")

// Responder is the transport side of one event.
type Responder interface {
	// Send delivers a message to the event's chat (or sender when there is no chat).
	Send(ctx context.Context, text string, opts ...any) error
	batch.Acknowledger
}

// Context carries one event through the stages. It is owned by a single
// goroutine for the duration of Dispatch.
type Context struct {
	ctx     context.Context
	Event   *event.Event
	Key     session.Key
	Session *session.Session
	Batch   *batch.Batcher
	// Match holds regexp submatches of the route that handled the event.
	Match []string

	resp    Responder
	tr      i18n.Translator
	locale  string
	started time.Time
	route   string
	halted  string
	sent    int
	noticed bool

	mu     sync.Mutex
	values map[string]any
}

// NewContext builds a Context; Dispatch does this for every event.
func NewContext(ctx context.Context, ev *event.Event, resp Responder) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if ev == nil {
		ev = &event.Event{Kind: event.KindOther}
	}
	return &Context{
		ctx:     ctx,
		Event:   ev,
		resp:    resp,
		locale:  ev.Locale(),
		started: time.Now(),
	}
}

// Context returns the request scoped context (carrying log correlation data).
func (c *Context) Context() context.Context { return c.ctx }

// SetContext replaces the request scoped context.
func (c *Context) SetContext(ctx context.Context) {
	if ctx != nil {
		c.ctx = ctx
	}
}

// Started returns when dispatch began.
func (c *Context) Started() time.Time { return c.started }

// Route returns the name of the route or scene step that handled the event.
func (c *Context) Route() string { return c.route }

// SetRoute records the handling route name and tags later log lines with it.
func (c *Context) SetRoute(name string) {
	c.route = name
	c.ctx = logger.WithRoute(c.ctx, name)
}

// HaltedBy returns the stage that short-circuited the chain, if any.
func (c *Context) HaltedBy() string { return c.halted }

// Sent returns the number of messages sent while handling the event.
func (c *Context) Sent() int { return c.sent }

// Locale returns the locale used for translations.
func (c *Context) Locale() string { return c.locale }

// SetLocale overrides the locale for the remaining stages.
func (c *Context) SetLocale(locale string) {
	if locale != "" {
		c.locale = locale
	}
}

// SetTranslator attaches the string lookup.
func (c *Context) SetTranslator(tr i18n.Translator) { c.tr = tr }

// T translates key in the current locale. params is an optional map.
func (c *Context) T(key string, params ...map[string]any) string {
	if c.tr == nil {
		return key
	}
	var p map[string]any
	if len(params) > 0 {
		p = params[0]
	}
	return c.tr.Translate(c.locale, key, p)
}

// Reply sends a text message through the transport.
func (c *Context) Reply(text string, opts ...any) error {
	if c.resp == nil {
		return errors.New("pipeline: no responder")
	}
	if err := c.resp.Send(c.ctx, text, opts...); err != nil {
		return err
	}
	c.sent++
	return nil
}

// Notice sends a translated message at most once per event. Later calls are no-ops.
func (c *Context) Notice(key string) error {
	if c.noticed {
		return nil
	}
	c.noticed = true
	return c.Reply(c.T(key))
}

// Noticed reports whether Notice already sent a message.
func (c *Context) Noticed() bool { return c.noticed }

// AnswerInline defers inline query results until the end of the event.
func (c *Context) AnswerInline(results []any, opts ...batch.InlineOption) error {
	if c.Batch == nil || !c.Batch.AnswerInline(results, opts...) {
		return ErrNoBatch
	}
	return nil
}

// AnswerCallback defers the button press acknowledgement until the end of the event.
func (c *Context) AnswerCallback(a batch.CallbackAnswer) error {
	if c.Batch == nil || !c.Batch.AnswerCallback(a) {
		return ErrNoBatch
	}
	return nil
}

// Responder exposes the transport, mainly for the batch flush.
func (c *Context) Responder() Responder { return c.resp }

// Set stores a value for later stages.
func (c *Context) Set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = v
}

// Get returns a value stored by Set.
func (c *Context) Get(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key]
}
