package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stickerbot/core/batch"
	"github.com/m3rciful/stickerbot/core/event"
	"github.com/m3rciful/stickerbot/core/logger"
	"github.com/m3rciful/stickerbot/core/middleware"
	"github.com/m3rciful/stickerbot/core/pipeline"
	"github.com/m3rciful/stickerbot/core/telegram/commands"
)

type callbackEntry struct {
	action  string
	handler pipeline.Handler
	gates   []pipeline.Gate
}

// Registry holds bot commands and callbacks and mounts them on a router.
type Registry struct {
	commands         map[string]commands.Command
	callbacks        []callbackEntry
	callbacksMu      sync.RWMutex
	routes           []pipeline.Route
	callbackNotFound pipeline.Handler
	textFallback     pipeline.Handler
}

// NewRegistry creates an empty Registry with default fallbacks.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]commands.Command),
		callbackNotFound: func(c *pipeline.Context) error {
			return c.AnswerCallback(batch.CallbackAnswer{Text: "Unsupported action"})
		},
	}
}

// RegisterCommand adds a new command. Invalid and duplicate entries are skipped with a warning.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) {
	ctx := context.Background()
	if r == nil || name == "" || cmd.Handler == nil || cmd.Description == "" {
		logger.Warn(ctx, "tg.wire", "register.command.skip",
			slog.String("name", name),
			slog.String("cause", "invalid"),
		)
		return
	}
	if name[0] != '/' {
		logger.Warn(ctx, "tg.wire", "register.command.skip",
			slog.String("name", name),
			slog.String("cause", "no_slash_prefix"),
		)
		return
	}
	name = strings.ToLower(name)
	if _, exists := r.commands[name]; exists {
		logger.Warn(ctx, "tg.wire", "register.command.duplicate",
			slog.String("name", name),
		)
		return
	}
	r.commands[name] = cmd
}

// ListCommands returns a slice of tele.Command, optionally filtering out hidden and admin-only commands.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	var list []tele.Command
	for cmd, meta := range r.commands {
		if visibleOnly && (meta.Hidden || meta.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(cmd, "/"), Description: meta.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand searches for a command by name or its aliases and returns the canonical key with metadata if found.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	for key, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if alias == name || "/"+alias == name {
				return key, cmd, true
			}
		}
	}
	return "", commands.Command{}, false
}

// Commands returns all registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	return r.commands
}

// RegisterCallback maps a button action to a handler. Callback data
// "<action>" and "<action>:<payload>" both reach it.
func (r *Registry) RegisterCallback(action string, handler pipeline.Handler, gates ...pipeline.Gate) error {
	if r == nil || action == "" || handler == nil {
		logger.Warn(context.Background(), "tg.wire", "register.callback.skip",
			slog.String("key", action),
			slog.Bool("handler_nil", handler == nil),
		)
		return errors.New("invalid callback registration")
	}
	r.callbacksMu.Lock()
	defer r.callbacksMu.Unlock()
	for _, e := range r.callbacks {
		if e.action == action {
			logger.Warn(context.Background(), "tg.wire", "register.callback.duplicate",
				slog.String("key", action),
			)
			return fmt.Errorf("callback already registered: %s", action)
		}
	}
	r.callbacks = append(r.callbacks, callbackEntry{action: action, handler: handler, gates: gates})
	return nil
}

// ListCallbacks returns sorted actions (for diagnostics).
func (r *Registry) ListCallbacks() []string {
	r.callbacksMu.RLock()
	defer r.callbacksMu.RUnlock()
	names := make([]string, 0, len(r.callbacks))
	for _, e := range r.callbacks {
		names = append(names, e.action)
	}
	sort.Strings(names)
	return names
}

// RegisterRoute adds a pattern, media or predicate route. Routes are tried
// after commands and callbacks, in registration order.
func (r *Registry) RegisterRoute(route pipeline.Route) error {
	if route.Match == nil || route.Handler == nil {
		logger.Warn(context.Background(), "tg.wire", "register.route.skip",
			slog.String("name", route.Name),
		)
		return fmt.Errorf("invalid route registration: %q", route.Name)
	}
	r.routes = append(r.routes, route)
	return nil
}

// SetCallbackNotFound replaces the fallback handler for unknown callbacks.
func (r *Registry) SetCallbackNotFound(h pipeline.Handler) {
	if h != nil {
		r.callbackNotFound = h
	}
}

// SetTextFallback sets the handler for events no route matched.
func (r *Registry) SetTextFallback(h pipeline.Handler) {
	r.textFallback = h
}

// Mount registers every command and callback on router. Commands are exact
// routes (name and aliases); their localized buttons become pattern routes.
// Callbacks follow in registration order, then the extra routes, then the
// unknown-callback route.
// Admin-only commands get the admin gate before their own gates.
func (r *Registry) Mount(router *pipeline.Router, admin middleware.AdminOptions) error {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cmd := r.commands[name]
		var gates []pipeline.Gate
		if cmd.AdminOnly {
			gates = append(gates, middleware.AdminOnly(admin))
		}
		gates = append(gates, cmd.Gates...)
		aliases := append([]string{name}, cmd.Aliases...)
		if err := router.Handle(pipeline.Route{
			Name:    "cmd" + name,
			Match:   pipeline.Command(aliases...),
			Gates:   gates,
			Handler: cmd.Handler,
		}); err != nil {
			return err
		}
		if len(cmd.Buttons) > 0 {
			if err := router.Handle(pipeline.Route{
				Name:    "btn" + name,
				Match:   pipeline.Localized(cmd.Buttons...),
				Gates:   gates,
				Handler: cmd.Handler,
			}); err != nil {
				return err
			}
		}
	}

	r.callbacksMu.RLock()
	defer r.callbacksMu.RUnlock()
	for _, e := range r.callbacks {
		if err := router.Handle(pipeline.Route{
			Name:    "cb:" + e.action,
			Match:   pipeline.Callback(`^` + regexp.QuoteMeta(e.action) + `(?::(.*))?$`),
			Gates:   e.gates,
			Handler: e.handler,
		}); err != nil {
			return err
		}
	}
	for _, rt := range r.routes {
		if err := router.Handle(rt); err != nil {
			return err
		}
	}
	if r.callbackNotFound != nil {
		if err := router.Handle(pipeline.Route{
			Name:    "cb:unknown",
			Match:   pipeline.Kind(event.KindCallbackQuery),
			Handler: r.callbackNotFound,
		}); err != nil {
			return err
		}
	}
	if r.textFallback != nil {
		router.Fallback("fallback", r.textFallback)
	}
	return nil
}

// InitBotCommands sets the Telegram bot commands shown in the command menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	list := reg.ListCommands(true)
	if err := bot.SetCommands(list); err != nil {
		logger.Error(context.Background(), "tg.wire", "register.commands.set_failed",
			logger.Err(err),
		)
		return
	}
	logger.Info(context.Background(), "tg.wire", "register.commands.set",
		slog.Int("count", len(list)),
	)
}
