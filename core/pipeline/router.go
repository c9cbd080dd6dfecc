package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/m3rciful/stickerbot/core/event"
)

// Handler is a feature handler bound to a route.
type Handler func(c *Context) error

// Gate runs right before a route handler; returning false skips the handler.
type Gate func(c *Context) (bool, error)

// Matcher decides whether a route handles the event.
type Matcher interface {
	Match(c *Context) bool
}

// exactMatcher is implemented by matchers indexed in the exact-match table.
type exactMatcher interface {
	Matcher
	exactKeys() []string
}

// Route binds a matcher to a handler.
type Route struct {
	Name    string
	Match   Matcher
	Gates   []Gate
	Handler Handler
}

// Router resolves the handler for an event: exact commands and texts first,
// then patterns in registration order, then the fallback. First match wins.
type Router struct {
	exact    map[string]*Route
	patterns []*Route
	fallback *Route
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{exact: make(map[string]*Route)}
}

// Handle registers a route. Routes with exact matchers may not share a key.
func (r *Router) Handle(route Route) error {
	if route.Match == nil || route.Handler == nil {
		return fmt.Errorf("router: route %q needs a matcher and a handler", route.Name)
	}
	rt := &route
	if rt.Name == "" {
		rt.Name = "route"
	}
	if em, ok := route.Match.(exactMatcher); ok {
		for _, k := range em.exactKeys() {
			if _, dup := r.exact[k]; dup {
				return fmt.Errorf("router: duplicate exact key %q", k)
			}
		}
		for _, k := range em.exactKeys() {
			r.exact[k] = rt
		}
		return nil
	}
	r.patterns = append(r.patterns, rt)
	return nil
}

// MustHandle is Handle that panics on invalid registration, for static tables.
func (r *Router) MustHandle(routes ...Route) *Router {
	for _, rt := range routes {
		if err := r.Handle(rt); err != nil {
			panic(err)
		}
	}
	return r
}

// Fallback sets the catch-all handler.
func (r *Router) Fallback(name string, h Handler, gates ...Gate) {
	if h == nil {
		r.fallback = nil
		return
	}
	r.fallback = &Route{Name: name, Gates: gates, Handler: h}
}

// Lookup returns the route that would handle the event, or nil.
func (r *Router) Lookup(c *Context) *Route {
	ev := c.Event
	if isMessage(ev.Kind) {
		if rt, ok := r.exact[textKey(ev.Text)]; ok {
			return rt
		}
		if name, _, ok := ev.Command(); ok {
			if rt, ok := r.exact[commandKey(name)]; ok {
				return rt
			}
		}
	}
	for _, rt := range r.patterns {
		c.Match = nil
		if rt.Match.Match(c) {
			return rt
		}
	}
	c.Match = nil
	return r.fallback
}

// Dispatch runs the matching route. Events without a route are absorbed.
func (r *Router) Dispatch(c *Context) error {
	rt := r.Lookup(c)
	if rt == nil {
		c.SetRoute("unmatched")
		return nil
	}
	c.SetRoute(rt.Name)
	for _, gate := range rt.Gates {
		ok, err := gate(c)
		if err != nil {
			return wrap("router", rt.Name, err)
		}
		if !ok {
			return nil
		}
	}
	return wrap("router", rt.Name, rt.Handler(c))
}

func isMessage(k event.Kind) bool {
	return k == event.KindMessage || k == event.KindEditedMessage
}

func textKey(text string) string       { return "text:" + strings.TrimSpace(text) }
func commandKey(command string) string { return "cmd:" + strings.ToLower(command) }

type commandMatcher struct{ names []string }

// Command matches messages whose leading command is one of names ("/packs" or "packs").
func Command(names ...string) Matcher {
	norm := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if !strings.HasPrefix(n, "/") {
			n = "/" + n
		}
		norm = append(norm, n)
	}
	return commandMatcher{names: norm}
}

func (m commandMatcher) Match(c *Context) bool {
	name, _, ok := c.Event.Command()
	if !ok || !isMessage(c.Event.Kind) {
		return false
	}
	for _, n := range m.names {
		if n == name {
			return true
		}
	}
	return false
}

func (m commandMatcher) exactKeys() []string {
	keys := make([]string, len(m.names))
	for i, n := range m.names {
		keys[i] = commandKey(n)
	}
	return keys
}

type textMatcher struct{ texts []string }

// Text matches messages whose whole text equals one of texts.
func Text(texts ...string) Matcher {
	trimmed := make([]string, 0, len(texts))
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			trimmed = append(trimmed, t)
		}
	}
	return textMatcher{texts: trimmed}
}

func (m textMatcher) Match(c *Context) bool {
	if !isMessage(c.Event.Kind) {
		return false
	}
	text := strings.TrimSpace(c.Event.Text)
	for _, t := range m.texts {
		if t == text {
			return true
		}
	}
	return false
}

func (m textMatcher) exactKeys() []string {
	keys := make([]string, len(m.texts))
	for i, t := range m.texts {
		keys[i] = textKey(t)
	}
	return keys
}

type localizedMatcher struct{ keys []string }

// Localized matches messages equal to the translation of any key in the event locale.
func Localized(keys ...string) Matcher {
	return localizedMatcher{keys: keys}
}

func (m localizedMatcher) Match(c *Context) bool {
	if !isMessage(c.Event.Kind) {
		return false
	}
	text := strings.TrimSpace(c.Event.Text)
	if text == "" {
		return false
	}
	for _, k := range m.keys {
		if tr := c.T(k); tr != k && tr == text {
			return true
		}
	}
	return false
}

type regexpMatcher struct {
	re    *regexp.Regexp
	kinds []event.Kind
}

// Pattern matches the event's text (messages), data (callbacks) or query
// (inline queries) against expr. Submatches are exposed in Context.Match.
// When kinds is empty every kind with a textual payload is considered.
func Pattern(expr string, kinds ...event.Kind) Matcher {
	return regexpMatcher{re: regexp.MustCompile(expr), kinds: kinds}
}

// Callback matches callback query data against expr.
func Callback(expr string) Matcher {
	return Pattern(expr, event.KindCallbackQuery)
}

func (m regexpMatcher) Match(c *Context) bool {
	ev := c.Event
	if len(m.kinds) > 0 && !containsKind(m.kinds, ev.Kind) {
		return false
	}
	var subject string
	switch {
	case isMessage(ev.Kind):
		subject = ev.Text
	case ev.Kind == event.KindCallbackQuery:
		subject = ev.Data
	case ev.Kind == event.KindInlineQuery:
		subject = ev.Query
	default:
		return false
	}
	sm := m.re.FindStringSubmatch(subject)
	if sm == nil {
		return false
	}
	c.Match = sm
	return true
}

type kindMatcher struct{ kinds []event.Kind }

// Kind matches events of the given kinds.
func Kind(kinds ...event.Kind) Matcher {
	return kindMatcher{kinds: kinds}
}

func (m kindMatcher) Match(c *Context) bool {
	return containsKind(m.kinds, c.Event.Kind)
}

type mediaMatcher struct{ media []event.Media }

// Media matches messages carrying one of the attachments.
func Media(media ...event.Media) Matcher {
	return mediaMatcher{media: media}
}

func (m mediaMatcher) Match(c *Context) bool {
	if !isMessage(c.Event.Kind) || c.Event.Media == event.MediaNone {
		return false
	}
	for _, md := range m.media {
		if md == c.Event.Media {
			return true
		}
	}
	return false
}

// Func adapts a predicate.
type Func func(c *Context) bool

func (f Func) Match(c *Context) bool { return f(c) }

type allMatcher []Matcher

// All matches when every matcher matches, evaluated left to right.
func All(ms ...Matcher) Matcher { return allMatcher(ms) }

func (a allMatcher) Match(c *Context) bool {
	for _, m := range a {
		if !m.Match(c) {
			return false
		}
	}
	return true
}

type anyMatcher []Matcher

// Any matches when one of the matchers matches, evaluated left to right.
func Any(ms ...Matcher) Matcher { return anyMatcher(ms) }

func (a anyMatcher) Match(c *Context) bool {
	for _, m := range a {
		if m.Match(c) {
			return true
		}
	}
	return false
}

func containsKind(kinds []event.Kind, k event.Kind) bool {
	for _, kk := range kinds {
		if kk == k {
			return true
		}
	}
	return false
}
