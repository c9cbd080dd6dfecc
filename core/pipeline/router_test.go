package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/stickerbot/core/event"
)

type staticTranslator map[string]map[string]string

func (s staticTranslator) Translate(locale, key string, _ map[string]any) string {
	if msg, ok := s[locale][key]; ok {
		return msg
	}
	return key
}

func msg(text string) *Context {
	return NewContext(context.Background(), &event.Event{Kind: event.KindMessage, Text: text}, nil)
}

func named(name string, hits *[]string) Handler {
	return func(*Context) error {
		*hits = append(*hits, name)
		return nil
	}
}

func TestRouterExactBeforePatterns(t *testing.T) {
	var hits []string
	r := NewRouter()
	r.MustHandle(
		Route{Name: "pattern", Match: Pattern(`^/packs`), Handler: named("pattern", &hits)},
		Route{Name: "packs", Match: Command("packs", "/list"), Handler: named("packs", &hits)},
		Route{Name: "hello", Match: Text("hello"), Handler: named("hello", &hits)},
	)
	r.Fallback("fallback", named("fallback", &hits))

	for _, text := range []string{"/packs", "/PACKS@stickerbot", "/list", " hello ", "/packsmore", "random"} {
		if err := r.Dispatch(msg(text)); err != nil {
			t.Fatalf("dispatch %q: %v", text, err)
		}
	}
	want := []string{"packs", "packs", "packs", "hello", "pattern", "fallback"}
	if len(hits) != len(want) {
		t.Fatalf("hits = %v", hits)
	}
	for i := range want {
		if hits[i] != want[i] {
			t.Fatalf("hits = %v, want %v", hits, want)
		}
	}
}

func TestRouterPatternOrderAndCaptures(t *testing.T) {
	var got []string
	r := NewRouter()
	r.MustHandle(
		Route{Name: "delete", Match: Callback(`^delete_sticker:(.+)$`), Handler: func(c *Context) error {
			got = append(got, "delete="+c.Match[1])
			return nil
		}},
		Route{Name: "any_cb", Match: Kind(event.KindCallbackQuery), Handler: func(c *Context) error {
			got = append(got, "any")
			return nil
		}},
	)
	c := NewContext(context.Background(), &event.Event{Kind: event.KindCallbackQuery, Data: "delete_sticker:abc"}, nil)
	if err := r.Dispatch(c); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	c = NewContext(context.Background(), &event.Event{Kind: event.KindCallbackQuery, Data: "other"}, nil)
	if err := r.Dispatch(c); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(got) != 2 || got[0] != "delete=abc" || got[1] != "any" {
		t.Fatalf("got = %v", got)
	}
	if c.Route() != "any_cb" {
		t.Fatalf("route = %q", c.Route())
	}
}

func TestRouterLocalizedMatch(t *testing.T) {
	var hits []string
	r := NewRouter()
	r.MustHandle(Route{Name: "packs", Match: Localized("cmd.start.btn.packs"), Handler: named("packs", &hits)})

	tr := staticTranslator{"ru": {"cmd.start.btn.packs": "Мои паки"}, "en": {"cmd.start.btn.packs": "My packs"}}
	c := msg("Мои паки")
	c.SetTranslator(tr)
	c.SetLocale("ru")
	if err := r.Dispatch(c); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	c = msg("Мои паки")
	c.SetTranslator(tr)
	c.SetLocale("en")
	_ = r.Dispatch(c)
	if len(hits) != 1 {
		t.Fatalf("hits = %v", hits)
	}
}

func TestRouterGates(t *testing.T) {
	var hits []string
	allow := false
	r := NewRouter()
	r.MustHandle(Route{
		Name:    "add",
		Match:   Media(event.MediaSticker),
		Gates:   []Gate{func(*Context) (bool, error) { return allow, nil }},
		Handler: named("add", &hits),
	})
	ev := &event.Event{Kind: event.KindMessage, Media: event.MediaSticker}
	_ = r.Dispatch(NewContext(context.Background(), ev, nil))
	allow = true
	_ = r.Dispatch(NewContext(context.Background(), ev, nil))
	if len(hits) != 1 {
		t.Fatalf("hits = %v", hits)
	}
}

func TestRouterWrapsHandlerErrors(t *testing.T) {
	boom := errors.New("boom")
	r := NewRouter()
	r.MustHandle(Route{Name: "start", Match: Command("start"), Handler: func(*Context) error { return boom }})
	err := r.Dispatch(msg("/start"))
	var he *HandlerError
	if !errors.As(err, &he) || he.Route != "start" || he.Stage != "router" || !errors.Is(err, boom) {
		t.Fatalf("err = %#v", err)
	}
}

func TestRouterRejectsDuplicates(t *testing.T) {
	r := NewRouter()
	h := func(*Context) error { return nil }
	if err := r.Handle(Route{Name: "a", Match: Command("start"), Handler: h}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := r.Handle(Route{Name: "b", Match: Command("/START"), Handler: h}); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := r.Handle(Route{Name: "c", Match: Command("x")}); err == nil {
		t.Fatal("expected missing handler error")
	}
}

func TestRouterUnmatched(t *testing.T) {
	r := NewRouter()
	c := msg("nothing")
	if err := r.Dispatch(c); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if c.Route() != "unmatched" {
		t.Fatalf("route = %q", c.Route())
	}
}
