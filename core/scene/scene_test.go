package scene

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m3rciful/stickerbot/core/event"
	"github.com/m3rciful/stickerbot/core/pipeline"
	"github.com/m3rciful/stickerbot/core/session"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newCtx(sess *session.Session, text string) *pipeline.Context {
	c := pipeline.NewContext(context.Background(), &event.Event{Kind: event.KindMessage, Text: text}, nil)
	c.Session = sess
	return c
}

func packScene(log *[]string) Scene {
	return Scene{
		ID: "new_pack",
		Enter: func(_ *pipeline.Context, data map[string]any) error {
			*log = append(*log, "enter")
			return nil
		},
		Steps: []Step{
			{Name: "type", Handle: func(c *pipeline.Context, data map[string]any) (Result, error) {
				*log = append(*log, "type:"+c.Event.Text)
				if c.Event.Text == "" {
					return Stay(), nil
				}
				data["type"] = c.Event.Text
				return Advance("title", nil), nil
			}},
			{Name: "title", Handle: func(c *pipeline.Context, data map[string]any) (Result, error) {
				*log = append(*log, "title:"+c.Event.Text+":"+data["type"].(string))
				return Leave(), nil
			}},
		},
	}
}

func TestEngineFlow(t *testing.T) {
	var log []string
	e := NewEngine().MustRegister(packScene(&log))
	sess := session.New()

	if err := e.Enter(newCtx(sess, "/new"), "new_pack", nil); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if !sess.InScene() || sess.Scene.Step != "type" {
		t.Fatalf("scene = %+v", sess.Scene)
	}

	for _, text := range []string{"", "video", "Cats"} {
		handled, err := e.Handle(newCtx(sess, text))
		if err != nil || !handled {
			t.Fatalf("handle %q: handled=%v err=%v", text, handled, err)
		}
	}
	want := []string{"enter", "type:", "type:video", "title:Cats:video"}
	if len(log) != len(want) {
		t.Fatalf("log = %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}
	if sess.InScene() {
		t.Fatal("scene should be left")
	}
	if handled, _ := e.Handle(newCtx(sess, "after")); handled {
		t.Fatal("idle session must not be handled by the engine")
	}
}

func TestEngineUnknownScene(t *testing.T) {
	e := NewEngine()
	sess := session.New()
	if err := e.Enter(newCtx(sess, ""), "missing", nil); !errors.Is(err, ErrUnknownScene) {
		t.Fatalf("err = %v", err)
	}
	sess.Scene = &session.SceneState{SceneID: "gone", Step: "x"}
	handled, err := e.Handle(newCtx(sess, "hi"))
	if handled || err != nil || sess.Scene != nil {
		t.Fatalf("handled=%v err=%v scene=%+v", handled, err, sess.Scene)
	}
}

func TestEngineUnknownStepIsCleared(t *testing.T) {
	var log []string
	e := NewEngine().MustRegister(packScene(&log))
	sess := session.New()
	sess.Scene = &session.SceneState{SceneID: "new_pack", Step: "renamed"}
	handled, err := e.Handle(newCtx(sess, "hi"))
	if handled || err != nil || sess.Scene != nil {
		t.Fatalf("handled=%v err=%v scene=%+v", handled, err, sess.Scene)
	}
}

func TestEngineAdvanceToUnknownStep(t *testing.T) {
	e := NewEngine().MustRegister(Scene{
		ID: "broken",
		Steps: []Step{{Name: "a", Handle: func(*pipeline.Context, map[string]any) (Result, error) {
			return Advance("nowhere", nil), nil
		}}},
	})
	sess := session.New()
	if err := e.Enter(newCtx(sess, ""), "broken", nil); err != nil {
		t.Fatalf("enter: %v", err)
	}
	_, err := e.Handle(newCtx(sess, "x"))
	if !errors.Is(err, ErrUnknownStep) {
		t.Fatalf("err = %v", err)
	}
	if sess.InScene() {
		t.Fatal("session stranded in broken scene")
	}
}

func TestEngineTTL(t *testing.T) {
	var log []string
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	e := NewEngine(WithTTL(time.Minute), WithClock(clk.now)).MustRegister(packScene(&log))
	sess := session.New()
	if err := e.Enter(newCtx(sess, ""), "new_pack", nil); err != nil {
		t.Fatalf("enter: %v", err)
	}
	clk.t = clk.t.Add(30 * time.Second)
	if handled, _ := e.Handle(newCtx(sess, "")); !handled {
		t.Fatal("expected step to handle within ttl")
	}
	clk.t = clk.t.Add(61 * time.Second)
	if handled, _ := e.Handle(newCtx(sess, "video")); handled {
		t.Fatal("expired scene must not handle")
	}
	if sess.InScene() {
		t.Fatal("expired scene must be cleared")
	}
}

func TestEngineEscapes(t *testing.T) {
	e := NewEngine(WithEscapes("cancel", "/START"))
	for text, want := range map[string]bool{
		"/cancel":        true,
		"/start":         true,
		"/start@bot s_x": true,
		"/packs":         false,
		"cancel":         false,
	} {
		if got := e.IsEscape(newCtx(nil, text)); got != want {
			t.Fatalf("IsEscape(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestEngineStepError(t *testing.T) {
	boom := errors.New("boom")
	e := NewEngine().MustRegister(Scene{
		ID: "s",
		Steps: []Step{{Name: "a", Handle: func(*pipeline.Context, map[string]any) (Result, error) {
			return Leave(), boom
		}}},
	})
	sess := session.New()
	_ = e.Enter(newCtx(sess, ""), "s", nil)
	handled, err := e.Handle(newCtx(sess, "x"))
	if !handled || !errors.Is(err, boom) {
		t.Fatalf("handled=%v err=%v", handled, err)
	}
	if !sess.InScene() {
		t.Fatal("failed step keeps the scene")
	}
}

func TestRegisterValidation(t *testing.T) {
	e := NewEngine()
	if err := e.Register(Scene{ID: "x"}); err == nil {
		t.Fatal("expected error for scene without steps")
	}
	ok := func(*pipeline.Context, map[string]any) (Result, error) { return Stay(), nil }
	if err := e.Register(Scene{ID: "x", Steps: []Step{{Name: "a", Handle: ok}, {Name: "a", Handle: ok}}}); err == nil {
		t.Fatal("expected duplicate step error")
	}
	if err := e.Register(Scene{ID: "x", Steps: []Step{{Name: "a", Handle: ok}}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := e.Register(Scene{ID: "x", Steps: []Step{{Name: "a", Handle: ok}}}); err == nil {
		t.Fatal("expected duplicate scene error")
	}
}
