package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/m3rciful/stickerbot/core/batch"
	"github.com/m3rciful/stickerbot/core/event"
	"github.com/m3rciful/stickerbot/core/session"
)

type fakeResponder struct {
	mu        sync.Mutex
	sent      []string
	inline    []batch.InlineAnswer
	callbacks []batch.CallbackAnswer
}

func (f *fakeResponder) Send(_ context.Context, text string, _ ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeResponder) AnswerInline(_ context.Context, a batch.InlineAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inline = append(f.inline, a)
	return nil
}

func (f *fakeResponder) AnswerCallback(_ context.Context, a batch.CallbackAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, a)
	return nil
}

type trace struct{ steps []string }

func (t *trace) add(s string) { t.steps = append(t.steps, s) }

func (t *trace) String() string { return strings.Join(t.steps, ",") }

func traced(tr *trace, name string, sig Signal, err error) Stage {
	return Stage{
		Name: name,
		Enter: func(*Context) (Signal, error) {
			tr.add("enter:" + name)
			return sig, err
		},
		Finally: func(*Context) error {
			tr.add("finally:" + name)
			return nil
		},
		Exit: func(_ *Context, errs []error) []error {
			tr.add("exit:" + name)
			return errs
		},
	}
}

func newTestDispatcher(t *testing.T, stages []Stage, defects *[]error) *Dispatcher {
	t.Helper()
	d, err := New(stages, WithDefectHandler(func(_ *Context, err error) {
		*defects = append(*defects, err)
	}))
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d
}

func TestDispatchRunsStagesInOrder(t *testing.T) {
	tr := &trace{}
	var defects []error
	d := newTestDispatcher(t, []Stage{
		traced(tr, "a", Continue, nil),
		traced(tr, "b", Continue, nil),
		traced(tr, "c", Continue, nil),
	}, &defects)

	d.Dispatch(context.Background(), &event.Event{Kind: event.KindMessage}, &fakeResponder{})

	want := "enter:a,enter:b,enter:c,finally:a,finally:b,finally:c,exit:c,exit:b,exit:a"
	if got := tr.String(); got != want {
		t.Fatalf("trace = %s, want %s", got, want)
	}
	if len(defects) != 0 {
		t.Fatalf("unexpected defects: %v", defects)
	}
}

func TestDispatchHaltSkipsLaterStages(t *testing.T) {
	tr := &trace{}
	var defects []error
	d := newTestDispatcher(t, []Stage{
		traced(tr, "a", Continue, nil),
		traced(tr, "b", Halt, nil),
		traced(tr, "c", Continue, nil),
	}, &defects)

	c := d.Dispatch(context.Background(), &event.Event{Kind: event.KindMessage}, &fakeResponder{})

	want := "enter:a,enter:b,finally:a,finally:b,exit:b,exit:a"
	if got := tr.String(); got != want {
		t.Fatalf("trace = %s, want %s", got, want)
	}
	if c.HaltedBy() != "b" {
		t.Fatalf("halted by %q", c.HaltedBy())
	}
}

func TestDispatchErrorRunsFinallyAndReachesExit(t *testing.T) {
	tr := &trace{}
	var defects []error
	var seen []error
	boom := errors.New("boom")

	contain := traced(tr, "contain", Continue, nil)
	contain.Exit = func(_ *Context, errs []error) []error {
		tr.add("exit:contain")
		seen = append(seen, errs...)
		return nil
	}
	d := newTestDispatcher(t, []Stage{
		contain,
		traced(tr, "save", Continue, nil),
		traced(tr, "handler", Continue, boom),
		traced(tr, "never", Continue, nil),
	}, &defects)

	d.Dispatch(context.Background(), &event.Event{Kind: event.KindMessage}, &fakeResponder{})

	want := "enter:contain,enter:save,enter:handler,finally:contain,finally:save,exit:save,exit:contain"
	if got := tr.String(); got != want {
		t.Fatalf("trace = %s, want %s", got, want)
	}
	if len(seen) != 1 || !errors.Is(seen[0], boom) {
		t.Fatalf("contained errors = %v", seen)
	}
	var he *HandlerError
	if !errors.As(seen[0], &he) || he.Stage != "handler" {
		t.Fatalf("expected HandlerError from stage handler, got %#v", seen[0])
	}
	if len(defects) != 0 {
		t.Fatalf("defects = %v", defects)
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	var defects []error
	finallyRan := false
	d := newTestDispatcher(t, []Stage{
		{
			Name:    "outer",
			Finally: func(*Context) error { finallyRan = true; return nil },
		},
		{
			Name:  "panics",
			Enter: func(*Context) (Signal, error) { panic("kaboom") },
		},
	}, &defects)

	d.Dispatch(context.Background(), &event.Event{Kind: event.KindMessage}, nil)

	if !finallyRan {
		t.Fatal("finally did not run after panic")
	}
	if len(defects) != 1 {
		t.Fatalf("defects = %v", defects)
	}
	var pe *PanicError
	if !errors.As(defects[0], &pe) || pe.Value != "kaboom" || len(pe.Stack) == 0 {
		t.Fatalf("expected PanicError, got %#v", defects[0])
	}
}

func TestDispatchFinallyErrorsReachExit(t *testing.T) {
	var defects []error
	saveErr := errors.New("disk full")
	d := newTestDispatcher(t, []Stage{
		{Name: "a", Finally: func(*Context) error { return saveErr }},
		{Name: "b", Finally: func(*Context) error { panic("flush") }},
	}, &defects)

	d.Dispatch(context.Background(), &event.Event{Kind: event.KindMessage}, nil)

	if len(defects) != 2 || !errors.Is(defects[0], saveErr) {
		t.Fatalf("defects = %v", defects)
	}
	var pe *PanicError
	if !errors.As(defects[1], &pe) {
		t.Fatalf("expected panic defect, got %v", defects[1])
	}
}

func TestDispatchSkipsSessionStagesWithoutSession(t *testing.T) {
	tr := &trace{}
	var defects []error
	needs := traced(tr, "needs", Continue, nil)
	needs.NeedsSession = true
	d := newTestDispatcher(t, []Stage{traced(tr, "a", Continue, nil), needs}, &defects)

	d.Dispatch(context.Background(), &event.Event{Kind: event.KindMessage}, nil)
	if got := tr.String(); got != "enter:a,finally:a,exit:a" {
		t.Fatalf("trace = %s", got)
	}

	tr.steps = nil
	c := NewContext(context.Background(), &event.Event{Kind: event.KindMessage}, nil)
	c.Session = session.New()
	d.Run(c)
	if got := tr.String(); !strings.Contains(got, "enter:needs") {
		t.Fatalf("trace = %s", got)
	}
}

func TestDispatchCancelledContext(t *testing.T) {
	var defects []error
	entered := false
	d := newTestDispatcher(t, []Stage{
		{Name: "a", Enter: func(*Context) (Signal, error) { entered = true; return Continue, nil }},
	}, &defects)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, &event.Event{Kind: event.KindMessage}, nil)

	if entered {
		t.Fatal("stage entered with cancelled context")
	}
	if len(defects) != 1 || !errors.Is(defects[0], context.Canceled) {
		t.Fatalf("defects = %v", defects)
	}
}

func TestNewValidatesStages(t *testing.T) {
	if _, err := New([]Stage{{Name: "a"}, {Name: "a"}}); err == nil {
		t.Fatal("expected duplicate stage error")
	}
	if _, err := New([]Stage{{}}); err == nil {
		t.Fatal("expected unnamed stage error")
	}
	d, err := New([]Stage{{Name: "x"}, {Name: "y"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := strings.Join(d.Stages(), ","); got != "x,y" {
		t.Fatalf("stages = %s", got)
	}
}

func TestContextNoticeOnce(t *testing.T) {
	resp := &fakeResponder{}
	c := NewContext(context.Background(), &event.Event{Kind: event.KindMessage}, resp)
	if err := c.Notice("ratelimit"); err != nil {
		t.Fatalf("notice: %v", err)
	}
	if err := c.Notice("error"); err != nil {
		t.Fatalf("notice: %v", err)
	}
	if len(resp.sent) != 1 || resp.sent[0] != "ratelimit" {
		t.Fatalf("sent = %v", resp.sent)
	}
	if c.Sent() != 1 || !c.Noticed() {
		t.Fatalf("sent=%d noticed=%v", c.Sent(), c.Noticed())
	}
}

func TestContextAnswerWithoutBatch(t *testing.T) {
	c := NewContext(context.Background(), &event.Event{Kind: event.KindMessage}, nil)
	if err := c.AnswerCallback(batch.CallbackAnswer{Text: "ok"}); !errors.Is(err, ErrNoBatch) {
		t.Fatalf("err = %v", err)
	}
}
