// Package pipeline runs inbound events through an explicit ordered list of
// stages. Each stage may run pre-logic and continue, short-circuit, register
// post-logic that always runs (Finally, in order), and unwind logic that sees
// every error raised below it (Exit, in reverse order).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/stickerbot/core/event"
	"github.com/m3rciful/stickerbot/core/logger"
)

// Signal tells the dispatcher whether to descend into the next stage.
type Signal int

const (
	// Continue runs the next stage.
	Continue Signal = iota
	// Halt stops descending; Finally and Exit hooks of entered stages still run.
	Halt
)

func (s Signal) String() string {
	if s == Halt {
		return "halt"
	}
	return "continue"
}

// Stage is one link of the chain.
type Stage struct {
	Name string
	// NeedsSession skips the stage when no session could be loaded.
	NeedsSession bool
	// Enter runs on the way down. A returned error stops descending and the
	// stage counts as not entered.
	Enter func(c *Context) (Signal, error)
	// Finally runs for every entered stage, in chain order, after descent stops.
	Finally func(c *Context) error
	// Exit runs for every entered stage in reverse order and receives the
	// errors not yet handled. It returns what it did not handle.
	Exit func(c *Context, errs []error) []error
}

// DefectFunc receives errors no stage handled. They never stop the process.
type DefectFunc func(c *Context, err error)

// Dispatcher composes stages and runs events through them.
type Dispatcher struct {
	stages []Stage
	defect DefectFunc
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithDefectHandler replaces the default defect logger.
func WithDefectHandler(fn DefectFunc) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.defect = fn
		}
	}
}

// New returns a Dispatcher running stages in the given order.
func New(stages []Stage, opts ...Option) (*Dispatcher, error) {
	seen := make(map[string]struct{}, len(stages))
	for i, st := range stages {
		if st.Name == "" {
			return nil, fmt.Errorf("pipeline: stage %d has no name", i)
		}
		if _, dup := seen[st.Name]; dup {
			return nil, fmt.Errorf("pipeline: duplicate stage %q", st.Name)
		}
		seen[st.Name] = struct{}{}
	}
	d := &Dispatcher{
		stages: append([]Stage(nil), stages...),
		defect: logDefect,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Stages returns the stage names in execution order.
func (d *Dispatcher) Stages() []string {
	names := make([]string, len(d.stages))
	for i, st := range d.stages {
		names[i] = st.Name
	}
	return names
}

// Dispatch processes one event to completion. It never panics and never
// returns an error: failures end in a stage Exit hook or the defect handler.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *event.Event, resp Responder) *Context {
	c := NewContext(ctx, ev, resp)
	d.Run(c)
	return c
}

// Run processes an already built Context.
func (d *Dispatcher) Run(c *Context) {
	defer func() {
		if p := recover(); p != nil {
			d.defect(c, &PanicError{Value: p, Stack: debug.Stack()})
		}
	}()

	entered := make([]*Stage, 0, len(d.stages))
	var errs []error

	for i := range d.stages {
		st := &d.stages[i]
		if st.NeedsSession && c.Session == nil {
			continue
		}
		if err := c.ctx.Err(); err != nil {
			errs = append(errs, wrap(st.Name, "", err))
			break
		}
		sig, err := enter(st, c)
		if err != nil {
			errs = append(errs, wrap(st.Name, c.route, err))
			break
		}
		entered = append(entered, st)
		if sig == Halt {
			c.halted = st.Name
			break
		}
	}

	for _, st := range entered {
		if st.Finally == nil {
			continue
		}
		if err := finally(st, c); err != nil {
			errs = append(errs, err)
		}
	}

	for i := len(entered) - 1; i >= 0; i-- {
		st := entered[i]
		if st.Exit == nil {
			continue
		}
		errs = exit(st, c, errs)
	}

	for _, err := range errs {
		d.defect(c, err)
	}
}

func enter(st *Stage, c *Context) (sig Signal, err error) {
	if st.Enter == nil {
		return Continue, nil
	}
	defer func() {
		if p := recover(); p != nil {
			sig, err = Halt, &PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	return st.Enter(c)
}

func finally(st *Stage, c *Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	return st.Finally(c)
}

func exit(st *Stage, c *Context, errs []error) (rest []error) {
	defer func() {
		if p := recover(); p != nil {
			rest = append(errs, &PanicError{Value: p, Stack: debug.Stack()})
		}
	}()
	return st.Exit(c, errs)
}

func logDefect(c *Context, err error) {
	ctx := context.Background()
	kind := event.KindOther
	if c != nil {
		ctx = c.Context()
		kind = c.Event.Kind
	}
	attrs := []slog.Attr{
		slog.String("status", "fail"),
		slog.String("kind", string(kind)),
		logger.Err(err),
	}
	if pe, ok := err.(*PanicError); ok {
		attrs = append(attrs, slog.String("stack", string(pe.Stack)))
	}
	logger.Error(ctx, "pipeline", "dispatch.defect", attrs...)
}
