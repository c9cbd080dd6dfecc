// Package scene implements multi-step guided flows whose position is stored
// in the session. While a scene is active, events go to the current step
// instead of the command router.
package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/stickerbot/core/logger"
	"github.com/m3rciful/stickerbot/core/pipeline"
	"github.com/m3rciful/stickerbot/core/session"
)

var (
	// ErrUnknownScene is returned when entering a scene that was never registered.
	ErrUnknownScene = errors.New("scene: unknown scene")
	// ErrUnknownStep is returned when a step advances to a step its scene does not declare.
	ErrUnknownStep = errors.New("scene: unknown step")
)

type outcome int

const (
	stay outcome = iota
	advance
	leave
)

// Result is what a step handler decides after seeing an event.
type Result struct {
	outcome outcome
	step    string
	data    map[string]any
}

// Stay keeps the current step. The step runs again on the next event.
func Stay() Result { return Result{outcome: stay} }

// Advance moves to step. A non-nil data replaces the scene's local data.
func Advance(step string, data map[string]any) Result {
	return Result{outcome: advance, step: step, data: data}
}

// Leave ends the scene.
func Leave() Result { return Result{outcome: leave} }

// StepFunc handles one event for the current step. data is the scene's local
// data and may be mutated in place.
type StepFunc func(c *pipeline.Context, data map[string]any) (Result, error)

// Step is a named state of a scene.
type Step struct {
	Name   string
	Handle StepFunc
}

// Scene declares a flow. The first step is where Enter places the session.
type Scene struct {
	ID    string
	Steps []Step
	// Enter runs once when the scene is entered, usually to send the first prompt.
	Enter func(c *pipeline.Context, data map[string]any) error
	// TTL overrides the engine idle timeout for this scene.
	TTL time.Duration
}

type compiled struct {
	Scene
	steps map[string]StepFunc
}

// Engine holds scene definitions and drives transitions.
type Engine struct {
	mu      sync.RWMutex
	scenes  map[string]*compiled
	escapes map[string]struct{}
	ttl     time.Duration
	now     func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithTTL sets how long a scene may stay idle before it is dropped on the next event.
func WithTTL(d time.Duration) Option {
	return func(e *Engine) { e.ttl = d }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithEscapes declares commands that always leave the active scene.
func WithEscapes(commands ...string) Option {
	return func(e *Engine) {
		for _, c := range commands {
			c = strings.ToLower(strings.TrimSpace(c))
			if c == "" {
				continue
			}
			if !strings.HasPrefix(c, "/") {
				c = "/" + c
			}
			e.escapes[c] = struct{}{}
		}
	}
}

// NewEngine returns an Engine without scenes.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		scenes:  make(map[string]*compiled),
		escapes: make(map[string]struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds a scene definition.
func (e *Engine) Register(s Scene) error {
	if s.ID == "" {
		return errors.New("scene: empty id")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scene %q: no steps", s.ID)
	}
	cs := &compiled{Scene: s, steps: make(map[string]StepFunc, len(s.Steps))}
	for _, st := range s.Steps {
		if st.Name == "" || st.Handle == nil {
			return fmt.Errorf("scene %q: step needs a name and a handler", s.ID)
		}
		if _, dup := cs.steps[st.Name]; dup {
			return fmt.Errorf("scene %q: duplicate step %q", s.ID, st.Name)
		}
		cs.steps[st.Name] = st.Handle
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.scenes[s.ID]; dup {
		return fmt.Errorf("scene %q: already registered", s.ID)
	}
	e.scenes[s.ID] = cs
	return nil
}

// MustRegister is Register that panics, for static scene tables.
func (e *Engine) MustRegister(scenes ...Scene) *Engine {
	for _, s := range scenes {
		if err := e.Register(s); err != nil {
			panic(err)
		}
	}
	return e
}

// IDs returns the registered scene ids.
func (e *Engine) IDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.scenes))
	for id := range e.scenes {
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) lookup(id string) (*compiled, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.scenes[id]
	return s, ok
}

// Enter puts the session on the first step of scene id and runs its Enter hook.
func (e *Engine) Enter(c *pipeline.Context, id string, data map[string]any) error {
	if c.Session == nil {
		return session.ErrNoSession
	}
	s, ok := e.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScene, id)
	}
	if data == nil {
		data = make(map[string]any)
	}
	now := e.now()
	c.Session.Scene = &session.SceneState{
		SceneID:   s.ID,
		Step:      s.Steps[0].Name,
		Data:      data,
		EnteredAt: now,
		TouchedAt: now,
	}
	logger.Debug(c.Context(), "scene", "scene.enter",
		slog.String("scene", s.ID),
		slog.String("step", s.Steps[0].Name),
	)
	if s.Enter != nil {
		return s.Enter(c, data)
	}
	return nil
}

// Leave clears the active scene, if any.
func (e *Engine) Leave(c *pipeline.Context) {
	e.leave(c, "leave")
}

func (e *Engine) leave(c *pipeline.Context, reason string) {
	if c.Session == nil || c.Session.Scene == nil {
		return
	}
	st := c.Session.Scene
	c.Session.Scene = nil
	logger.Debug(c.Context(), "scene", "scene.leave",
		slog.String("scene", st.SceneID),
		slog.String("step", st.Step),
		slog.String("cause", reason),
	)
}

// Active reports whether the event's session is inside a scene.
func (e *Engine) Active(c *pipeline.Context) bool {
	return c.Session.InScene()
}

// IsEscape reports whether the event is one of the escape commands.
func (e *Engine) IsEscape(c *pipeline.Context) bool {
	name, _, ok := c.Event.Command()
	if !ok {
		return false
	}
	_, esc := e.escapes[name]
	return esc
}

// Handle routes the event to the current step of the active scene.
// It reports false when no scene is active, or the stored state could not be
// resumed and was cleared; the event then goes to the router.
func (e *Engine) Handle(c *pipeline.Context) (bool, error) {
	if !c.Session.InScene() {
		return false, nil
	}
	st := c.Session.Scene
	s, ok := e.lookup(st.SceneID)
	if !ok {
		logger.Warn(c.Context(), "scene", "scene.stale",
			slog.String("scene", st.SceneID),
			slog.String("cause", "unknown_scene"),
		)
		e.leave(c, "unknown_scene")
		return false, nil
	}
	if ttl := e.ttlFor(s); ttl > 0 && !st.TouchedAt.IsZero() && e.now().Sub(st.TouchedAt) > ttl {
		e.leave(c, "expired")
		return false, nil
	}
	handle, ok := s.steps[st.Step]
	if !ok {
		logger.Warn(c.Context(), "scene", "scene.stale",
			slog.String("scene", st.SceneID),
			slog.String("step", st.Step),
			slog.String("cause", "unknown_step"),
		)
		e.leave(c, "unknown_step")
		return false, nil
	}
	if st.Data == nil {
		st.Data = make(map[string]any)
	}

	c.SetRoute(st.SceneID + "." + st.Step)
	res, err := handle(c, st.Data)
	if err != nil {
		st.TouchedAt = e.now()
		return true, err
	}
	return true, e.apply(c, s, st, res)
}

func (e *Engine) apply(c *pipeline.Context, s *compiled, prev *session.SceneState, res Result) error {
	// The step may have replaced or left the scene itself.
	if c.Session.Scene != prev {
		return nil
	}
	switch res.outcome {
	case leave:
		e.leave(c, "done")
	case advance:
		if _, ok := s.steps[res.step]; !ok {
			e.leave(c, "unknown_step")
			return fmt.Errorf("%w: %s.%s", ErrUnknownStep, s.ID, res.step)
		}
		prev.Step = res.step
		if res.data != nil {
			prev.Data = res.data
		}
		prev.TouchedAt = e.now()
		logger.Debug(c.Context(), "scene", "scene.advance",
			slog.String("scene", s.ID),
			slog.String("step", res.step),
		)
	default:
		prev.TouchedAt = e.now()
	}
	return nil
}

func (e *Engine) ttlFor(s *compiled) time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return e.ttl
}
