package middleware

import (
	"context"
	"time"

	"github.com/m3rciful/stickerbot/core/batch"
	"github.com/m3rciful/stickerbot/core/event"
	"github.com/m3rciful/stickerbot/core/pipeline"
	"github.com/m3rciful/stickerbot/core/scene"
)

const flushTimeout = 10 * time.Second

// Batch initializes the deferred acknowledgement batch for inline and
// callback queries and flushes it once after the session was saved.
func Batch() pipeline.Stage {
	return pipeline.Stage{
		Name: "batch",
		Enter: func(c *pipeline.Context) (pipeline.Signal, error) {
			if kind := c.Event.Kind; kind.NeedsAck() {
				c.Batch = newBatch(kind)
			}
			return pipeline.Continue, nil
		},
		Finally: flush,
	}
}

func newBatch(kind event.Kind) *batch.Batcher {
	return batch.New(kind == event.KindInlineQuery, kind == event.KindCallbackQuery)
}

func flush(c *pipeline.Context) error {
	if c.Batch == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Context()), flushTimeout)
	defer cancel()
	return c.Batch.Flush(ctx, c.Responder())
}

// ackSkipped sends the empty acknowledgement an event still owes when
// descent stopped before the batch stage, e.g. on a session load failure or
// a rate limit rejection.
func ackSkipped(c *pipeline.Context) error {
	if c.Batch != nil || !c.Event.Kind.NeedsAck() {
		return nil
	}
	c.Batch = newBatch(c.Event.Kind)
	return flush(c)
}

// Scenes hands events of sessions inside a scene to the engine. A handled
// event skips the router. Escape commands leave the scene and fall through
// to the router so the command itself still runs.
func Scenes(e *scene.Engine) pipeline.Stage {
	return pipeline.Stage{
		Name:         "scene",
		NeedsSession: true,
		Enter: func(c *pipeline.Context) (pipeline.Signal, error) {
			if !e.Active(c) {
				return pipeline.Continue, nil
			}
			if e.IsEscape(c) {
				e.Leave(c)
				return pipeline.Continue, nil
			}
			handled, err := e.Handle(c)
			if err != nil {
				return pipeline.Halt, err
			}
			if handled {
				return pipeline.Halt, nil
			}
			return pipeline.Continue, nil
		},
	}
}

// Route runs the router as the last stage.
func Route(r *pipeline.Router) pipeline.Stage {
	return pipeline.Stage{
		Name:         "router",
		NeedsSession: true,
		Enter: func(c *pipeline.Context) (pipeline.Signal, error) {
			if err := r.Dispatch(c); err != nil {
				return pipeline.Halt, err
			}
			return pipeline.Continue, nil
		},
	}
}
