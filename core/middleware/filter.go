// Package middleware provides the concrete stages of the update pipeline and
// Chain, which assembles them in the order the bot relies on.
package middleware

import (
	"github.com/m3rciful/stickerbot/core/event"
	"github.com/m3rciful/stickerbot/core/pipeline"
)

// IgnoreKinds absorbs events of the given kinds before anything else runs.
func IgnoreKinds(kinds ...event.Kind) pipeline.Stage {
	skip := make(map[event.Kind]struct{}, len(kinds))
	for _, k := range kinds {
		skip[k] = struct{}{}
	}
	return pipeline.Stage{
		Name: "filter",
		Enter: func(c *pipeline.Context) (pipeline.Signal, error) {
			if _, ok := skip[c.Event.Kind]; ok {
				return pipeline.Halt, nil
			}
			return pipeline.Continue, nil
		},
	}
}

// ChatMemberFilter absorbs membership changes; they never reach handlers.
func ChatMemberFilter() pipeline.Stage {
	return pipeline.Stage{
		Name: "chat_member",
		Enter: func(c *pipeline.Context) (pipeline.Signal, error) {
			switch c.Event.Kind {
			case event.KindMyChatMember, event.KindChatMember:
				return pipeline.Halt, nil
			}
			return pipeline.Continue, nil
		},
	}
}
