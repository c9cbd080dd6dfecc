package session

import (
	"strconv"
	"strings"

	"github.com/m3rciful/stickerbot/core/event"
)

// Key identifies one conversation context.
type Key string

// DefaultUserPrefix prefixes keys of private conversations.
const DefaultUserPrefix = "user"

// Resolver derives session keys from event origins.
type Resolver struct {
	// UserPrefix replaces DefaultUserPrefix when set.
	UserPrefix string
}

// Resolve returns the session key for an origin:
//   - sender talking in its own private chat, or no chat at all: "user:<sender>"
//   - sender inside another chat: "<sender>:<chat>"
//   - no sender: no key
func (r Resolver) Resolve(o event.Origin) (Key, bool) {
	if !o.HasSender() {
		return "", false
	}
	sender := strconv.FormatInt(o.SenderID, 10)
	if !o.HasChat() || o.ChatID == o.SenderID {
		prefix := strings.TrimSpace(r.UserPrefix)
		if prefix == "" {
			prefix = DefaultUserPrefix
		}
		return Key(prefix + ":" + sender), true
	}
	return Key(sender + ":" + strconv.FormatInt(o.ChatID, 10)), true
}

// Resolve applies the default Resolver.
func Resolve(o event.Origin) (Key, bool) {
	return Resolver{}.Resolve(o)
}
