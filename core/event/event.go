// Package event describes inbound platform updates in a transport-neutral form.
// The pipeline only reads events; transports build them once per update.
package event

import "strings"

// Kind identifies the payload variant of an event.
type Kind string

const (
	KindMessage           Kind = "message"
	KindEditedMessage     Kind = "edited_message"
	KindCallbackQuery     Kind = "callback_query"
	KindInlineQuery       Kind = "inline_query"
	KindChosenInline      Kind = "chosen_inline_result"
	KindChannelPost       Kind = "channel_post"
	KindEditedChannelPost Kind = "edited_channel_post"
	KindPoll              Kind = "poll"
	KindPollAnswer        Kind = "poll_answer"
	KindMyChatMember      Kind = "my_chat_member"
	KindChatMember        Kind = "chat_member"
	KindChatJoinRequest   Kind = "chat_join_request"
	KindOther             Kind = "other"
)

// ParseKind maps a configuration string to a Kind. Unknown values map to KindOther.
func ParseKind(s string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindMessage, KindEditedMessage, KindCallbackQuery, KindInlineQuery, KindChosenInline,
		KindChannelPost, KindEditedChannelPost, KindPoll, KindPollAnswer,
		KindMyChatMember, KindChatMember, KindChatJoinRequest:
		return k
	case "callback":
		return KindCallbackQuery
	}
	return KindOther
}

// NeedsAck reports whether the kind requires exactly one deferred acknowledgement.
func (k Kind) NeedsAck() bool {
	return k == KindCallbackQuery || k == KindInlineQuery
}

// Media names an attachment carried by a message.
type Media string

const (
	MediaNone     Media = ""
	MediaSticker  Media = "sticker"
	MediaDocument Media = "document"
	MediaPhoto    Media = "photo"
	MediaVideo    Media = "video"
	MediaOther    Media = "other"
)

// User is the sender profile as reported by the platform.
type User struct {
	ID           int64
	FirstName    string
	Username     string
	LanguageCode string
	IsBot        bool
}

// Origin locates the event. Zero ids mean "absent"; platform ids are never zero.
type Origin struct {
	SenderID int64
	ChatID   int64
	ChatType string
}

// HasSender reports whether a sender id is known.
func (o Origin) HasSender() bool { return o.SenderID != 0 }

// HasChat reports whether a chat id is known.
func (o Origin) HasChat() bool { return o.ChatID != 0 }

// Private reports whether the chat is the sender's own private chat.
func (o Origin) Private() bool {
	return o.HasSender() && o.ChatID == o.SenderID
}

// Forward describes the original author of a forwarded message.
type Forward struct {
	FromID       int64
	FromUsername string
}

// Event is one inbound update. Raw keeps the platform value for handlers
// that need fields the neutral model does not carry.
type Event struct {
	ID     int
	Kind   Kind
	Origin Origin
	Sender *User

	// Text is the message text or caption.
	Text string
	// Data is the callback payload for callback queries.
	Data string
	// Query is the inline query text.
	Query string
	// QueryID is the platform id of the inline or callback query.
	QueryID string

	Media   Media
	Forward *Forward

	Raw any
}

// Command splits a leading bot command from the text.
// "/start@bot s_pack" yields ("/start", "s_pack", true).
func (e *Event) Command() (string, string, bool) {
	if e == nil {
		return "", "", false
	}
	text := strings.TrimSpace(e.Text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	name, payload, _ := strings.Cut(text, " ")
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	return strings.ToLower(name), strings.TrimSpace(payload), true
}

// Locale returns the sender language code, if any.
func (e *Event) Locale() string {
	if e == nil || e.Sender == nil {
		return ""
	}
	return e.Sender.LanguageCode
}
