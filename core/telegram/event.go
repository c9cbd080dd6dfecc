package telegram

import (
	"encoding/json"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stickerbot/core/event"
	"github.com/m3rciful/stickerbot/core/telegram/callbacks"
)

// FromUpdate converts a Telegram update into a pipeline event. The update is
// kept in Raw for handlers that need platform fields.
func FromUpdate(upd tele.Update) *event.Event {
	ev := &event.Event{ID: upd.ID, Kind: event.KindOther, Raw: upd}
	switch {
	case upd.Message != nil:
		ev.Kind = event.KindMessage
		fillMessage(ev, upd.Message)
		ev.Forward = forwardOf(upd.Message)
	case upd.EditedMessage != nil:
		ev.Kind = event.KindEditedMessage
		fillMessage(ev, upd.EditedMessage)
	case upd.Callback != nil:
		cb := upd.Callback
		ev.Kind = event.KindCallbackQuery
		ev.QueryID = cb.ID
		ev.Data = callbacks.Normalize(cb.Data)
		setSender(ev, cb.Sender)
		if cb.Message != nil && cb.Message.Chat != nil {
			setChat(ev, cb.Message.Chat)
		}
	case upd.Query != nil:
		ev.Kind = event.KindInlineQuery
		ev.QueryID = upd.Query.ID
		ev.Query = upd.Query.Text
		setSender(ev, upd.Query.Sender)
	case upd.InlineResult != nil:
		ev.Kind = event.KindChosenInline
		ev.Query = upd.InlineResult.Query
		setSender(ev, upd.InlineResult.Sender)
	case upd.ChannelPost != nil:
		ev.Kind = event.KindChannelPost
		fillMessage(ev, upd.ChannelPost)
	case upd.EditedChannelPost != nil:
		ev.Kind = event.KindEditedChannelPost
		fillMessage(ev, upd.EditedChannelPost)
	case upd.Poll != nil:
		ev.Kind = event.KindPoll
	case upd.PollAnswer != nil:
		ev.Kind = event.KindPollAnswer
	case upd.MyChatMember != nil:
		ev.Kind = event.KindMyChatMember
		setSender(ev, upd.MyChatMember.Sender)
		setChat(ev, upd.MyChatMember.Chat)
	case upd.ChatMember != nil:
		ev.Kind = event.KindChatMember
		setSender(ev, upd.ChatMember.Sender)
		setChat(ev, upd.ChatMember.Chat)
	case upd.ChatJoinRequest != nil:
		ev.Kind = event.KindChatJoinRequest
		setSender(ev, upd.ChatJoinRequest.Sender)
		setChat(ev, upd.ChatJoinRequest.Chat)
	}
	return ev
}

func fillMessage(ev *event.Event, m *tele.Message) {
	setSender(ev, m.Sender)
	setChat(ev, m.Chat)
	ev.Text = m.Text
	if ev.Text == "" {
		ev.Text = m.Caption
	}
	switch {
	case m.Sticker != nil:
		ev.Media = event.MediaSticker
	case m.Document != nil:
		ev.Media = event.MediaDocument
	case m.Photo != nil:
		ev.Media = event.MediaPhoto
	case m.Video != nil:
		ev.Media = event.MediaVideo
	}
}

func setSender(ev *event.Event, u *tele.User) {
	if u == nil {
		return
	}
	ev.Origin.SenderID = u.ID
	ev.Sender = &event.User{
		ID:           u.ID,
		FirstName:    u.FirstName,
		Username:     u.Username,
		LanguageCode: u.LanguageCode,
		IsBot:        u.IsBot,
	}
}

func setChat(ev *event.Event, ch *tele.Chat) {
	if ch == nil {
		return
	}
	ev.Origin.ChatID = ch.ID
	ev.Origin.ChatType = string(ch.Type)
}

// forwardWire covers both the legacy forward_from field and forward_origin.
type forwardWire struct {
	From   *tele.User `json:"forward_from"`
	Origin *struct {
		Sender *tele.User `json:"sender_user"`
	} `json:"forward_origin"`
}

// forwardOf reads the original author of a forwarded message from its wire
// form, which is stable across Bot API revisions.
func forwardOf(m *tele.Message) *event.Forward {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	var w forwardWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil
	}
	u := w.From
	if u == nil && w.Origin != nil {
		u = w.Origin.Sender
	}
	if u == nil {
		return nil
	}
	return &event.Forward{FromID: u.ID, FromUsername: u.Username}
}
