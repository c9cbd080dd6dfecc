// Package keyboard builds reply and inline keyboards whose buttons carry
// callback data in the "<action>:<payload>" form.
package keyboard

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stickerbot/core/telegram/callbacks"
)

// InlineBtn describes one inline button. Exactly one of Action, URL or
// SwitchInline should be meaningful; Action wins.
type InlineBtn struct {
	Text    string
	Action  string
	Payload string
	URL     string
	// SwitchInline opens inline mode in the current chat with this query.
	SwitchInline *string
}

// ForceReply returns a markup that forces the user to reply.
func ForceReply() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{ForceReply: true}
}

// RemoveKeyboard returns a markup that hides the keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// ReplyButtons builds a resized reply keyboard from rows of text.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	keyboard := make([]tele.Row, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tele.Btn, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		keyboard = append(keyboard, markup.Row(buttons...))
	}
	markup.Reply(keyboard...)
	return markup
}

// Button converts an InlineBtn into the Telebot type.
func Button(b InlineBtn) tele.InlineButton {
	btn := tele.InlineButton{Text: b.Text}
	switch {
	case b.Action != "":
		if b.Payload != "" {
			btn.Data = callbacks.Data(b.Action, b.Payload)
		} else {
			btn.Data = callbacks.Data(b.Action)
		}
	case b.URL != "":
		btn.URL = b.URL
	case b.SwitchInline != nil:
		btn.InlineQueryChat = *b.SwitchInline
	}
	return btn
}

// InlineButtons builds an inline keyboard with one button per row.
func InlineButtons(buttons []InlineBtn) *tele.ReplyMarkup {
	return InlineButtonsNPerRow(buttons, 1)
}

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	inline := make([][]tele.InlineButton, len(rows))
	for i, row := range rows {
		r := make([]tele.InlineButton, len(row))
		for j, b := range row {
			r[j] = Button(b)
		}
		inline[i] = r
	}
	return &tele.ReplyMarkup{InlineKeyboard: inline}
}

// InlineButtonsNPerRow splits a flat list of buttons into rows with up to n
// buttons per row. n <= 1 places each button on its own row.
func InlineButtonsNPerRow(buttons []InlineBtn, n int) *tele.ReplyMarkup {
	if n < 1 {
		n = 1
	}
	rows := make([][]InlineBtn, 0, (len(buttons)+n-1)/n)
	for i := 0; i < len(buttons); i += n {
		end := min(i+n, len(buttons))
		rows = append(rows, buttons[i:end])
	}
	return InlineButtonsRows(rows...)
}

// Single returns an inline keyboard with one button.
func Single(b InlineBtn) *tele.ReplyMarkup {
	return InlineButtonsRows([]InlineBtn{b})
}
