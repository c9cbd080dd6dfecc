package telegram

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stickerbot/core/batch"
	"github.com/m3rciful/stickerbot/core/telegram/sender"
)

// Responder delivers the output of one update through Telebot. Messages go
// through the outbound queue; deferred acknowledgements are sent directly
// because each update takes exactly one and it must not be reordered.
type Responder struct {
	c     tele.Context
	queue *sender.Queue
}

// NewResponder binds a Telebot context to the outbound queue (nil sends synchronously).
func NewResponder(c tele.Context, q *sender.Queue) *Responder {
	return &Responder{c: c, queue: q}
}

// Context exposes the underlying Telebot context for platform calls.
func (r *Responder) Context() tele.Context { return r.c }

// chatID picks the sender lane: the chat when known, otherwise the user.
func (r *Responder) chatID() int64 {
	if chat := r.c.Chat(); chat != nil {
		return chat.ID
	}
	if u := r.c.Sender(); u != nil {
		return u.ID
	}
	return 0
}

// Send sends text to the update's chat (or its sender). opts are Telebot
// send options: *tele.SendOptions, *tele.ReplyMarkup, tele.ParseMode, tele.Option.
func (r *Responder) Send(ctx context.Context, text string, opts ...any) error {
	if r.c.Recipient() == nil {
		return errors.New("telegram: update has no recipient")
	}
	return r.queue.Do(ctx, sender.Job{Chat: r.chatID(), Action: "send.text", Method: "sendMessage", Run: func() error {
		_, err := r.c.Bot().Send(r.c.Recipient(), text, opts...)
		return err
	}})
}

// SendSticker sends a sticker by file id.
func (r *Responder) SendSticker(ctx context.Context, fileID string, opts ...any) error {
	if r.c.Recipient() == nil {
		return errors.New("telegram: update has no recipient")
	}
	return r.queue.Do(ctx, sender.Job{Chat: r.chatID(), Action: "send.sticker", Method: "sendSticker", Run: func() error {
		_, err := r.c.Bot().Send(r.c.Recipient(), &tele.Sticker{File: tele.File{FileID: fileID}}, opts...)
		return err
	}})
}

// SendDocument sends a file by file id as a document.
func (r *Responder) SendDocument(ctx context.Context, fileID string, opts ...any) error {
	if r.c.Recipient() == nil {
		return errors.New("telegram: update has no recipient")
	}
	return r.queue.Do(ctx, sender.Job{Chat: r.chatID(), Action: "send.document", Method: "sendDocument", Run: func() error {
		_, err := r.c.Bot().Send(r.c.Recipient(), &tele.Document{File: tele.File{FileID: fileID}}, opts...)
		return err
	}})
}

// AnswerInline answers the inline query with the accumulated results.
func (r *Responder) AnswerInline(_ context.Context, a batch.InlineAnswer) error {
	results := make(tele.Results, 0, len(a.Results))
	for i, v := range a.Results {
		res, ok := v.(tele.Result)
		if !ok {
			return fmt.Errorf("telegram: inline result %d has type %T", i, v)
		}
		results = append(results, res)
	}
	resp := &tele.QueryResponse{
		Results:    results,
		CacheTime:  a.CacheTime,
		IsPersonal: a.IsPersonal,
		NextOffset: a.NextOffset,
	}
	if a.SwitchPMText != "" {
		resp.Button = &tele.QueryResponseButton{Text: a.SwitchPMText, Start: a.SwitchPMParameter}
	}
	return r.c.Answer(resp)
}

// AnswerCallback acknowledges the button press.
func (r *Responder) AnswerCallback(_ context.Context, a batch.CallbackAnswer) error {
	return r.c.Respond(&tele.CallbackResponse{
		Text:      a.Text,
		ShowAlert: a.ShowAlert,
		URL:       a.URL,
	})
}
