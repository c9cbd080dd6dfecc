package stickers

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/m3rciful/stickerbot/core/event"
	"github.com/m3rciful/stickerbot/core/pipeline"
	"github.com/m3rciful/stickerbot/core/scene"
	"github.com/m3rciful/stickerbot/core/telegram/format"
	"github.com/m3rciful/stickerbot/core/telegram/keyboard"
)

const (
	sceneNewPack  = "new_pack"
	sceneOriginal = "original_sticker"

	maxTitle = 64
)

var packTypes = []struct{ key, typ string }{
	{"scene.new_pack.type_common", TypeCommon},
	{"scene.new_pack.type_animated", TypeAnimated},
	{"scene.new_pack.type_video", TypeVideo},
	{"scene.new_pack.type_inline", TypeInline},
}

// documentSender is implemented by transports that can send files back.
type documentSender interface {
	SendDocument(ctx context.Context, fileID string, opts ...any) error
}

func (a *App) registerScenes(e *scene.Engine) error {
	if err := e.Register(scene.Scene{
		ID:    sceneNewPack,
		Enter: a.promptPackType,
		Steps: []scene.Step{
			{Name: "type", Handle: a.stepPackType},
			{Name: "title", Handle: a.stepPackTitle},
			{Name: "confirm", Handle: a.stepPackConfirm},
		},
	}); err != nil {
		return err
	}
	return e.Register(scene.Scene{
		ID: sceneOriginal,
		Enter: func(c *pipeline.Context, _ map[string]any) error {
			return c.Reply(c.T("scene.original.prompt"))
		},
		Steps: []scene.Step{{Name: "wait", Handle: a.stepOriginal}},
	})
}

// text returns the message text, or false for anything but a text message.
func text(c *pipeline.Context) (string, bool) {
	if c.Event.Kind != event.KindMessage || c.Event.Media != event.MediaNone {
		return "", false
	}
	return strings.TrimSpace(c.Event.Text), true
}

func (a *App) promptPackType(c *pipeline.Context, _ map[string]any) error {
	kb := keyboard.ReplyButtons(
		[]string{c.T(packTypes[0].key), c.T(packTypes[1].key)},
		[]string{c.T(packTypes[2].key), c.T(packTypes[3].key)},
	)
	return c.Reply(c.T("scene.new_pack.type"), kb)
}

func (a *App) stepPackType(c *pipeline.Context, data map[string]any) (scene.Result, error) {
	msg, ok := text(c)
	if !ok {
		return scene.Stay(), nil
	}
	for _, pt := range packTypes {
		if msg == c.T(pt.key) {
			data["type"] = pt.typ
			if err := c.Reply(c.T("scene.new_pack.title"), keyboard.RemoveKeyboard()); err != nil {
				return scene.Stay(), err
			}
			return scene.Advance("title", nil), nil
		}
	}
	return scene.Stay(), a.promptPackType(c, data)
}

func (a *App) stepPackTitle(c *pipeline.Context, data map[string]any) (scene.Result, error) {
	msg, ok := text(c)
	if !ok {
		return scene.Stay(), nil
	}
	if n := utf8.RuneCountInString(msg); n == 0 || n > maxTitle {
		return scene.Stay(), c.Reply(c.T("scene.new_pack.title_invalid"))
	}
	data["title"] = msg
	return scene.Advance("confirm", nil), a.promptConfirm(c, msg)
}

func (a *App) promptConfirm(c *pipeline.Context, title string) error {
	kb := keyboard.ReplyButtons([]string{c.T("scene.new_pack.yes"), c.T("scene.new_pack.no")})
	return c.Reply(c.T("scene.new_pack.confirm", map[string]any{"title": format.HTML(title)}), htmlMode, kb)
}

func (a *App) stepPackConfirm(c *pipeline.Context, data map[string]any) (scene.Result, error) {
	msg, ok := text(c)
	if !ok {
		return scene.Stay(), nil
	}
	title, _ := data["title"].(string)
	switch msg {
	case c.T("scene.new_pack.yes"):
		typ, _ := data["type"].(string)
		p := Pack{Name: a.packName(title), Title: title, Type: typ, Owner: c.Event.Origin.SenderID}
		if err := a.catalog.Create(c.Context(), p); err != nil {
			return scene.Stay(), err
		}
		if _, err := a.choosePack(c, p.Name); err != nil {
			return scene.Stay(), err
		}
		done := c.T("scene.new_pack.created", map[string]any{"title": format.HTML(title)})
		return scene.Leave(), c.Reply(done, htmlMode, keyboard.RemoveKeyboard())
	case c.T("scene.new_pack.no"):
		return scene.Leave(), c.Reply(c.T("scene.new_pack.cancelled"), keyboard.RemoveKeyboard())
	}
	return scene.Stay(), a.promptConfirm(c, title)
}

// stepOriginal returns the source file of a sticker the bot made.
func (a *App) stepOriginal(c *pipeline.Context, _ map[string]any) (scene.Result, error) {
	m := rawMessage(c)
	if m == nil || m.Sticker == nil {
		return scene.Stay(), c.Reply(c.T("scene.original.prompt"))
	}
	orig, ok, err := a.catalog.Original(c.Context(), m.Sticker.FileID)
	if err != nil {
		return scene.Stay(), err
	}
	if !ok {
		return scene.Leave(), c.Reply(c.T("scene.original.not_found"))
	}
	if ds, ok := c.Responder().(documentSender); ok {
		return scene.Leave(), ds.SendDocument(c.Context(), orig)
	}
	return scene.Leave(), c.Reply(format.Code(orig), htmlMode)
}
