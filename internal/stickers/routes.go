package stickers

import (
	"context"

	"github.com/m3rciful/stickerbot/core/batch"
	"github.com/m3rciful/stickerbot/core/bootstrap"
	"github.com/m3rciful/stickerbot/core/event"
	"github.com/m3rciful/stickerbot/core/middleware"
	"github.com/m3rciful/stickerbot/core/pipeline"
	"github.com/m3rciful/stickerbot/core/session"
	"github.com/m3rciful/stickerbot/core/telegram/callbacks"
	"github.com/m3rciful/stickerbot/core/telegram/commands"
)

// Callback actions.
const (
	actSetPack        = "set_pack"
	actHidePack       = "hide_pack"
	actPublish        = "publish"
	actDeleteSticker  = "delete_sticker"
	actRestoreSticker = "restore_sticker"
	actSetLanguage    = "set_language"
	actClub           = "club"
	actNewPack        = "new_pack"
)

// emojiExpr matches messages carrying an emoji.
const emojiExpr = `[\x{00a9}\x{00ae}\x{2000}-\x{3300}\x{1F000}-\x{1FAFF}]`

func (a *App) install(_ context.Context, w *bootstrap.Wiring) error {
	a.scenes = w.Scenes
	a.publicLimit = w.PublicPack
	if err := a.registerScenes(w.Scenes); err != nil {
		return err
	}

	limitPublic := middleware.PublicPackLimit(w.PublicPack, middleware.DefaultLimitNotice)
	limitTarget := middleware.PackLimit(w.PublicPack, middleware.DefaultLimitNotice, a.callbackPack)
	reg := w.Registry

	reg.RegisterCommand("/start", commands.Command{Handler: a.start, Description: "Start the bot"})
	reg.RegisterCommand("/packs", commands.Command{
		Handler: a.listPacks(TypeCommon), Description: "Your sticker packs", Buttons: []string{"cmd.start.btn.packs"},
	})
	reg.RegisterCommand("/inline", commands.Command{
		Handler: a.listPacks(TypeInline), Description: "Your inline packs", Buttons: []string{"cmd.start.btn.inline"},
	})
	reg.RegisterCommand("/anim", commands.Command{
		Handler: a.listPacks(TypeAnimated), Description: "Your animated packs", Buttons: []string{"cmd.start.btn.anim"},
	})
	reg.RegisterCommand("/video", commands.Command{
		Handler: a.listPacks(TypeVideo), Description: "Your video packs", Buttons: []string{"cmd.start.btn.video"},
	})
	reg.RegisterCommand("/new", commands.Command{
		Handler: a.newPack, Description: "Create a pack", Buttons: []string{"cmd.start.btn.new"},
	})
	reg.RegisterCommand("/club", commands.Command{
		Handler: a.club, Description: "Support the bot", Buttons: []string{"cmd.start.btn.club"},
	})
	reg.RegisterCommand("/public", commands.Command{Handler: a.public, Description: "Public packs"})
	reg.RegisterCommand("/emoji", commands.Command{Handler: a.emoji, Description: "Toggle emoji suffixes"})
	reg.RegisterCommand("/copy", commands.Command{Handler: a.notice("cmd.copy"), Description: "Copy a pack"})
	reg.RegisterCommand("/restore", commands.Command{Handler: a.notice("cmd.restore"), Description: "Restore a pack"})
	reg.RegisterCommand("/original", commands.Command{Handler: a.original, Description: "Get the original file of a sticker"})
	reg.RegisterCommand("/lang", commands.Command{Handler: a.language, Description: "Change language"})
	reg.RegisterCommand("/json", commands.Command{Handler: a.dumpJSON, Description: "Debug dump", Hidden: true})
	reg.RegisterCommand("/stats", commands.Command{Handler: a.stats, Description: "Bot statistics", AdminOnly: true})

	for _, cb := range []struct {
		action string
		h      pipeline.Handler
		gates  []pipeline.Gate
	}{
		{actSetPack, a.selectPackCallback, nil},
		{actHidePack, a.hidePack, nil},
		{actPublish, a.publish, nil},
		{actDeleteSticker, a.markSticker(true), []pipeline.Gate{limitTarget}},
		{actRestoreSticker, a.markSticker(false), []pipeline.Gate{limitTarget}},
		{actSetLanguage, a.setLanguage, nil},
		{actClub, a.clubCallback, nil},
		{actNewPack, a.newPack, nil},
	} {
		if err := reg.RegisterCallback(cb.action, cb.h, cb.gates...); err != nil {
			return err
		}
	}

	for _, rt := range []pipeline.Route{
		{Name: "forward.restore", Match: pipeline.Func(a.fromStickerBot), Handler: a.restorePack},
		{Name: "copy", Match: pipeline.Pattern(`addstickers/([A-Za-z0-9_]+)`, event.KindMessage), Handler: a.copyPack},
		{
			Name:    "sticker.add",
			Match:   pipeline.Media(event.MediaSticker, event.MediaDocument, event.MediaPhoto, event.MediaVideo),
			Gates:   []pipeline.Gate{limitPublic},
			Handler: a.addSticker,
		},
		{Name: "sticker.emoji", Match: pipeline.Pattern(emojiExpr, event.KindMessage), Handler: a.setEmoji},
		{Name: "inline", Match: pipeline.Kind(event.KindInlineQuery), Handler: a.inlineQuery},
	} {
		if err := reg.RegisterRoute(rt); err != nil {
			return err
		}
	}

	reg.SetCallbackNotFound(func(c *pipeline.Context) error {
		return c.AnswerCallback(batch.CallbackAnswer{Text: c.T("callback.unknown")})
	})
	reg.SetTextFallback(a.fallback)
	return nil
}

func (a *App) fromStickerBot(c *pipeline.Context) bool {
	f := c.Event.Forward
	return c.Event.Kind == event.KindMessage && f != nil && f.FromID == a.cfg.Stickers.RestoreBotID
}

// callbackPack targets the pack named first in a callback payload.
func (a *App) callbackPack(c *pipeline.Context) (session.PackRef, bool) {
	parts, err := callbacks.Parts(c.Event.Data, callbacks.Sep)
	if err != nil || parts[0] == "" {
		return session.PackRef{}, false
	}
	p, err := a.catalog.Pack(c.Context(), parts[0])
	if err != nil {
		return session.PackRef{}, false
	}
	return session.PackRef{Name: p.Name, Title: p.Title, Type: p.Type, Public: p.Public}, true
}

func (a *App) notice(key string) pipeline.Handler {
	return func(c *pipeline.Context) error {
		return c.Reply(c.T(key), htmlMode)
	}
}

// fallback greets private chat messages nothing else handled.
func (a *App) fallback(c *pipeline.Context) error {
	if c.Event.Kind != event.KindMessage || !c.Event.Origin.Private() {
		return nil
	}
	return a.greet(c)
}
