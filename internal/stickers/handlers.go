package stickers

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stickerbot/core/batch"
	"github.com/m3rciful/stickerbot/core/event"
	"github.com/m3rciful/stickerbot/core/i18n"
	"github.com/m3rciful/stickerbot/core/pipeline"
	"github.com/m3rciful/stickerbot/core/session"
	"github.com/m3rciful/stickerbot/core/telegram/format"
	"github.com/m3rciful/stickerbot/core/telegram/keyboard"
	"github.com/m3rciful/stickerbot/core/telegram/sender"
)

const (
	htmlMode = tele.ModeHTML

	emojiKey      = "emoji"
	maxJSONLength = 3500
)

var localeNames = map[string]string{
	"en": "🇬🇧 English",
	"ru": "🇷🇺 Русский",
}

// payload returns the callback payload or the first regexp group.
func payload(c *pipeline.Context) string {
	if len(c.Match) > 1 {
		return c.Match[1]
	}
	return ""
}

func (a *App) start(c *pipeline.Context) error {
	_, arg, _ := c.Event.Command()
	switch {
	case arg == "inline_pack":
		return a.showPacks(c, TypeInline)
	case arg == "club":
		return a.club(c)
	case strings.HasPrefix(arg, "s_"):
		return a.selectPack(c, strings.TrimPrefix(arg, "s_"))
	}
	return a.greet(c)
}

func (a *App) greet(c *pipeline.Context) error {
	name := ""
	if c.Event.Sender != nil {
		name = c.Event.Sender.FirstName
	}
	kb := keyboard.ReplyButtons(
		[]string{c.T("cmd.start.btn.packs"), c.T("cmd.start.btn.new")},
		[]string{c.T("cmd.start.btn.inline"), c.T("cmd.start.btn.anim"), c.T("cmd.start.btn.video")},
		[]string{c.T("cmd.start.btn.club")},
	)
	return c.Reply(c.T("cmd.start.text", map[string]any{"name": name}), kb)
}

func (a *App) listPacks(t string) pipeline.Handler {
	return func(c *pipeline.Context) error {
		return a.showPacks(c, t)
	}
}

func (a *App) showPacks(c *pipeline.Context, t string) error {
	packs, err := a.catalog.Packs(c.Context(), c.Event.Origin.SenderID, t, false)
	if err != nil {
		return err
	}
	newBtn := keyboard.InlineBtn{Text: c.T("cmd.packs.new"), Action: actNewPack}
	if len(packs) == 0 {
		return c.Reply(c.T("cmd.packs.empty"), keyboard.Single(newBtn))
	}
	rows := make([][]keyboard.InlineBtn, 0, len(packs)+1)
	for _, p := range packs {
		title := p.Title
		if c.Session.Pack.Name == p.Name {
			title = "✅ " + title
		}
		rows = append(rows, []keyboard.InlineBtn{
			{Text: title, Action: actSetPack, Payload: p.Name},
			{Text: c.T("pack.btn.hide"), Action: actHidePack, Payload: p.Name},
			{Text: c.T("pack.btn.publish"), Action: actPublish, Payload: p.Name},
		})
	}
	rows = append(rows, []keyboard.InlineBtn{newBtn})
	return c.Reply(c.T("cmd.packs.title"), keyboard.InlineButtonsRows(rows...))
}

// choosePack makes name the session's selected pack when the sender may use it.
func (a *App) choosePack(c *pipeline.Context, name string) (Pack, error) {
	p, err := a.catalog.Pack(c.Context(), name)
	if err != nil {
		return Pack{}, err
	}
	if p.Owner != c.Event.Origin.SenderID && !p.Public {
		return Pack{}, ErrNotOwner
	}
	c.Session.Pack = session.PackRef{Name: p.Name, Title: p.Title, Type: p.Type, Public: p.Public}
	return p, nil
}

func (a *App) selectPack(c *pipeline.Context, name string) error {
	p, err := a.choosePack(c, name)
	switch {
	case errors.Is(err, ErrPackNotFound), errors.Is(err, ErrNotOwner):
		return c.Reply(c.T("pack.not_found"))
	case err != nil:
		return err
	}
	return c.Reply(c.T("pack.selected", map[string]any{"title": format.HTML(p.Title)}), htmlMode)
}

func (a *App) selectPackCallback(c *pipeline.Context) error {
	if err := c.AnswerCallback(batch.CallbackAnswer{}); err != nil {
		return err
	}
	return a.selectPack(c, payload(c))
}

func (a *App) hidePack(c *pipeline.Context) error {
	owner := c.Event.Origin.SenderID
	var hidden bool
	err := a.catalog.Update(c.Context(), payload(c), owner, func(p *Pack) error {
		if p.Owner != owner {
			return ErrNotOwner
		}
		p.Hidden = !p.Hidden
		hidden = p.Hidden
		return nil
	})
	if err != nil {
		return a.answerPackError(c, err)
	}
	if hidden && c.Session.Pack.Name == payload(c) {
		c.Session.Pack = session.PackRef{}
	}
	key := "pack.shown"
	if hidden {
		key = "pack.hidden"
	}
	return c.AnswerCallback(batch.CallbackAnswer{Text: c.T(key)})
}

// publish toggles whether everyone may add stickers to the pack.
func (a *App) publish(c *pipeline.Context) error {
	owner := c.Event.Origin.SenderID
	var public bool
	err := a.catalog.Update(c.Context(), payload(c), owner, func(p *Pack) error {
		if p.Owner != owner {
			return ErrNotOwner
		}
		p.Public = !p.Public
		public = p.Public
		return nil
	})
	if err != nil {
		return a.answerPackError(c, err)
	}
	if c.Session.Pack.Name == payload(c) {
		c.Session.Pack.Public = public
	}
	key := "pack.unpublished"
	if public {
		key = "pack.published"
	}
	return c.AnswerCallback(batch.CallbackAnswer{Text: c.T(key)})
}

func (a *App) answerPackError(c *pipeline.Context, err error) error {
	switch {
	case errors.Is(err, ErrPackNotFound):
		return c.AnswerCallback(batch.CallbackAnswer{Text: c.T("pack.not_found")})
	case errors.Is(err, ErrNotOwner):
		return c.AnswerCallback(batch.CallbackAnswer{Text: c.T("sticker.not_allowed"), ShowAlert: true})
	case errors.Is(err, ErrStickerNotFound):
		return c.AnswerCallback(batch.CallbackAnswer{Text: c.T("pack.not_found")})
	}
	return err
}

func (a *App) public(c *pipeline.Context) error {
	if _, arg, _ := c.Event.Command(); arg != "" {
		return a.selectPack(c, arg)
	}
	packs, err := a.catalog.PublicPacks(c.Context())
	if err != nil {
		return err
	}
	if len(packs) == 0 {
		return c.Reply(c.T("cmd.public.empty"))
	}
	buttons := make([]keyboard.InlineBtn, 0, len(packs))
	for _, p := range packs {
		buttons = append(buttons, keyboard.InlineBtn{Text: p.Title, Action: actSetPack, Payload: p.Name})
	}
	return c.Reply(c.T("cmd.public.title"), keyboard.InlineButtonsNPerRow(buttons, 2))
}

func (a *App) club(c *pipeline.Context) error {
	var opts []any
	if url := a.cfg.Stickers.ClubURL; url != "" {
		opts = append(opts, keyboard.Single(keyboard.InlineBtn{Text: c.T("cmd.club.btn"), URL: url}))
	}
	return c.Reply(c.T("cmd.club.text"), opts...)
}

func (a *App) clubCallback(c *pipeline.Context) error {
	return c.AnswerCallback(batch.CallbackAnswer{Text: c.T("cmd.club.text"), ShowAlert: true})
}

func (a *App) emoji(c *pipeline.Context) error {
	on, _ := c.Session.Data[emojiKey].(bool)
	on = !on
	c.Session.Data[emojiKey] = on
	if on {
		return c.Reply(c.T("cmd.emoji.on"))
	}
	return c.Reply(c.T("cmd.emoji.off"))
}

func (a *App) language(c *pipeline.Context) error {
	locales := a.tr.Locales()
	buttons := make([]keyboard.InlineBtn, 0, len(locales))
	for _, l := range locales {
		name, ok := localeNames[l]
		if !ok {
			name = l
		}
		buttons = append(buttons, keyboard.InlineBtn{Text: name, Action: actSetLanguage, Payload: l})
	}
	return c.Reply(c.T("cmd.lang.choose"), keyboard.InlineButtonsNPerRow(buttons, 2))
}

func (a *App) setLanguage(c *pipeline.Context) error {
	l := i18n.Normalize(payload(c))
	if !a.tr.Has(l) {
		return c.AnswerCallback(batch.CallbackAnswer{Text: c.T("callback.unknown")})
	}
	c.Session.Profile.Locale = l
	c.SetLocale(l)
	if err := c.AnswerCallback(batch.CallbackAnswer{Text: c.T("cmd.lang.changed")}); err != nil {
		return err
	}
	return a.greet(c)
}

func (a *App) dumpJSON(c *pipeline.Context) error {
	raw, err := json.MarshalIndent(c.Event.Raw, "", "  ")
	if err != nil {
		return err
	}
	return c.Reply(c.T("cmd.json")+"\n"+format.Code(truncate(string(raw), maxJSONLength)), htmlMode)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (a *App) stats(c *pipeline.Context) error {
	var st sender.Stats
	if q := a.queue.Load(); q != nil {
		st = q.Stats()
	}
	return c.Reply(c.T("cmd.admin.stats", map[string]any{
		"uptime":    time.Since(a.env.StartedAt).Round(time.Second).String(),
		"sent":      st.Sent,
		"failed":    st.Failed,
		"pending":   st.Pending,
		"fallbacks": st.Fallbacks,
	}))
}

func (a *App) newPack(c *pipeline.Context) error {
	if c.Event.Kind == event.KindCallbackQuery {
		if err := c.AnswerCallback(batch.CallbackAnswer{}); err != nil {
			return err
		}
	}
	return a.scenes.Enter(c, sceneNewPack, nil)
}

func (a *App) original(c *pipeline.Context) error {
	return a.scenes.Enter(c, sceneOriginal, nil)
}
