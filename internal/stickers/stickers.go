package stickers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stickerbot/core/batch"
	"github.com/m3rciful/stickerbot/core/pipeline"
	"github.com/m3rciful/stickerbot/core/telegram/callbacks"
	"github.com/m3rciful/stickerbot/core/telegram/format"
	"github.com/m3rciful/stickerbot/core/telegram/keyboard"
	"github.com/m3rciful/stickerbot/core/telegram/ui"
)

const (
	lastStickerKey = "last_sticker"
	maxEmoji       = 20
	maxSlug        = 24
)

var packLinkRe = regexp.MustCompile(`addstickers/([A-Za-z0-9_]+)`)

// update returns the raw Telegram update behind the event.
func update(c *pipeline.Context) (tele.Update, bool) {
	upd, ok := c.Event.Raw.(tele.Update)
	return upd, ok
}

func rawMessage(c *pipeline.Context) *tele.Message {
	upd, ok := update(c)
	if !ok {
		return nil
	}
	if upd.Message != nil {
		return upd.Message
	}
	return upd.EditedMessage
}

// mediaFile returns the file id of the attachment, the file it originates
// from and the sticker emoji.
func mediaFile(m *tele.Message) (fileID, original, emoji string) {
	if m == nil {
		return "", "", ""
	}
	switch {
	case m.Sticker != nil:
		return m.Sticker.FileID, "", m.Sticker.Emoji
	case m.Document != nil:
		return m.Document.FileID, m.Document.FileID, ""
	case m.Photo != nil:
		return m.Photo.FileID, m.Photo.FileID, ""
	case m.Video != nil:
		return m.Video.FileID, m.Video.FileID, ""
	}
	return "", "", ""
}

func stickerRef(pack string, idx int) string {
	return pack + callbacks.Sep + strconv.Itoa(idx)
}

func parseStickerRef(ref string) (string, int, bool) {
	name, idx, ok := strings.Cut(ref, callbacks.Sep)
	if !ok || name == "" {
		return "", 0, false
	}
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 {
		return "", 0, false
	}
	return name, i, true
}

func (a *App) addSticker(c *pipeline.Context) error {
	fileID, original, emoji := mediaFile(rawMessage(c))
	if fileID == "" {
		return nil
	}
	ref := c.Session.Pack
	if ref.Name == "" {
		return a.noPack(c)
	}
	if on, _ := c.Session.Data[emojiKey].(bool); !on {
		emoji = ""
	}
	idx := -1
	err := a.catalog.Update(c.Context(), ref.Name, c.Event.Origin.SenderID, func(p *Pack) error {
		p.Stickers = append(p.Stickers, Sticker{FileID: fileID, Original: original, Emoji: emoji})
		idx = len(p.Stickers) - 1
		return nil
	})
	switch {
	case errors.Is(err, ErrPackNotFound):
		return a.noPack(c)
	case errors.Is(err, ErrNotOwner):
		return c.Reply(c.T("sticker.not_allowed"))
	case err != nil:
		return err
	}

	c.Session.Data[lastStickerKey] = stickerRef(ref.Name, idx)
	kb := keyboard.Single(keyboard.InlineBtn{
		Text:    c.T("sticker.btn.delete"),
		Action:  actDeleteSticker,
		Payload: stickerRef(ref.Name, idx),
	})
	return c.Reply(c.T("sticker.added", map[string]any{"title": format.HTML(ref.Title)}), htmlMode, kb)
}

// noPack clears a stale selection and points the user to the pack list.
func (a *App) noPack(c *pipeline.Context) error {
	c.Session.Pack.Name = ""
	c.Session.Pack.Public = false
	kb := keyboard.Single(keyboard.InlineBtn{Text: c.T("cmd.packs.new"), Action: actNewPack})
	return c.Reply(c.T("sticker.no_pack"), kb)
}

// markSticker deletes or restores the sticker addressed by "<pack>:<index>".
func (a *App) markSticker(deleted bool) pipeline.Handler {
	return func(c *pipeline.Context) error {
		parts, err := callbacks.Parts(c.Event.Data, callbacks.Sep)
		if err != nil || len(parts) != 2 {
			return c.AnswerCallback(batch.CallbackAnswer{Text: c.T("callback.unknown")})
		}
		name, idx, ok := parseStickerRef(parts[0] + callbacks.Sep + parts[1])
		if !ok {
			return c.AnswerCallback(batch.CallbackAnswer{Text: c.T("callback.unknown")})
		}
		err = a.catalog.Update(c.Context(), name, c.Event.Origin.SenderID, func(p *Pack) error {
			if idx >= len(p.Stickers) {
				return ErrStickerNotFound
			}
			p.Stickers[idx].Deleted = deleted
			return nil
		})
		if err != nil {
			return a.answerPackError(c, err)
		}
		if deleted {
			return c.AnswerCallback(batch.CallbackAnswer{Text: c.T("sticker.deleted")})
		}
		return c.AnswerCallback(batch.CallbackAnswer{Text: c.T("sticker.restored")})
	}
}

// setEmoji assigns the emoji of a message to the sticker added last.
func (a *App) setEmoji(c *pipeline.Context) error {
	ref, _ := c.Session.Data[lastStickerKey].(string)
	name, idx, ok := parseStickerRef(ref)
	if !ok {
		return a.fallback(c)
	}
	emoji := strings.TrimSpace(c.Event.Text)
	if utf8.RuneCountInString(emoji) > maxEmoji {
		emoji = string([]rune(emoji)[:maxEmoji])
	}
	err := a.catalog.Update(c.Context(), name, c.Event.Origin.SenderID, func(p *Pack) error {
		if idx >= len(p.Stickers) {
			return ErrStickerNotFound
		}
		p.Stickers[idx].Emoji = emoji
		return nil
	})
	switch {
	case errors.Is(err, ErrPackNotFound), errors.Is(err, ErrStickerNotFound), errors.Is(err, ErrNotOwner):
		delete(c.Session.Data, lastStickerKey)
		return a.fallback(c)
	case err != nil:
		return err
	}
	return c.Reply(c.T("sticker.emoji_set"))
}

// copyPack clones a known pack into a new pack owned by the sender.
func (a *App) copyPack(c *pipeline.Context) error {
	src, err := a.catalog.Pack(c.Context(), payload(c))
	if errors.Is(err, ErrPackNotFound) {
		return c.Reply(c.T("copy.unknown"))
	}
	if err != nil {
		return err
	}
	p := Pack{
		Name:  a.packName(src.Title),
		Title: src.Title,
		Type:  src.Type,
		Owner: c.Event.Origin.SenderID,
	}
	for _, s := range src.Stickers {
		if !s.Deleted {
			p.Stickers = append(p.Stickers, s)
		}
	}
	if err := a.catalog.Create(c.Context(), p); err != nil {
		return err
	}
	if _, err := a.choosePack(c, p.Name); err != nil {
		return err
	}
	return c.Reply(c.T("copy.done", map[string]any{"title": format.HTML(p.Title)}), htmlMode)
}

// restorePack reclaims a pack from a message forwarded from the platform's
// sticker bot, which only lists packs of their owner.
func (a *App) restorePack(c *pipeline.Context) error {
	text := c.Event.Text
	name := ""
	if m := packLinkRe.FindStringSubmatch(text); m != nil {
		name = m[1]
	} else if f := strings.Fields(text); len(f) > 0 {
		name = f[len(f)-1]
	}
	if !validPackName(name) {
		return c.Reply(c.T("pack.restore_unknown"))
	}
	owner := c.Event.Origin.SenderID
	err := a.catalog.Update(c.Context(), name, 0, func(p *Pack) error {
		p.Owner = owner
		p.Hidden = false
		return nil
	})
	if errors.Is(err, ErrPackNotFound) {
		err = a.catalog.Create(c.Context(), Pack{Name: name, Title: name, Type: TypeCommon, Owner: owner})
	}
	if err != nil {
		return err
	}
	p, err := a.choosePack(c, name)
	if err != nil {
		return err
	}
	return c.Reply(c.T("pack.restored", map[string]any{"title": format.HTML(p.Title)}), htmlMode)
}

func validPackName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		if r != '_' && !unicode.IsDigit(r) && !(r < unicode.MaxASCII && unicode.IsLetter(r)) {
			return false
		}
	}
	return true
}

// packName derives a unique platform pack name from a title.
func (a *App) packName(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if b.Len() >= maxSlug {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	slug := b.String()
	if slug == "" || slug[0] < 'a' {
		slug = "p" + slug
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_by_%s", slug, id, a.cfg.Stickers.BotUsername)
}

// inlineQuery answers with the stickers of the named pack, or of the
// sender's selected pack, paginated by the query offset.
func (a *App) inlineQuery(c *pipeline.Context) error {
	offset := 0
	if upd, ok := update(c); ok && upd.Query != nil {
		offset, _ = strconv.Atoi(upd.Query.Offset)
	}
	opts := []batch.InlineOption{
		batch.CacheTime(0),
		batch.Personal(),
		batch.SwitchPM(c.T("inline.switch_pm"), "inline_pack"),
	}

	p, ok := a.inlinePack(c.Context(), c.Event.Origin.SenderID, strings.TrimSpace(c.Event.Query), c.Session.Pack.Name)
	if !ok {
		return c.AnswerInline(nil, opts...)
	}
	results, next := ui.StickerResults(p.FileIDs(), offset)
	return c.AnswerInline(results, append(opts, batch.NextOffset(next))...)
}

func (a *App) inlinePack(ctx context.Context, owner int64, query, selected string) (Pack, bool) {
	for _, name := range []string{query, selected} {
		if name == "" {
			continue
		}
		p, err := a.catalog.Pack(ctx, name)
		if err == nil && (p.Owner == owner || p.Public) {
			return p, true
		}
	}
	packs, err := a.catalog.Packs(ctx, owner, TypeInline, false)
	if err != nil || len(packs) == 0 {
		return Pack{}, false
	}
	return packs[0], true
}
