package keyboard

import "testing"

func TestInlineButtonsNPerRow(t *testing.T) {
	buttons := []InlineBtn{
		{Text: "a", Action: "set_pack", Payload: "1"},
		{Text: "b", Action: "set_pack", Payload: "2"},
		{Text: "c", Action: "new_pack"},
	}
	markup := InlineButtonsNPerRow(buttons, 2)
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d", len(markup.InlineKeyboard))
	}
	if got := markup.InlineKeyboard[0][1].Data; got != "set_pack:2" {
		t.Fatalf("data = %q", got)
	}
	if got := markup.InlineKeyboard[1][0].Data; got != "new_pack" {
		t.Fatalf("data = %q", got)
	}
	if rows := InlineButtons(buttons).InlineKeyboard; len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
}

func TestButtonKinds(t *testing.T) {
	query := "pack"
	if b := Button(InlineBtn{Text: "x", URL: "https://t.me/addstickers/x"}); b.URL == "" || b.Data != "" {
		t.Fatalf("url button = %+v", b)
	}
	if b := Button(InlineBtn{Text: "x", SwitchInline: &query}); b.InlineQueryChat != "pack" {
		t.Fatalf("switch button = %+v", b)
	}
}

func TestReplyButtons(t *testing.T) {
	markup := ReplyButtons([]string{"one", "two"}, []string{"three"})
	if !markup.ResizeKeyboard || len(markup.ReplyKeyboard) != 2 || len(markup.ReplyKeyboard[0]) != 2 {
		t.Fatalf("markup = %+v", markup)
	}
}
