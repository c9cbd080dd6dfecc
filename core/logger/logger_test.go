package logger

import (
	"errors"
	"log/slog"
	"testing"
	"unicode/utf8"

	coreconfig "github.com/m3rciful/stickerbot/core/config"
)

func TestSamplerRatio(t *testing.T) {
	s := newSampler(2, 5)
	admitted := 0
	for i := 0; i < 50; i++ {
		if s.Allow() {
			admitted++
		}
	}
	if admitted != 20 {
		t.Fatalf("admitted = %d, want 20", admitted)
	}
	s.Set(0, 0)
	for i := 0; i < 10; i++ {
		if !s.Allow() {
			t.Fatal("disabled sampler must admit everything")
		}
	}
	s.Set(9, 3)
	if !s.Allow() || !s.Allow() || !s.Allow() {
		t.Fatal("num above den must admit everything")
	}
}

func TestParseSample(t *testing.T) {
	tests := []struct {
		raw      string
		num, den int
		ok       bool
	}{
		{raw: "1/50", num: 1, den: 50, ok: true},
		{raw: " 3 / 10 ", num: 3, den: 10, ok: true},
		{raw: "20", num: 1, den: 20, ok: true},
		{raw: "0"},
		{raw: "x/2"},
		{raw: "1/0"},
		{raw: ""},
	}
	for _, tt := range tests {
		num, den, ok := parseSample(tt.raw)
		if num != tt.num || den != tt.den || ok != tt.ok {
			t.Fatalf("parseSample(%q) = %d, %d, %v", tt.raw, num, den, ok)
		}
	}
}

func TestResolveSettings(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.Logging.Profile = "dev"
	cfg.Logging.Level = "WARNING"
	cfg.Logging.DebugSample = "all"
	cfg.Logging.KeysOrder = "event, ,status"
	cfg.Logging.Dir = "logs"
	cfg.Logging.BotFile = "bot.log"

	s := resolve(cfg)
	if s.format != formatKV || s.level != slog.LevelWarn {
		t.Fatalf("format/level = %v/%v", s.format, s.level)
	}
	if s.num != 0 || s.den != 0 {
		t.Fatalf("sample = %d/%d", s.num, s.den)
	}
	if len(s.order) != 2 || s.order[0] != "event" || s.order[1] != "status" {
		t.Fatalf("order = %v", s.order)
	}
	if s.file == "" {
		t.Fatal("expected log file path")
	}

	if d := resolve(nil); d.format != formatJSON || d.num != 1 || d.den != 50 || d.file != "" {
		t.Fatalf("defaults = %+v", d)
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := Sanitize("a\x00b\u200bc\td\n\x7f"); got != "abc\td\n" {
		t.Fatalf("Sanitize = %q", got)
	}
	got := SanitizeLimit("Привет, мир", 6)
	if got != "Привет" || !utf8.ValidString(got) {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if got := SanitizeLimit("ok\xff", 10); got != "ok" {
		t.Fatalf("invalid byte kept: %q", got)
	}
	if SanitizeLimit("abc", 0) != "" {
		t.Fatal("zero limit must return empty")
	}
}

func TestPreviewAndErr(t *testing.T) {
	if s, cut := Preview([]string{"a", "b", "c"}, 2); s != "a, b" || !cut {
		t.Fatalf("Preview = %q, %v", s, cut)
	}
	if s, cut := Preview([]string{"a"}, 2); s != "a" || cut {
		t.Fatalf("Preview = %q, %v", s, cut)
	}
	if a := Err(errors.New("bad\x00 thing")); a.Key != "err" || a.Value.String() != "bad thing" {
		t.Fatalf("Err = %v", a)
	}
}
