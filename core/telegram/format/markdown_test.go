package format

import "testing"

func TestEscapeMarkdown(t *testing.T) {
	got, err := EscapeMarkdown("a_b*c", MarkdownV1)
	if err != nil || got != `a\_b\*c` {
		t.Fatalf("v1 = %q, %v", got, err)
	}
	got, err = EscapeMarkdown("1.5 (beta)!", MarkdownV2)
	if err != nil || got != `1\.5 \(beta\)\!` {
		t.Fatalf("v2 = %q, %v", got, err)
	}
	if _, err := EscapeMarkdown("x", 3); err == nil {
		t.Fatal("expected error for unknown version")
	}
}

func TestHTML(t *testing.T) {
	if got := Code(`{"a":"<b>"}`); got != `<code>{&#34;a&#34;:&#34;&lt;b&gt;&#34;}</code>` {
		t.Fatalf("code = %s", got)
	}
}
