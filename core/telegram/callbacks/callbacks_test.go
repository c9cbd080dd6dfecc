package callbacks

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"\fset_pack|42":  "set_pack:42",
		"\fnew_pack":     "new_pack",
		"\fnew_pack|":    "new_pack",
		"hide_pack:7":    "hide_pack:7",
		"":               "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDataAndSplit(t *testing.T) {
	data := Data("delete_sticker", "abc")
	if data != "delete_sticker:abc" {
		t.Fatalf("data = %s", data)
	}
	action, payload := Split(data)
	if action != "delete_sticker" || payload != "abc" {
		t.Fatalf("split = %s %s", action, payload)
	}
	if Data("club") != "club" {
		t.Fatal("action without payload")
	}
}

func TestPayloadParsing(t *testing.T) {
	n, err := Int64("set_pack:42")
	if err != nil || n != 42 {
		t.Fatalf("Int64 = %d, %v", n, err)
	}
	a, b, err := TwoInt64("move:1|2", "|")
	if err != nil || a != 1 || b != 2 {
		t.Fatalf("TwoInt64 = %d %d %v", a, b, err)
	}
	if _, _, err := TwoInt64("move:1", "|"); err == nil {
		t.Fatal("expected syntax error")
	}
	if _, err := Parts("club", "|"); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
