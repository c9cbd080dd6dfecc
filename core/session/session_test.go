package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/stickerbot/core/event"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		origin event.Origin
		want   Key
		ok     bool
	}{
		{name: "private chat", origin: event.Origin{SenderID: 1, ChatID: 1}, want: "user:1", ok: true},
		{name: "no chat", origin: event.Origin{SenderID: 7}, want: "user:7", ok: true},
		{name: "group chat", origin: event.Origin{SenderID: 1, ChatID: 2}, want: "1:2", ok: true},
		{name: "negative group id", origin: event.Origin{SenderID: 5, ChatID: -100200}, want: "5:-100200", ok: true},
		{name: "chat without sender", origin: event.Origin{ChatID: 3}, ok: false},
		{name: "nothing", origin: event.Origin{}, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				got, ok := Resolve(tt.origin)
				if ok != tt.ok || got != tt.want {
					t.Fatalf("Resolve(%+v) = (%q, %v), want (%q, %v)", tt.origin, got, ok, tt.want, tt.ok)
				}
			}
		})
	}
}

func TestResolverPrefix(t *testing.T) {
	r := Resolver{UserPrefix: "u"}
	if got, _ := r.Resolve(event.Origin{SenderID: 9, ChatID: 9}); got != "u:9" {
		t.Fatalf("got %q", got)
	}
}

func TestMemoryStoreDefaultAndIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s, err := store.Load(ctx, "user:1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.InScene() || s.Data == nil {
		t.Fatalf("unexpected default session: %+v", s)
	}
	s.Pack = PackRef{Name: "cats", Public: true}
	s.Data["counter"] = "1"
	if err := store.Save(ctx, "user:1", s); err != nil {
		t.Fatalf("save: %v", err)
	}

	// mutations after save must not leak into the store
	s.Pack.Name = "dogs"

	again, err := store.Load(ctx, "user:1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Pack.Name != "cats" || !again.PublicPack() {
		t.Fatalf("reload pack = %+v", again.Pack)
	}
	if again.Data["counter"] != "1" {
		t.Fatalf("reload data = %+v", again.Data)
	}
	if store.Len() != 1 {
		t.Fatalf("len = %d", store.Len())
	}
}

func TestMemoryStoreSaveNil(t *testing.T) {
	err := NewMemoryStore().Save(context.Background(), "k", nil)
	var se *StoreError
	if !errors.As(err, &se) || se.Op != "save" {
		t.Fatalf("expected StoreError, got %v", err)
	}
}

func TestCodecsRoundTrip(t *testing.T) {
	cborCodec, err := NewCBORCodec()
	if err != nil {
		t.Fatalf("cbor codec: %v", err)
	}
	for name, codec := range map[string]Codec{"json": JSONCodec{}, "cbor": cborCodec} {
		t.Run(name, func(t *testing.T) {
			in := New()
			in.Profile.Locale = "ru"
			in.Scene = &SceneState{SceneID: "new_pack", Step: "title", Data: map[string]any{
				"type":   "video",
				"nested": map[string]any{"a": "b"},
			}}
			raw, err := codec.Encode(in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			out, err := codec.Decode(raw)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out.Locale() != "ru" || !out.InScene() || out.Scene.Step != "title" {
				t.Fatalf("decoded = %+v", out)
			}
			nested, ok := out.Scene.Data["nested"].(map[string]any)
			if !ok || nested["a"] != "b" {
				t.Fatalf("nested data = %#v", out.Scene.Data["nested"])
			}
		})
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	s, err := store.Load(ctx, "1:2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s.Pack = PackRef{Name: "memes", Type: "animated"}
	if err := store.Save(ctx, "1:2", s); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Pack.Type = "video"
	if err := store.Save(ctx, "1:2", s); err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, err := store.Load(ctx, "1:2")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Pack.Name != "memes" || got.Pack.Type != "video" {
		t.Fatalf("pack = %+v", got.Pack)
	}
}

func TestLockerSerializesSameKey(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, "user:1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			release()
			release()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("max concurrent holders = %d", maxSeen)
	}
	if l.Pending() != 0 {
		t.Fatalf("slots leaked: %d", l.Pending())
	}
}

func TestLockerDifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()
	release, err := l.Lock(ctx, "user:1")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	done := make(chan struct{})
	go func() {
		r, err := l.Lock(ctx, "user:2")
		if err == nil {
			r()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestLockerContextCancel(t *testing.T) {
	l := NewLocker()
	release, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	release()
	if l.Pending() != 0 {
		t.Fatalf("slots leaked: %d", l.Pending())
	}
}
