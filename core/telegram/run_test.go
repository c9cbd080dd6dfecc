package telegram

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stickerbot/core/middleware"
	"github.com/m3rciful/stickerbot/core/pipeline"
	"github.com/m3rciful/stickerbot/core/session"
)

type fakePoller struct{ updates []tele.Update }

func (f *fakePoller) Poll(_ *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	for _, u := range f.updates {
		select {
		case dest <- u:
		case <-stop:
			return
		}
	}
	<-stop
}

func TestPumpDispatchesEveryUpdate(t *testing.T) {
	var handled atomic.Int32
	router := pipeline.NewRouter()
	router.Fallback("count", func(c *pipeline.Context) error {
		n, _ := c.Session.Data["n"].(float64)
		c.Session.Data["n"] = n + 1
		handled.Add(1)
		return nil
	})
	store := session.NewMemoryStore()
	d, err := middleware.NewDispatcher(middleware.Options{Store: store, Router: router})
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}

	poller := &fakePoller{}
	for i := 1; i <= 30; i++ {
		poller.updates = append(poller.updates, tele.Update{ID: i, Message: &tele.Message{
			Sender: &tele.User{ID: int64(i%3 + 1)},
			Chat:   &tele.Chat{ID: int64(i%3 + 1), Type: tele.ChatPrivate},
			Text:   "hi",
		}})
	}
	pump := &Pump{
		Dispatcher: d,
		Workers:    4,
		Context:    func(tele.Update) tele.Context { return nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pump.Run(ctx, poller) }()

	deadline := time.After(5 * time.Second)
	for handled.Load() < 30 {
		select {
		case <-deadline:
			t.Fatalf("handled %d of 30", handled.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}

	total := 0.0
	for _, key := range []session.Key{"user:1", "user:2", "user:3"} {
		s, _ := store.Load(context.Background(), key)
		n, _ := s.Data["n"].(float64)
		total += n
	}
	if total != 30 {
		t.Fatalf("session counters = %v, want 30", total)
	}
}
