package telegram

import (
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestBuildPoller(t *testing.T) {
	p := BuildPoller(PollerOptions{RunMode: "Webhook", Webhook: WebhookOptions{Listen: "0.0.0.0", Port: 8443, URL: "https://bot.example.com/hook"}})
	wh, ok := p.(*tele.Webhook)
	if !ok {
		t.Fatalf("poller = %T", p)
	}
	if wh.Listen != "0.0.0.0:8443" || wh.Endpoint.PublicURL != "https://bot.example.com/hook" {
		t.Fatalf("webhook = %+v", wh)
	}

	lp, ok := BuildPoller(PollerOptions{RunMode: "longpoll"}).(*tele.LongPoller)
	if !ok || lp.Timeout != 10*time.Second {
		t.Fatalf("long poller = %+v", lp)
	}
	lp, _ = BuildPoller(PollerOptions{LongPollTimeoutSeconds: 30}).(*tele.LongPoller)
	if lp.Timeout != 30*time.Second {
		t.Fatalf("timeout = %v", lp.Timeout)
	}
}
