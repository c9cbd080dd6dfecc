package telegram

import (
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/stickerbot/core/config"
)

const defaultPollTimeout = 10 * time.Second

// WebhookOptions declares webhook listener settings.
type WebhookOptions struct {
	Listen string
	Port   int
	URL    string
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
	// AllowedUpdates narrows the update kinds Telegram delivers; empty keeps the default set.
	AllowedUpdates []string
}

// PollTimeout returns the effective long polling timeout.
func (o PollerOptions) PollTimeout() time.Duration {
	if o.LongPollTimeoutSeconds <= 0 {
		return defaultPollTimeout
	}
	return time.Duration(o.LongPollTimeoutSeconds) * time.Second
}

// BuildPoller returns a Telebot poller based on provided options.
func BuildPoller(opts PollerOptions) tele.Poller {
	runMode := strings.ToLower(strings.TrimSpace(opts.RunMode))
	if runMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:         fmt.Sprintf("%s:%d", opts.Webhook.Listen, opts.Webhook.Port),
			AllowedUpdates: opts.AllowedUpdates,
			Endpoint:       &tele.WebhookEndpoint{PublicURL: opts.Webhook.URL},
		}
	}
	return &tele.LongPoller{
		Timeout:        opts.PollTimeout(),
		AllowedUpdates: opts.AllowedUpdates,
	}
}
