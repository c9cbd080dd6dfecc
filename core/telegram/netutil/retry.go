// Package netutil classifies Telegram API failures for retry decisions.
package netutil

import (
	"errors"
	"net"
	"net/url"
	"time"

	tele "gopkg.in/telebot.v4"
)

// ShouldRetry reports whether an error is worth retrying: transient dial and
// timeout failures produced by net/http, and flood control replies.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := RetryAfter(err); ok {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() || opErr.Op == "dial" {
			return true
		}
		if nested, ok := opErr.Err.(net.Error); ok && nested.Timeout() {
			return true
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		if urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
			return ShouldRetry(urlErr.Err)
		}
	}

	return false
}

// RetryAfter returns the wait requested by a flood control error.
func RetryAfter(err error) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second, true
	}
	var floodPtr *tele.FloodError
	if errors.As(err, &floodPtr) && floodPtr != nil && floodPtr.RetryAfter > 0 {
		return time.Duration(floodPtr.RetryAfter) * time.Second, true
	}
	return 0, false
}
