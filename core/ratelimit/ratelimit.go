// Package ratelimit implements sliding-window admission control per scope key.
package ratelimit

import (
	"sync"
	"time"
)

const sweepEvery = 1024

// Decision is the outcome of one admission attempt.
type Decision struct {
	Allowed bool
	// Notify is set on the first rejection of a window so callers send a single notice.
	Notify bool
	// RetryAfter is how long until the oldest admitted stamp leaves the window.
	RetryAfter time.Duration
}

// Limiter admits at most Limit events per key within Window.
// Rejected attempts are not recorded and do not consume budget.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
	takes   int
}

type window struct {
	stamps   []time.Time
	notified time.Time
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New returns a Limiter. A non-positive limit or window disables limiting.
func New(limit int, per time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		limit:   limit,
		window:  per,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limit > 0 && l.window > 0
}

// Limit returns the configured limit.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the configured window.
func (l *Limiter) Window() time.Duration { return l.window }

// Admit reports whether an event for key may proceed, recording it if so.
func (l *Limiter) Admit(key string) bool {
	return l.Take(key).Allowed
}

// Take performs the check-then-record step atomically for key.
func (l *Limiter) Take(key string) Decision {
	if !l.Enabled() {
		return Decision{Allowed: true}
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.takes++
	if l.takes%sweepEvery == 0 {
		l.sweepLocked(now)
	}

	w, ok := l.windows[key]
	if !ok {
		w = &window{}
		l.windows[key] = w
	}
	w.stamps = prune(w.stamps, now.Add(-l.window))

	if len(w.stamps) < l.limit {
		w.stamps = append(w.stamps, now)
		return Decision{Allowed: true}
	}

	d := Decision{RetryAfter: w.stamps[0].Add(l.window).Sub(now)}
	if w.notified.IsZero() || now.Sub(w.notified) >= l.window {
		w.notified = now
		d.Notify = true
	}
	return d
}

// Count returns the number of admitted events for key inside the current window.
func (l *Limiter) Count(key string) int {
	if !l.Enabled() {
		return 0
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok {
		return 0
	}
	w.stamps = prune(w.stamps, now.Add(-l.window))
	return len(w.stamps)
}

// Sweep drops windows that hold nothing relevant anymore.
func (l *Limiter) Sweep() int {
	if !l.Enabled() {
		return 0
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(now)
}

// Keys returns the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *Limiter) sweepLocked(now time.Time) int {
	cutoff := now.Add(-l.window)
	removed := 0
	for k, w := range l.windows {
		w.stamps = prune(w.stamps, cutoff)
		if len(w.stamps) == 0 && !w.notified.After(cutoff) {
			delete(l.windows, k)
			removed++
		}
	}
	return removed
}

// prune drops stamps at or before cutoff. Stamps are kept in arrival order.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}
