// Package batch accumulates deferred acknowledgements during one event and
// sends them once when processing ends.
package batch

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyFlushed is returned by a second Flush.
var ErrAlreadyFlushed = errors.New("batch: already flushed")

// InlineAnswer is the accumulated answer to an inline query.
type InlineAnswer struct {
	// Results hold transport specific result values, in append order.
	Results    []any
	CacheTime  int
	IsPersonal bool
	NextOffset string
	// SwitchPMText and SwitchPMParameter render the "switch to private chat" button.
	SwitchPMText      string
	SwitchPMParameter string
}

// CallbackAnswer is the accumulated acknowledgement of a button press.
type CallbackAnswer struct {
	Text      string
	ShowAlert bool
	URL       string
}

// Acknowledger performs the deferred transport calls.
type Acknowledger interface {
	AnswerInline(ctx context.Context, a InlineAnswer) error
	AnswerCallback(ctx context.Context, a CallbackAnswer) error
}

// InlineOption tweaks the inline answer envelope.
type InlineOption func(*InlineAnswer)

// CacheTime sets the cache time in seconds.
func CacheTime(seconds int) InlineOption {
	return func(a *InlineAnswer) { a.CacheTime = seconds }
}

// Personal marks results as user specific.
func Personal() InlineOption {
	return func(a *InlineAnswer) { a.IsPersonal = true }
}

// NextOffset sets the pagination offset.
func NextOffset(offset string) InlineOption {
	return func(a *InlineAnswer) { a.NextOffset = offset }
}

// SwitchPM renders a button leading to the private chat with a start parameter.
func SwitchPM(text, parameter string) InlineOption {
	return func(a *InlineAnswer) {
		a.SwitchPMText = text
		a.SwitchPMParameter = parameter
	}
}

// Batcher collects pending acknowledgements. Only the kinds it was created
// for are flushed, each at most once.
type Batcher struct {
	mu       sync.Mutex
	inline   *InlineAnswer
	callback *CallbackAnswer
	appended int
	flushed  bool
}

// New returns a Batcher that will acknowledge the requested kinds.
func New(inline, callback bool) *Batcher {
	b := &Batcher{}
	if inline {
		b.inline = &InlineAnswer{}
	}
	if callback {
		b.callback = &CallbackAnswer{}
	}
	return b
}

// AnswerInline appends results and applies envelope options.
// It reports false when the batcher does not acknowledge inline queries or was flushed.
func (b *Batcher) AnswerInline(results []any, opts ...InlineOption) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inline == nil || b.flushed {
		return false
	}
	b.inline.Results = append(b.inline.Results, results...)
	for _, opt := range opts {
		opt(b.inline)
	}
	b.appended++
	return true
}

// AnswerCallback merges a callback acknowledgement. The last non-empty text
// and URL win; an alert requested by any append is kept.
func (b *Batcher) AnswerCallback(a CallbackAnswer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.callback == nil || b.flushed {
		return false
	}
	if a.Text != "" {
		b.callback.Text = a.Text
	}
	if a.URL != "" {
		b.callback.URL = a.URL
	}
	b.callback.ShowAlert = b.callback.ShowAlert || a.ShowAlert
	b.appended++
	return true
}

// Appended returns the number of accepted appends.
func (b *Batcher) Appended() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appended
}

// Flushed reports whether Flush already ran.
func (b *Batcher) Flushed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushed
}

// Flush sends one call per acknowledged kind. Kinds with nothing appended get
// an empty acknowledgement. Errors from both calls are joined.
func (b *Batcher) Flush(ctx context.Context, ack Acknowledger) error {
	b.mu.Lock()
	if b.flushed {
		b.mu.Unlock()
		return ErrAlreadyFlushed
	}
	b.flushed = true
	inline, callback := b.inline, b.callback
	b.mu.Unlock()

	if ack == nil {
		return errors.New("batch: nil acknowledger")
	}
	var errs []error
	if inline != nil {
		if err := ack.AnswerInline(ctx, *inline); err != nil {
			errs = append(errs, err)
		}
	}
	if callback != nil {
		if err := ack.AnswerCallback(ctx, *callback); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
