package sender

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func job(chat int64, run func() error) Job {
	return Job{Chat: chat, Action: "send.text", Method: "sendMessage", Run: run}
}

func TestQueueRetriesTransientFailures(t *testing.T) {
	q := New(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	err := q.Enqueue(context.Background(), job(1, func() error {
		if calls.Add(1) < 3 {
			return timeoutErr{}
		}
		return nil
	}))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.Close()
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	if st := q.Stats(); st.Sent != 1 || st.Failed != 0 || st.Retried != 2 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestQueueDoesNotRetryPermanentFailures(t *testing.T) {
	q := New(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	_ = q.Enqueue(context.Background(), job(1, func() error {
		calls.Add(1)
		return errors.New("bad request")
	}))
	q.Close()
	if calls.Load() != 1 || q.ErrorCount() != 1 {
		t.Fatalf("calls = %d, errors = %d", calls.Load(), q.ErrorCount())
	}
}

func TestQueueGivesUpAtMaxDuration(t *testing.T) {
	q := New(Options{Workers: 1, MaxRetries: 10, RetryBackoff: time.Hour, MaxDuration: 20 * time.Millisecond})
	var calls atomic.Int32
	_ = q.Enqueue(context.Background(), job(1, func() error {
		calls.Add(1)
		return timeoutErr{}
	}))
	q.Close()
	if calls.Load() != 1 || q.ErrorCount() != 1 {
		t.Fatalf("calls = %d, errors = %d", calls.Load(), q.ErrorCount())
	}
}

func TestQueueKeepsChatOrder(t *testing.T) {
	q := New(Options{Workers: 4, QueueSize: 400})
	var (
		mu  sync.Mutex
		got = make(map[int64][]int)
	)
	for i := 0; i < 50; i++ {
		for chat := int64(-2); chat <= 2; chat++ {
			if err := q.Enqueue(context.Background(), job(chat, func() error {
				mu.Lock()
				got[chat] = append(got[chat], i)
				mu.Unlock()
				return nil
			})); err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
		}
	}
	q.Close()
	for chat, seq := range got {
		if len(seq) != 50 {
			t.Fatalf("chat %d got %d jobs", chat, len(seq))
		}
		for i, v := range seq {
			if v != i {
				t.Fatalf("chat %d out of order at %d: %v", chat, i, seq)
			}
		}
	}
	if st := q.Stats(); st.Sent != 250 || st.Pending != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestQueueFullFallsBackToSync(t *testing.T) {
	q := New(Options{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	_ = q.Enqueue(context.Background(), job(1, func() error {
		close(started)
		<-release
		return nil
	}))
	<-started
	// Fills the single slot while the lane is busy.
	_ = q.Enqueue(context.Background(), job(1, func() error { return nil }))

	ran := false
	if err := q.Do(context.Background(), job(1, func() error {
		ran = true
		return nil
	})); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !ran {
		t.Fatal("overflow job did not run inline")
	}
	close(release)
	q.Close()
	if st := q.Stats(); st.Fallbacks != 1 || st.Sent != 2 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestClosedQueueRunsSync(t *testing.T) {
	q := New(Options{})
	q.Close()
	q.Close()
	if err := q.Enqueue(context.Background(), job(1, func() error { return nil })); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Enqueue after close = %v", err)
	}
	ran := false
	_ = q.Do(context.Background(), job(1, func() error { ran = true; return nil }))
	if !ran {
		t.Fatal("Do after close did not run")
	}

	var nilQueue *Queue
	ran = false
	_ = nilQueue.Do(context.Background(), job(1, func() error { ran = true; return nil }))
	if !ran {
		t.Fatal("nil queue did not run")
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: context.DeadlineExceeded, want: "timeout"},
		{err: timeoutErr{}, want: "timeout"},
		{err: tele.FloodError{RetryAfter: 3}, want: "flood"},
		{err: &tele.Error{Code: 502, Description: "Bad Gateway"}, want: "http_5xx"},
		{err: errors.New("telegram: chat not found (400)"), want: "http_4xx"},
		{err: errors.New("boom"), want: "unknown"},
	}
	for _, tt := range tests {
		if got := errorKind(tt.err); got != tt.want {
			t.Fatalf("errorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRedact(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123:ABC-def/sendMessage": timeout`)
	if got := redact(err); got != `Post "https://api.telegram.org/bot<redacted>/sendMessage": timeout` {
		t.Fatalf("redacted = %s", got)
	}
}
