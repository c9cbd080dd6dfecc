// Package sender delivers outbound Telegram calls from a fixed set of lanes.
// Every chat maps to one lane, so a chat receives its messages in the order
// they were queued while different chats are served in parallel. Calls that
// fail transiently are retried with backoff.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stickerbot/core/logger"
	"github.com/m3rciful/stickerbot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned when a job arrives after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the job's lane has no free slot.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options controls the behaviour of the outbound queue.
type Options struct {
	// QueueSize is the total number of slots, split evenly across lanes.
	QueueSize int
	// Workers is the number of lanes, each drained by one goroutine.
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

// Job is one outbound Bot API call. Run must be safe to repeat when retries
// are enabled.
type Job struct {
	// Chat selects the lane; jobs with the same Chat run in order.
	Chat int64
	// Action names the call in logs ("send.text").
	Action string
	// Method is the Bot API method ("sendMessage").
	Method string
	Run    func() error
}

type queued struct {
	ctx context.Context
	job Job
	at  time.Time
}

// Queue executes outbound Telegram calls asynchronously with retries.
type Queue struct {
	opts  Options
	lanes []chan queued

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	sent      atomic.Uint64
	failed    atomic.Uint64
	retried   atomic.Uint64
	fallbacks atomic.Uint64
}

// Stats is a snapshot of the queue counters.
type Stats struct {
	Pending   int
	Sent      uint64
	Failed    uint64
	Retried   uint64
	Fallbacks uint64
}

// New starts a queue with defaults for zeroed options.
func New(opts Options) *Queue {
	opts = opts.withDefaults()
	depth := max(opts.QueueSize/opts.Workers, 1)
	q := &Queue{opts: opts, lanes: make([]chan queued, opts.Workers)}
	q.wg.Add(len(q.lanes))
	for i := range q.lanes {
		q.lanes[i] = make(chan queued, depth)
		go q.drain(q.lanes[i])
	}
	return q
}

func (q *Queue) lane(chat int64) chan queued {
	return q.lanes[uint64(chat)%uint64(len(q.lanes))]
}

// Enqueue places j on its chat's lane without blocking.
func (q *Queue) Enqueue(ctx context.Context, j Job) error {
	if j.Run == nil {
		return errors.New("telegram sender: job has no Run")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.lane(j.Chat) <- queued{ctx: context.WithoutCancel(ctx), job: j, at: time.Now()}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Do enqueues j, or runs it inline when its lane is full or the queue is
// closed so a reply is never dropped. An inline run may overtake jobs already
// queued for the same chat. A nil Queue always runs inline.
func (q *Queue) Do(ctx context.Context, j Job) error {
	if q == nil {
		return j.Run()
	}
	err := q.Enqueue(ctx, j)
	if !errors.Is(err, ErrQueueFull) && !errors.Is(err, ErrQueueClosed) {
		return err
	}
	q.fallbacks.Add(1)
	logger.Warn(ctx, "tg.sender", "queue.overflow",
		slog.String("action", j.Action),
		slog.Int64("chat_id", j.Chat),
		logger.Err(err),
	)
	return j.Run()
}

// ErrorCount returns the number of failed jobs.
func (q *Queue) ErrorCount() uint64 {
	return q.failed.Load()
}

// Stats returns the current counters.
func (q *Queue) Stats() Stats {
	pending := 0
	for _, l := range q.lanes {
		pending += len(l)
	}
	return Stats{
		Pending:   pending,
		Sent:      q.sent.Load(),
		Failed:    q.failed.Load(),
		Retried:   q.retried.Load(),
		Fallbacks: q.fallbacks.Load(),
	}
}

// Close stops accepting jobs and waits for the lanes to drain.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		for _, l := range q.lanes {
			close(l)
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) drain(lane <-chan queued) {
	defer q.wg.Done()
	for item := range lane {
		q.deliver(item)
	}
}

func (q *Queue) deliver(item queued) {
	ctx, cancel := context.WithTimeout(item.ctx, q.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts, err := q.attempt(ctx, item.job)
	attrs := []slog.Attr{
		slog.String("action", item.job.Action),
		slog.String("method", item.job.Method),
		slog.Int("attempts", attempts),
		slog.Duration("wait", start.Sub(item.at)),
		slog.Duration("duration", time.Since(start)),
	}
	switch {
	case err != nil:
		q.failed.Add(1)
		attrs = append(attrs,
			slog.String("err", redact(err)),
			slog.String("err_code", errorKind(err)),
		)
		logger.Error(item.ctx, "tg.sender", "send.fail", attrs...)
	case attempts > 1:
		q.sent.Add(1)
		logger.Info(item.ctx, "tg.sender", "send.recovered", attrs...)
	default:
		q.sent.Add(1)
		if logger.ShouldSampleDebug() {
			logger.Debug(item.ctx, "tg.sender", "send.ok", attrs...)
		}
	}
}

// attempt runs j until it succeeds, fails permanently, runs out of retries
// or ctx ends. It returns the number of calls made.
func (q *Queue) attempt(ctx context.Context, j Job) (int, error) {
	limit := q.opts.MaxRetries + 1
	for n := 1; ; n++ {
		err := j.Run()
		if err == nil || n >= limit || !netutil.ShouldRetry(err) {
			return n, err
		}
		q.retried.Add(1)
		timer := time.NewTimer(q.backoff(n, err))
		select {
		case <-ctx.Done():
			timer.Stop()
			return n, fmt.Errorf("%w: %w", ctx.Err(), err)
		case <-timer.C:
		}
	}
}

// backoff honours a flood wait, otherwise grows linearly with the attempt.
func (q *Queue) backoff(attempt int, err error) time.Duration {
	if wait, ok := netutil.RetryAfter(err); ok {
		return wait
	}
	return q.opts.RetryBackoff * time.Duration(attempt)
}

// errorKind buckets a failed call for the err_code log field.
func errorKind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if _, ok := netutil.RetryAfter(err); ok {
		return "flood"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return "dns"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "dial"
	}
	var alert tls.AlertError
	if errors.As(err, &alert) {
		return "tls"
	}
	switch code := apiCode(err); {
	case code >= 500:
		return "http_5xx"
	case code >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// apiCode extracts the Bot API error code, either from a typed telebot error
// or from the "(NNN)" suffix telebot appends to untyped ones.
func apiCode(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return 400
	}
	msg := err.Error()
	open, end := strings.LastIndexByte(msg, '('), strings.LastIndexByte(msg, ')')
	if open < 0 || end <= open+1 {
		return 0
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : end]))
	if convErr != nil {
		return 0
	}
	return code
}

// redact strips bot tokens from request URLs embedded in err.
func redact(err error) string {
	if err == nil {
		return ""
	}
	return logger.SanitizeLimit(tokenRe.ReplaceAllString(err.Error(), "bot<redacted>"), 256)
}
