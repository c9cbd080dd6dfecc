package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// lineWriter hands finished log lines to one background goroutine so a slow
// sink never holds an update worker. Lines are buffered and the buffer is
// flushed whenever the queue runs dry.
type lineWriter struct {
	lines  chan []byte
	syncs  chan chan error
	done   chan struct{}
	out    *bufio.Writer

	gate   sync.RWMutex
	closed bool

	mu  sync.Mutex
	err error
}

func newLineWriter(sinks []io.Writer, bufSize int) *lineWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	live := sinks[:0:0]
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	w := &lineWriter{
		lines: make(chan []byte, 512),
		syncs: make(chan chan error),
		done:  make(chan struct{}),
		out:   bufio.NewWriterSize(io.MultiWriter(live...), bufSize),
	}
	go w.run()
	return w
}

func (w *lineWriter) run() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.fail(w.out.Flush())
				return
			}
			w.write(line)
			if len(w.lines) == 0 {
				w.fail(w.out.Flush())
			}
		case ack := <-w.syncs:
			// Lines queued before the request must land before the ack.
			for n := len(w.lines); n > 0; n-- {
				line, ok := <-w.lines
				if !ok {
					break
				}
				w.write(line)
			}
			ack <- w.out.Flush()
		}
	}
}

func (w *lineWriter) write(line []byte) {
	if _, err := w.out.Write(line); err != nil {
		w.fail(err)
	}
}

// Write queues a copy of line. It blocks only while the queue is full.
func (w *lineWriter) Write(line []byte) error {
	if err := w.Err(); err != nil {
		return err
	}
	if len(line) == 0 {
		return nil
	}
	w.gate.RLock()
	defer w.gate.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.lines <- append([]byte(nil), line...)
	return nil
}

// Flush waits until every line queued so far has reached the sinks.
func (w *lineWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.syncs <- ack:
		return <-ack
	case <-w.done:
		return w.Err()
	}
}

// Close drains the queue and reports the first write error.
func (w *lineWriter) Close() error {
	w.gate.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.gate.Unlock()
	<-w.done
	return w.Err()
}

// Err returns the first error a sink reported.
func (w *lineWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *lineWriter) fail(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
}
