package session

import (
	"context"
	"sync"
)

// Locker serializes work per key. Slots are reference counted and dropped
// once nobody holds or waits for them.
type Locker struct {
	mu    sync.Mutex
	slots map[Key]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocker returns an empty Locker.
func NewLocker() *Locker {
	return &Locker{slots: make(map[Key]*slot)}
}

// Lock blocks until key is free or ctx is done. The returned release func is idempotent.
func (l *Locker) Lock(ctx context.Context, key Key) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.drop(key, s)
		})
	}, nil
}

func (l *Locker) drop(key Key, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Pending reports how many keys are currently held or awaited.
func (l *Locker) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
