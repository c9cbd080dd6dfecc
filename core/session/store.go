package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoSession is returned by stages that need a session when none was loaded.
var ErrNoSession = errors.New("session: not loaded")

// Store persists sessions by key. Load returns a default session for unknown keys.
type Store interface {
	Load(ctx context.Context, key Key) (*Session, error)
	Save(ctx context.Context, key Key, s *Session) error
}

// StoreError wraps a persistence failure with the operation and key.
type StoreError struct {
	Op  string
	Key Key
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("session %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Code satisfies the error code convention used by handler summaries.
func (e *StoreError) Code() string { return "store_" + e.Op }

// MemoryStore keeps encoded sessions in process memory. Each Load returns an
// independent copy so an event only publishes its changes through Save.
type MemoryStore struct {
	codec Codec
	mu    sync.RWMutex
	data  map[Key][]byte
}

// NewMemoryStore returns an empty MemoryStore using the JSON codec.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{codec: JSONCodec{}, data: make(map[Key][]byte)}
}

// Load decodes a copy of the stored session or returns a new one.
func (m *MemoryStore) Load(_ context.Context, key Key) (*Session, error) {
	m.mu.RLock()
	raw, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return New(), nil
	}
	s, err := m.codec.Decode(raw)
	if err != nil {
		return nil, &StoreError{Op: "load", Key: key, Err: err}
	}
	return s, nil
}

// Save encodes and stores the session.
func (m *MemoryStore) Save(_ context.Context, key Key, s *Session) error {
	if s == nil {
		return &StoreError{Op: "save", Key: key, Err: errors.New("nil session")}
	}
	raw, err := m.codec.Encode(s)
	if err != nil {
		return &StoreError{Op: "save", Key: key, Err: err}
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
