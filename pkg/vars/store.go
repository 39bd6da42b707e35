// Package vars provides the external chat-variable store used to persist
// timed-effect state between evaluations. The engine reads and writes a
// single JSON value under one configurable key; everything else in the store
// belongs to the hosting application.
package vars

import (
	"encoding/json"
	"sync"
)

// Store is a minimal key-value surface over the hosting application's
// chat variables. Get returns false when the key is absent. Implementations
// must be safe for use from the goroutine running evaluate; they are not
// required to be safe for concurrent evaluations against the same key.
type Store interface {
	Get(key string) (json.RawMessage, bool)
	Set(key string, value json.RawMessage) error
}

// MemoryStore keeps variables in a plain map. Wrap shares the caller's map
// so external mutations remain visible both ways.
type MemoryStore struct {
	mu   sync.Mutex
	vars map[string]json.RawMessage
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vars: make(map[string]json.RawMessage)}
}

// Wrap adopts an existing variable map without copying it.
func Wrap(raw map[string]json.RawMessage) *MemoryStore {
	if raw == nil {
		raw = make(map[string]json.RawMessage)
	}
	return &MemoryStore{vars: raw}
}

func (s *MemoryStore) Get(key string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[key]
	return v, ok
}

func (s *MemoryStore) Set(key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[key] = value
	return nil
}
