// Package cache provides a bounded, content-addressed memo table.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// Memo maps content hashes to computed values. Entries never expire: a
// key is derived from the content itself, so a hit is always correct.
// It is safe for concurrent use.
type Memo[V any] struct {
	mu         sync.RWMutex
	store      map[string]V
	maxEntries int
	hits       int
	misses     int
}

// New creates a Memo holding at most maxEntries values. maxEntries <= 0
// means unbounded.
func New[V any](maxEntries int) *Memo[V] {
	return &Memo[V]{
		store:      make(map[string]V),
		maxEntries: maxEntries,
	}
}

// Key hashes the JSON encoding of v. Struct fields encode in declaration
// order and map keys are sorted by encoding/json, so the key does not
// depend on how the value was assembled.
func Key(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Get returns the memoized value for key.
func (m *Memo[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.store[key]
	if ok {
		m.hits++
	} else {
		m.misses++
	}
	return v, ok
}

// Set stores a value. If the memo is at capacity, an arbitrary entry is
// evicted to make room (map iteration order is random in Go).
func (m *Memo[V]) Set(key string, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.store[key]; !exists && m.maxEntries > 0 && len(m.store) >= m.maxEntries {
		for k := range m.store {
			delete(m.store, k)
			break
		}
	}
	m.store[key] = v
}

// Clear drops every entry.
func (m *Memo[V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = make(map[string]V)
	m.hits, m.misses = 0, 0
}

// Stats reports size and hit counts.
func (m *Memo[V]) Stats() (size, hits, misses int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store), m.hits, m.misses
}
