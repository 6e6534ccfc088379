// Package cache provides a small in-memory TTL cache. The service uses it
// to memoize currency minor-unit precisions, which change on the order of
// never; a process-local map is enough and keeps the hot reconciliation
// path off the network.
package cache

import (
	"sync"
	"time"
)

type item[T any] struct {
	val      T
	deadline time.Time
}

func (it item[T]) expired(now time.Time) bool {
	return now.After(it.deadline)
}

// InMemory is a thread-safe TTL cache keyed by string.
type InMemory[T any] struct {
	mu    sync.RWMutex
	items map[string]item[T]
	ttl   time.Duration
}

// New creates a cache whose entries live for ttl. A background goroutine
// sweeps expired entries once per ttl so long-forgotten keys do not pin
// memory.
func New[T any](ttl time.Duration) *InMemory[T] {
	c := &InMemory[T]{
		items: make(map[string]item[T]),
		ttl:   ttl,
	}
	go c.janitor()
	return c
}

// Get returns the cached value for key, or false when absent or expired.
func (c *InMemory[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || it.expired(time.Now()) {
		var zero T
		return zero, false
	}
	return it.val, true
}

// Set stores value under key for the configured TTL, replacing any
// previous entry.
func (c *InMemory[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item[T]{
		val:      value,
		deadline: time.Now().Add(c.ttl),
	}
}

// Delete removes key from the cache.
func (c *InMemory[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Len reports the number of stored entries, expired ones included until
// the next sweep.
func (c *InMemory[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

func (c *InMemory[T]) janitor() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for range ticker.C {
		c.sweep(time.Now())
	}
}

// sweep drops every entry whose deadline has passed.
func (c *InMemory[T]) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, it := range c.items {
		if it.expired(now) {
			delete(c.items, k)
		}
	}
}
