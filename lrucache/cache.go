/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"fmt"
	"sync"
)

// LRUCache is a bounded key-value store with strict recency eviction.
// Both reads (Get) and writes (Put) make a key the most recently used one.
// It is safe for concurrent use.
type LRUCache[K comparable, V any] struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[K]*node[K, V]
	order      recencyList[K, V]

	metricsCollector MetricsCollector
}

// New creates a new LRUCache that holds at most maxEntries entries.
// Metrics collector is used to collect statistics about cache usage.
// It can be nil, in this case, metrics will be disabled.
func New[K comparable, V any](maxEntries int, metricsCollector MetricsCollector) (*LRUCache[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0, got %d", maxEntries)
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetricsCollector
	}
	return &LRUCache[K, V]{
		maxEntries:       maxEntries,
		entries:          make(map[K]*node[K, V]),
		metricsCollector: metricsCollector,
	}, nil
}

// Get returns the value stored for the key and promotes the key to the most recently used position.
// On a miss the zero value and false are returned, and neither contents nor order change.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key)
}

// Peek returns the value stored for the key without updating its recency.
func (c *LRUCache[K, V]) Peek(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, hit := c.entries[key]; hit {
		return n.value, true
	}
	return value, false
}

// Contains reports whether the key is in the cache without updating its recency.
func (c *LRUCache[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Put stores the value for the key and makes the key the most recently used one.
// If the key is already present, its value is replaced.
// If the insertion of a new key makes the cache exceed its capacity, the least recently used entry is evicted.
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.entries[key]; ok {
		n.value = value
		c.order.moveToFront(n)
		return
	}
	c.addNew(key, value)
}

// GetOrPut returns the value stored for the key.
// If the key does not exist, the value returned by valueProvider is stored and returned.
// The check and the insertion happen atomically.
func (c *LRUCache[K, V]) GetOrPut(key K, valueProvider func() V) (value V, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value, exists = c.get(key); exists {
		return value, true
	}
	value = valueProvider()
	c.addNew(key, value)
	return value, false
}

// Remove deletes the key from the cache. It reports whether the key was present.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.unlink(n)
	delete(c.entries, key)
	c.metricsCollector.SetAmount(len(c.entries))
	return true
}

// Purge removes all entries. Removed entries are not counted as evictions.
func (c *LRUCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*node[K, V])
	c.order.reset()
	c.metricsCollector.SetAmount(0)
}

// Resize changes the capacity and returns the number of evicted entries.
// Non-positive sizes are ignored.
func (c *LRUCache[K, V]) Resize(size int) (evicted int) {
	if size <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxEntries = size
	for len(c.entries) > c.maxEntries {
		c.evictOldest()
		evicted++
	}
	if evicted > 0 {
		c.metricsCollector.SetAmount(len(c.entries))
		c.metricsCollector.AddEvictions(evicted)
	}
	return evicted
}

// Len returns the number of entries in the cache.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cap returns the maximum number of entries.
func (c *LRUCache[K, V]) Cap() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxEntries
}

// Keys returns all keys ordered from the most recently used to the least recently used.
func (c *LRUCache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.entries))
	for n := c.order.head; n != nil; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

func (c *LRUCache[K, V]) get(key K) (value V, ok bool) {
	n, hit := c.entries[key]
	if !hit {
		c.metricsCollector.IncMisses()
		return value, false
	}
	c.order.moveToFront(n)
	c.metricsCollector.IncHits()
	return n.value, true
}

func (c *LRUCache[K, V]) addNew(key K, value V) {
	n := &node[K, V]{key: key, value: value}
	c.entries[key] = n
	c.order.pushFront(n)
	if len(c.entries) > c.maxEntries {
		c.evictOldest()
		c.metricsCollector.AddEvictions(1)
	}
	c.metricsCollector.SetAmount(len(c.entries))
}

func (c *LRUCache[K, V]) evictOldest() {
	if n := c.order.popBack(); n != nil {
		delete(c.entries, n.key)
	}
}
