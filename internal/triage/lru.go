package triage

import (
	"container/list"
	"sync"
)

// hashCache is a bounded set of recently seen content hashes used for
// duplicate detection. Eviction is oldest-first. A single mutex guards the
// cache; the operation is O(1) so contention stays cheap.
type hashCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = newest, back = oldest
	entries  map[string]*list.Element
}

func newHashCache(capacity int) *hashCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &hashCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// Seen records the hash and reports whether it was already present.
func (c *hashCache) Seen(hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[hash]; ok {
		c.order.MoveToFront(el)
		return true
	}

	c.entries[hash] = c.order.PushFront(hash)
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(string))
	}
	return false
}

// Len returns the number of cached hashes.
func (c *hashCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
