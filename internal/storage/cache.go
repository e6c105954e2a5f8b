package storage

import (
	"container/list"
	"sync"
	"time"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Key       string
	Value     interface{}
	ExpiresAt time.Time
}

// LRUCache is a thread-safe LRU cache with TTL support
type LRUCache struct {
	mu           sync.RWMutex
	capacity     int
	ttl          time.Duration
	items        map[string]*list.Element
	evictionList *list.List
}

// NewLRUCache creates a new LRU cache
func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	return &LRUCache{
		capacity:     capacity,
		ttl:          ttl,
		items:        make(map[string]*list.Element, capacity),
		evictionList: list.New(),
	}
}

// Get retrieves an item from the cache
func (c *LRUCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.items[key]; found {
		entry := elem.Value.(*CacheEntry)

		if time.Now().After(entry.ExpiresAt) {
			c.removeElement(elem)
			return nil, false
		}

		c.evictionList.MoveToFront(elem)
		return entry.Value, true
	}

	return nil, false
}

// Set adds or updates an item in the cache
func (c *LRUCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(c.ttl)

	if elem, found := c.items[key]; found {
		c.evictionList.MoveToFront(elem)
		entry := elem.Value.(*CacheEntry)
		entry.Value = value
		entry.ExpiresAt = expiresAt
		return
	}

	entry := &CacheEntry{
		Key:       key,
		Value:     value,
		ExpiresAt: expiresAt,
	}

	elem := c.evictionList.PushFront(entry)
	c.items[key] = elem

	if c.evictionList.Len() > c.capacity {
		c.removeOldest()
	}
}

// Delete removes an item from the cache
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.items[key]; found {
		c.removeElement(elem)
	}
}

// Clear removes all items from the cache
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element, c.capacity)
	c.evictionList.Init()
}

// Len returns the number of items currently cached
func (c *LRUCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.evictionList.Len()
}

// CleanupExpired removes all expired entries and returns the count removed
func (c *LRUCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0

	for elem := c.evictionList.Back(); elem != nil; {
		prev := elem.Prev()
		entry := elem.Value.(*CacheEntry)
		if now.After(entry.ExpiresAt) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}

	return removed
}

// removeOldest removes the least recently used item. Caller holds the lock.
func (c *LRUCache) removeOldest() {
	elem := c.evictionList.Back()
	if elem != nil {
		c.removeElement(elem)
	}
}

// removeElement removes an element. Caller holds the lock.
func (c *LRUCache) removeElement(elem *list.Element) {
	c.evictionList.Remove(elem)
	entry := elem.Value.(*CacheEntry)
	delete(c.items, entry.Key)
}
