// ABOUTME: TTL cache of client message ids for idempotent message delivery
// ABOUTME: Remembers the reply of the first delivery so retries get the same answer

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Reply is what the first delivery of a message id returned to the client.
type Reply struct {
	EventID string `json:"eventId"`
	Adapter string `json:"adapter"`
}

// State describes a key passed to Claim.
type State int

const (
	// New means the caller now owns the key and must Complete or Release it.
	New State = iota
	// Pending means another caller owns the key and has not finished.
	Pending
	// Done means the key completed; the stored reply is returned.
	Done
)

type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
	reply     *Reply // nil while pending
}

// Cache is a thread-safe, TTL-based, size-limited map of message keys.
// Insertion order is kept in a linked list for O(1) eviction.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// NewCache creates a cache and starts its background cleanup.
func NewCache(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Claim atomically checks key and marks it pending if it is unknown or
// expired. For Done the first delivery's reply is returned.
func (c *Cache) Claim(key string) (State, Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[key]; ok && c.now().Sub(entry.timestamp) < c.ttl {
		if entry.reply == nil {
			return Pending, Reply{}
		}
		return Done, *entry.reply
	}

	c.markLocked(key, nil)
	return New, Reply{}
}

// Complete stores the reply for a claimed key.
func (c *Cache) Complete(key string, reply Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key, &reply)
}

// Release forgets a claimed key so the client may retry it.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.seen[key]; ok {
		c.order.Remove(entry.element)
		delete(c.seen, key)
	}
}

// Len returns the number of tracked keys, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// markLocked must be called with mu held.
func (c *Cache) markLocked(key string, reply *Reply) {
	now := c.now()

	if entry, exists := c.seen[key]; exists {
		entry.timestamp = now
		entry.reply = reply
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.seen[key] = &cacheEntry{timestamp: now, element: elem, reply: reply}
}

// evictOldest must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.seen {
		if now.Sub(entry.timestamp) >= c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the background cleanup. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
