// ABOUTME: Tests for the message id cache used for idempotent delivery
// ABOUTME: Validates claim states, TTL expiry, eviction, release and concurrency safety

package dedupe

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration, maxSize int) *Cache {
	t.Helper()
	c := NewCache(ttl, maxSize)
	t.Cleanup(c.Close)
	return c
}

func TestCache_ClaimLifecycle(t *testing.T) {
	c := newTestCache(t, 5*time.Minute, 100)

	state, _ := c.Claim("s1:m1")
	assert.Equal(t, New, state)

	state, _ = c.Claim("s1:m1")
	assert.Equal(t, Pending, state)

	c.Complete("s1:m1", Reply{EventID: "ev-1", Adapter: "ollama"})

	state, reply := c.Claim("s1:m1")
	assert.Equal(t, Done, state)
	assert.Equal(t, Reply{EventID: "ev-1", Adapter: "ollama"}, reply)
}

func TestCache_Release(t *testing.T) {
	c := newTestCache(t, 5*time.Minute, 100)

	state, _ := c.Claim("k")
	require.Equal(t, New, state)
	c.Release("k")

	state, _ = c.Claim("k")
	assert.Equal(t, New, state, "released key can be claimed again")

	// Releasing an unknown key is a no-op
	c.Release("unknown")
	assert.Equal(t, 1, c.Len())
}

func TestCache_Expiry(t *testing.T) {
	c := newTestCache(t, time.Minute, 100)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Claim("k")
	c.Complete("k", Reply{EventID: "ev"})

	now = now.Add(2 * time.Minute)
	state, _ := c.Claim("k")
	assert.Equal(t, New, state, "expired key is claimable")
}

func TestCache_RemoveExpired(t *testing.T) {
	c := newTestCache(t, time.Minute, 100)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Claim("old")
	now = now.Add(30 * time.Second)
	c.Claim("fresh")
	now = now.Add(45 * time.Second)

	c.removeExpired()

	assert.Equal(t, 1, c.Len())
	state, _ := c.Claim("fresh")
	assert.Equal(t, Pending, state)
}

func TestCache_EvictsOldest(t *testing.T) {
	c := newTestCache(t, 5*time.Minute, 3)

	for _, k := range []string{"a", "b", "c", "d"} {
		c.Claim(k)
	}

	assert.Equal(t, 3, c.Len())
	state, _ := c.Claim("a")
	assert.Equal(t, New, state, "oldest key was evicted")
}

func TestCache_ConcurrentClaims(t *testing.T) {
	c := newTestCache(t, 5*time.Minute, 1000)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if state, _ := c.Claim("same"); state == New {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestCache_CloseIdempotent(t *testing.T) {
	c := NewCache(time.Minute, 10)
	c.Close()
	c.Close()
}
