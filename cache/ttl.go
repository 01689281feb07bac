package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// ttlTier is the warm tier: an unordered map with per-entry deadlines.
// Expired entries are dropped lazily on read and swept on write when the
// tier outgrows its bound.
type ttlTier struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	items      map[uint64]ttlEntry
	now        func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

type ttlEntry struct {
	value    *Entry
	deadline time.Time
}

func newTTLTier(ttl time.Duration, maxEntries int) *ttlTier {
	return &ttlTier{
		ttl:        ttl,
		maxEntries: maxEntries,
		items:      make(map[uint64]ttlEntry),
		now:        time.Now,
	}
}

func (c *ttlTier) get(id uint64) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.items[id]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if c.now().After(ent.deadline) {
		delete(c.items, id)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return ent.value, true
}

func (c *ttlTier) set(id uint64, value *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) >= c.maxEntries {
		c.sweepLocked()
	}
	if len(c.items) >= c.maxEntries {
		// Still full after dropping expired entries. Evict the entry
		// closest to expiry; map order is fine as a tie-break.
		var victim uint64
		var victimDeadline time.Time
		first := true
		for k, v := range c.items {
			if first || v.deadline.Before(victimDeadline) {
				victim, victimDeadline = k, v.deadline
				first = false
			}
		}
		if !first {
			delete(c.items, victim)
		}
	}

	c.items[id] = ttlEntry{value: value, deadline: c.now().Add(c.ttl)}
}

func (c *ttlTier) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
}

func (c *ttlTier) resize(maxEntries int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if maxEntries < 1 {
		maxEntries = 1
	}
	c.maxEntries = maxEntries
	c.sweepLocked()
	for len(c.items) > c.maxEntries {
		var victim uint64
		var victimDeadline time.Time
		first := true
		for k, v := range c.items {
			if first || v.deadline.Before(victimDeadline) {
				victim, victimDeadline = k, v.deadline
				first = false
			}
		}
		delete(c.items, victim)
	}
}

func (c *ttlTier) sweepLocked() {
	now := c.now()
	for id, ent := range c.items {
		if now.After(ent.deadline) {
			delete(c.items, id)
		}
	}
}

func (c *ttlTier) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
