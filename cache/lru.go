package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// lruTier is the hot tier: a bounded LRU over decoded entries. Pinned
// entries count against capacity but are never evicted.
type lruTier struct {
	mu        sync.Mutex
	capacity  int
	items     map[uint64]*list.Element
	evictList *list.List
	onEvict   func(id uint64, e *Entry)

	hits   atomic.Int64
	misses atomic.Int64
}

type lruEntry struct {
	id     uint64
	value  *Entry
	pinned bool
}

func newLRUTier(capacity int, onEvict func(id uint64, e *Entry)) *lruTier {
	return &lruTier{
		capacity:  capacity,
		items:     make(map[uint64]*list.Element),
		evictList: list.New(),
		onEvict:   onEvict,
	}
}

func (c *lruTier) get(id uint64) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[id]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(elem)
		return elem.Value.(*lruEntry).value, true
	}
	c.misses.Add(1)
	return nil, false
}

func (c *lruTier) set(id uint64, value *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[id]; ok {
		c.evictList.MoveToFront(elem)
		elem.Value.(*lruEntry).value = value
		return
	}

	elem := c.evictList.PushFront(&lruEntry{id: id, value: value})
	c.items[id] = elem
	c.evictLocked()
}

func (c *lruTier) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[id]; ok {
		c.evictList.Remove(elem)
		delete(c.items, id)
	}
}

func (c *lruTier) pin(id uint64, pinned bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[id]
	if !ok {
		return false
	}
	elem.Value.(*lruEntry).pinned = pinned
	return true
}

// evictLocked removes least-recently-used unpinned entries until the
// tier fits its capacity. With everything pinned the tier may overshoot;
// pins are an explicit caller promise.
func (c *lruTier) evictLocked() {
	for len(c.items) > c.capacity {
		elem := c.evictList.Back()
		for elem != nil && elem.Value.(*lruEntry).pinned {
			elem = elem.Prev()
		}
		if elem == nil {
			return
		}
		ent := elem.Value.(*lruEntry)
		c.evictList.Remove(elem)
		delete(c.items, ent.id)
		if c.onEvict != nil {
			c.onEvict(ent.id, ent.value)
		}
	}
}

func (c *lruTier) resize(capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if capacity < 1 {
		capacity = 1
	}
	c.capacity = capacity
	c.evictLocked()
}

func (c *lruTier) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
