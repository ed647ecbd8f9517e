package timelock

import (
	"container/list"
	"sync"
)

type (
	// bookCache keeps the most recently used Book projections
	bookCache struct {
		index   map[string]*list.Element
		lru     *list.List
		maxSize int
		mu      sync.Mutex
	}

	// bookEntry is locked for the whole of a Command so that commands on
	// the same Book within one process never race each other
	bookEntry struct {
		proj *projection
		key  string
		mu   sync.Mutex
	}

	projection struct {
		book    *Book
		nextSeq int64
	}
)

func newBookCache(maxSize int) *bookCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &bookCache{
		index:   map[string]*list.Element{},
		lru:     list.New(),
		maxSize: maxSize,
	}
}

func (c *bookCache) get(key string) *bookEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*bookEntry)
	}

	entry := &bookEntry{key: key}
	c.index[key] = c.lru.PushFront(entry)
	if c.lru.Len() > c.maxSize {
		c.evictLast()
	}
	return entry
}

func (c *bookCache) evictLast() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	c.lru.Remove(back)
	delete(c.index, back.Value.(*bookEntry).key)
}

func (c *bookCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
