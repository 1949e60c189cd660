package asset

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// CacheStats reports hit/miss counts for observability.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
	SizeBytes int64
}

// cacheEntry is stored in the LRU list.
type cacheEntry struct {
	key  string
	data []byte
}

// ByteCache is a thread-safe LRU of fetched image bytes keyed by URL. It is
// shared by every compositor so a URL is downloaded once, while decoded
// images stay per slot.
type ByteCache struct {
	mu        sync.Mutex
	items     map[string]*list.Element
	order     *list.List // front = most recent
	maxBytes  int64
	usedBytes int64

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewByteCache creates a cache holding at most maxMB megabytes. If maxMB is
// <= 0, a default of 64 MB is used.
func NewByteCache(maxMB int) *ByteCache {
	if maxMB <= 0 {
		maxMB = 64
	}
	return &ByteCache{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		maxBytes: int64(maxMB) * 1024 * 1024,
	}
}

// Get returns the bytes cached for key.
func (c *ByteCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits.Add(1)
	return elem.Value.(*cacheEntry).data, true
}

// Put stores data under key, evicting least recently used entries to stay
// under the size limit. Entries larger than the whole cache are not stored.
func (c *ByteCache) Put(key string, data []byte) {
	size := int64(len(data))
	if size > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		old := elem.Value.(*cacheEntry)
		c.usedBytes += size - int64(len(old.data))
		old.data = data
		c.order.MoveToFront(elem)
	} else {
		c.items[key] = c.order.PushFront(&cacheEntry{key: key, data: data})
		c.usedBytes += size
	}

	for c.usedBytes > c.maxBytes && c.order.Len() > 1 {
		back := c.order.Back()
		entry := c.order.Remove(back).(*cacheEntry)
		delete(c.items, entry.key)
		c.usedBytes -= int64(len(entry.data))
		c.evictions.Add(1)
	}
}

// Stats returns current cache statistics.
func (c *ByteCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.order.Len(),
		SizeBytes: c.usedBytes,
	}
}
