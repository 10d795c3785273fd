package selfenc

import (
	"container/list"
	"sync"
)

// chunkCache is an LRU of decrypted sealed chunks keyed by chunk index. It is
// the only state shared between close workers, so it carries its own lock.
type chunkCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[int]*list.Element
	lru      *list.List
}

type cacheEntry struct {
	index int
	plain []byte
}

func newChunkCache(capacity int) *chunkCache {
	return &chunkCache{
		capacity: capacity,
		entries:  make(map[int]*list.Element),
		lru:      list.New(),
	}
}

// get returns the plaintext of chunk index. Callers must not modify it.
func (c *chunkCache) get(index int) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[index]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).plain, true
	}
	return nil, false
}

// put adds chunk index, evicting the least recently used entry when full.
// A zero capacity disables caching.
func (c *chunkCache) put(index int, plain []byte) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[index]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).plain = plain
		return
	}
	c.entries[index] = c.lru.PushFront(&cacheEntry{index: index, plain: plain})
	for c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).index)
	}
}

func (c *chunkCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
