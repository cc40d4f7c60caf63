package storage

import (
	"container/list"
	"regexp"
	"sync"
)

// regexCache is an LRU cache of compiled patterns keyed by source text.
type regexCache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type regexEntry struct {
	key string
	re  *regexp.Regexp
}

func newRegexCache(capacity int) *regexCache {
	return &regexCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// compile returns the cached regexp for pattern, compiling and storing it on a miss.
func (c *regexCache) compile(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	if elem, ok := c.cache[pattern]; ok {
		c.lru.MoveToFront(elem)
		re := elem.Value.(*regexEntry).re
		c.mu.Unlock()
		return re, nil
	}
	c.mu.Unlock()

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[pattern]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*regexEntry).re, nil
	}
	c.cache[pattern] = c.lru.PushFront(&regexEntry{key: pattern, re: re})
	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*regexEntry).key)
		}
	}
	return re, nil
}

func (c *regexCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
