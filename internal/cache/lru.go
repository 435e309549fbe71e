// Package cache backs the scoring throttle and the upstream weather series
// cache. The memory backend is a single-node LRU; the redis backend shares
// counters across nodes and can keep a small LRU in front of it.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const defaultLocalMaxSize = 10000

// Stats is a point-in-time view of an in-process cache.
type Stats struct {
	Entries   int   `json:"entries"`
	Capacity  int   `json:"capacity"`
	Counters  int   `json:"counters"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// LRUCache is a bounded in-process cache with per-entry TTL and
// fixed-window counters.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	recency  *list.List
	windows  map[string]*window
	now      func() time.Time

	hits, misses, evictions int64
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

type window struct {
	count int64
	ends  time.Time
}

// NewLRUCache creates an LRU holding at most capacity entries. A
// non-positive capacity selects the default.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = defaultLocalMaxSize
	}
	c := &LRUCache{capacity: capacity, now: time.Now}
	c.reset()
	return c
}

func (c *LRUCache) reset() {
	c.entries = make(map[string]*list.Element)
	c.recency = list.New()
	c.windows = make(map[string]*window)
}

// Get returns the live value for key. Missing and expired keys return nil, nil.
func (c *LRUCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, nil
	}
	e := elem.Value.(*entry)
	if !c.now().Before(e.expiresAt) {
		c.drop(elem)
		c.misses++
		return nil, nil
	}

	c.recency.MoveToFront(elem)
	c.hits++
	return e.value, nil
}

// Set stores value under key until ttl elapses, evicting the least recently
// used entries beyond capacity.
func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry)
		e.value, e.expiresAt = value, expiresAt
		c.recency.MoveToFront(elem)
		return nil
	}

	c.entries[key] = c.recency.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	for c.recency.Len() > c.capacity {
		c.drop(c.recency.Back())
		c.evictions++
	}
	return nil
}

// Delete removes key if present.
func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.drop(elem)
	}
	return nil
}

// IncrementCounter counts hits on key inside a fixed window that opens on
// the first hit.
func (c *LRUCache) IncrementCounter(_ context.Context, key string, d time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if ok && now.Before(w.ends) {
		w.count++
		return w.count, nil
	}

	c.windows[key] = &window{count: 1, ends: now.Add(d)}
	if len(c.windows) > c.capacity {
		c.pruneWindows(now)
	}
	return 1, nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(context.Context) error { return nil }

// Close discards all entries and counters.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	return nil
}

// Stats reports occupancy and hit accounting.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.recency.Len(),
		Capacity:  c.capacity,
		Counters:  len(c.windows),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *LRUCache) pruneWindows(now time.Time) {
	for k, w := range c.windows {
		if !now.Before(w.ends) {
			delete(c.windows, k)
		}
	}
}

func (c *LRUCache) drop(elem *list.Element) {
	if elem == nil {
		return
	}
	c.recency.Remove(elem)
	delete(c.entries, elem.Value.(*entry).key)
}
