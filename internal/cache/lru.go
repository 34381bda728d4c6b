// Package cache provides the replay and rate-limit stores for Kestrel.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const defaultLocalMaxSize = 10000

// LRUCache is the in-process store. It serves the community tier on its own
// and sits in front of Redis as the near tier of a TieredCache.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	index    map[string]*list.Element
	recency  *list.List // front is most recently used
	windows  map[string]*window
	now      func() time.Time
}

type lruItem struct {
	key     string
	value   []byte
	expires time.Time
}

type window struct {
	hits    int64
	resetAt time.Time
}

// Stats is a point-in-time view of an LRUCache.
type Stats struct {
	Entries  int
	Capacity int
	Counters int
}

// NewLRUCache holds at most capacity entries. A non-positive capacity uses the default.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = defaultLocalMaxSize
	}
	c := &LRUCache{capacity: capacity, now: time.Now}
	c.reset()
	return c
}

func (c *LRUCache) reset() {
	c.index = make(map[string]*list.Element)
	c.recency = list.New()
	c.windows = make(map[string]*window)
}

// live returns the element for k, dropping it when expired. Caller holds the lock.
func (c *LRUCache) live(k string, now time.Time) *list.Element {
	elem, ok := c.index[k]
	if !ok {
		return nil
	}
	if now.After(elem.Value.(*lruItem).expires) {
		c.drop(elem)
		return nil
	}
	return elem
}

func (c *LRUCache) drop(elem *list.Element) {
	delete(c.index, elem.Value.(*lruItem).key)
	c.recency.Remove(elem)
}

// put inserts or replaces k and evicts past capacity. Caller holds the lock.
func (c *LRUCache) put(k string, value []byte, expires time.Time) {
	if elem, ok := c.index[k]; ok {
		item := elem.Value.(*lruItem)
		item.value, item.expires = value, expires
		c.recency.MoveToFront(elem)
		return
	}
	c.index[k] = c.recency.PushFront(&lruItem{key: k, value: value, expires: expires})
	for c.recency.Len() > c.capacity {
		c.drop(c.recency.Back())
	}
}

func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem := c.live(k, c.now())
	if elem == nil {
		return nil, nil
	}
	c.recency.MoveToFront(elem)
	return elem.Value.(*lruItem).value, nil
}

func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(k, value, c.now().Add(ttl))
	return nil
}

func (c *LRUCache) SetIfAbsent(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) (bool, error) {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.live(k, now) != nil {
		return false, nil
	}
	c.put(k, value, now.Add(ttl))
	return true, nil
}

func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.index[k]; ok {
		c.drop(elem)
	}
	return nil
}

func (c *LRUCache) IncrementCounter(ctx context.Context, tenantID string, key string, span time.Duration) (int64, error) {
	k, err := scopedKey(tenantID, counterPrefix+key)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if w, ok := c.windows[k]; ok && !now.After(w.resetAt) {
		w.hits++
		return w.hits, nil
	}
	if len(c.windows) >= c.capacity {
		c.sweepWindows(now)
	}
	c.windows[k] = &window{hits: 1, resetAt: now.Add(span)}
	return 1, nil
}

// sweepWindows drops closed counter windows. Caller holds the lock.
func (c *LRUCache) sweepWindows(now time.Time) {
	for k, w := range c.windows {
		if now.After(w.resetAt) {
			delete(c.windows, k)
		}
	}
}

func (c *LRUCache) Ping(ctx context.Context) error { return nil }

// Close empties the cache. It stays usable afterwards.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	return nil
}

func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: c.recency.Len(), Capacity: c.capacity, Counters: len(c.windows)}
}

var _ domain.Cache = (*LRUCache)(nil)
