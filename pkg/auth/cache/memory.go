package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// shardCount spreads entries over independently locked shards so concurrent
// requests for unrelated tokens never contend on a single lock.
const shardCount = 32

// entry is a node in a shard's LRU list.
type entry struct {
	key     string
	verdict *Verdict
}

type shard struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int
}

// MemoryCache is a capacity-bounded in-memory verdict cache. Entries expire
// by TTL and the least-recently-used entry is evicted once a shard reaches
// its capacity. Locking is per shard, not global.
type MemoryCache struct {
	shards [shardCount]*shard

	// now is the clock; overridable in tests.
	now func() time.Time
}

// NewMemoryCache creates a memory cache bounded to roughly maxEntries.
func NewMemoryCache(maxEntries int) *MemoryCache {
	perShard := maxEntries / shardCount
	if perShard < 1 {
		perShard = 1
	}
	c := &MemoryCache{now: time.Now}
	for i := range c.shards {
		c.shards[i] = &shard{
			items:    make(map[string]*list.Element),
			order:    list.New(),
			capacity: perShard,
		}
	}
	return c
}

func (c *MemoryCache) shardFor(key string) *shard {
	// Keys are hex SHA-256 digests, so a cheap rolling hash spreads evenly.
	var h uint32
	for i := 0; i < len(key); i++ {
		h = h*31 + uint32(key[i])
	}
	return c.shards[h%shardCount]
}

// Get retrieves a cached verdict, or nil on miss or expiry.
func (c *MemoryCache) Get(_ context.Context, key string) (*Verdict, error) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	ent := elem.Value.(*entry)
	if c.now().After(ent.verdict.ExpiresAt) {
		s.order.Remove(elem)
		delete(s.items, key)
		return nil, nil
	}
	s.order.MoveToFront(elem)
	return ent.verdict, nil
}

// Set stores a verdict with the given TTL, evicting the least recently used
// entry if the shard is full.
func (c *MemoryCache) Set(_ context.Context, key string, verdict *Verdict, ttl time.Duration) error {
	stored := *verdict
	stored.ExpiresAt = c.now().Add(ttl)

	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		elem.Value.(*entry).verdict = &stored
		s.order.MoveToFront(elem)
		return nil
	}

	s.items[key] = s.order.PushFront(&entry{key: key, verdict: &stored})
	if s.order.Len() > s.capacity {
		oldest := s.order.Back()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.items, oldest.Value.(*entry).key)
		}
	}
	return nil
}

// Delete removes a verdict from the cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.order.Remove(elem)
		delete(s.items, key)
	}
	return nil
}

// Close releases resources. The memory backend has none.
func (*MemoryCache) Close() error {
	return nil
}
