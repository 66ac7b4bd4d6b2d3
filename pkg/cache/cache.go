// Package cache stores ranked shortlists keyed by image fingerprint.
// Eviction is first-in first-out; reads never change the eviction order.
package cache

import (
	"container/list"
	"sync"

	"github.com/menta2k/plate-analyzer/pkg/fingerprint"
	"github.com/menta2k/plate-analyzer/pkg/types"
)

// Stats reports cache effectiveness
type Stats struct {
	Hits     int64   `json:"cache_hits"`
	Misses   int64   `json:"cache_misses"`
	HitRate  float64 `json:"cache_hit_rate"`
	Size     int     `json:"cache_size"`
	Capacity int     `json:"cache_capacity"`
}

type entry struct {
	key    fingerprint.Fingerprint
	ranked []types.RecognitionResult
}

// Cache is a bounded FIFO map guarded by one mutex
type Cache struct {
	capacity int

	mu      sync.Mutex
	order   *list.List
	entries map[fingerprint.Fingerprint]*list.Element
	hits    int64
	misses  int64
}

// New creates a cache holding at most capacity entries.
// A capacity of zero or less disables caching.
func New(capacity int) *Cache {
	if capacity < 0 {
		capacity = 0
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[fingerprint.Fingerprint]*list.Element),
	}
}

// Get returns a copy of the shortlist stored for key
func (c *Cache) Get(key fingerprint.Fingerprint) ([]types.RecognitionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return clone(el.Value.(*entry).ranked), true
}

// Put stores ranked under key, evicting the oldest entry when full.
// Replacing an existing key keeps its original insertion position.
func (c *Cache) Put(key fingerprint.Fingerprint, ranked []types.RecognitionResult) {
	if c.capacity == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).ranked = clone(ranked)
		return
	}

	c.entries[key] = c.order.PushBack(&entry{key: key, ranked: clone(ranked)})
	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
}

// Len returns the number of stored entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit and miss counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:     c.hits,
		Misses:   c.misses,
		Size:     c.order.Len(),
		Capacity: c.capacity,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func clone(r []types.RecognitionResult) []types.RecognitionResult {
	return append([]types.RecognitionResult(nil), r...)
}
