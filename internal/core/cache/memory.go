package cache

import (
	"sync"
	"time"
)

// DefaultMaxEntries bounds a MemoryCache created with a non-positive size.
const DefaultMaxEntries = 64

// MemoryCacheEntry is a cached value with its access bookkeeping.
type MemoryCacheEntry[V any] struct {
	Value        V
	LastAccessed int64
	Hits         int
}

// MemoryCache is a size-bounded cache that evicts the least recently
// accessed entry. It is safe for concurrent use.
type MemoryCache[V any] struct {
	mu         sync.Mutex
	entries    map[string]*MemoryCacheEntry[V]
	maxEntries int
	now        func() time.Time

	hits   int64
	misses int64
}

func NewMemoryCache[V any](maxEntries int) *MemoryCache[V] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryCache[V]{
		entries:    make(map[string]*MemoryCacheEntry[V]),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (mc *MemoryCache[V]) Set(key string, value V) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if entry, ok := mc.entries[key]; ok {
		entry.Value = value
		entry.LastAccessed = mc.now().UnixNano()
		return
	}
	if len(mc.entries) >= mc.maxEntries {
		mc.evictOldest()
	}
	mc.entries[key] = &MemoryCacheEntry[V]{Value: value, LastAccessed: mc.now().UnixNano()}
}

func (mc *MemoryCache[V]) Get(key string) (V, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	entry, ok := mc.entries[key]
	if !ok {
		mc.misses++
		var zero V
		return zero, false
	}
	mc.hits++
	entry.Hits++
	entry.LastAccessed = mc.now().UnixNano()
	return entry.Value, true
}

func (mc *MemoryCache[V]) Delete(key string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.entries, key)
}

func (mc *MemoryCache[V]) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.entries = make(map[string]*MemoryCacheEntry[V])
}

func (mc *MemoryCache[V]) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.entries)
}

// Stats returns lookup hit and miss counts.
func (mc *MemoryCache[V]) Stats() (hits, misses int64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.hits, mc.misses
}

// evictOldest removes the least recently accessed entry. Caller holds mu.
func (mc *MemoryCache[V]) evictOldest() {
	var (
		oldestKey string
		oldest    int64
		found     bool
	)
	for k, e := range mc.entries {
		if !found || e.LastAccessed < oldest {
			oldestKey, oldest, found = k, e.LastAccessed, true
		}
	}
	if found {
		delete(mc.entries, oldestKey)
	}
}
