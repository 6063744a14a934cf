// Package cache implements the bounded result cache. Entries are
// partitioned by scope but share a single recency order, so pressure
// from one busy scope evicts the globally least recently used entry,
// whichever scope owns it.
package cache

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docpulse/runtime-node/internal/model"
)

type entry struct {
	scope          string
	key            string
	value          interface{}
	expiresAt      time.Time
	lastAccessedAt time.Time
	accessCount    uint64
}

// ResultCache is a scope-partitioned LRU cache with per-entry TTL.
// All methods are safe for concurrent use.
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]map[string]*list.Element
	order      *list.List // front = most recently used
	size       int
	maxEntries int
	defaultTTL time.Duration

	hits          uint64
	misses        uint64
	expired       uint64
	evictions     uint64
	totalAccesses uint64

	now    func() time.Time
	logger *zap.Logger
}

// NewResultCache creates a cache bounded to maxEntries entries.
// Entries stored without an explicit TTL expire after defaultTTL.
func NewResultCache(maxEntries int, defaultTTL time.Duration, logger *zap.Logger) *ResultCache {
	return &ResultCache{
		entries:    make(map[string]map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		now:        time.Now,
		logger:     logger,
	}
}

// Get returns the cached value for key within scope. An entry past its
// expiry is removed on the spot and reported as a miss.
func (c *ResultCache) Get(scope, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalAccesses++

	elem, ok := c.lookup(scope, key)
	if !ok {
		c.misses++
		return nil, false
	}

	e := elem.Value.(*entry)
	now := c.now()
	if now.After(e.expiresAt) {
		c.removeElement(elem)
		c.expired++
		c.misses++
		return nil, false
	}

	e.lastAccessedAt = now
	e.accessCount++
	c.order.MoveToFront(elem)
	c.hits++
	return e.value, true
}

// Set stores value under (scope, key). A ttl of zero uses the default.
// Overwriting an existing key refreshes its expiry and recency without
// changing the cache size. When a new key would push the cache past
// its bound, the least recently used entry is evicted first.
func (c *ResultCache) Set(scope, key string, value interface{}, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if elem, ok := c.lookup(scope, key); ok {
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = now.Add(ttl)
		e.lastAccessedAt = now
		c.order.MoveToFront(elem)
		return
	}

	for c.size >= c.maxEntries {
		c.evictOldest()
	}

	e := &entry{
		scope:          scope,
		key:            key,
		value:          value,
		expiresAt:      now.Add(ttl),
		lastAccessedAt: now,
	}
	elem := c.order.PushFront(e)
	byKey, ok := c.entries[scope]
	if !ok {
		byKey = make(map[string]*list.Element)
		c.entries[scope] = byKey
	}
	byKey[key] = elem
	c.size++
}

// Invalidate removes a single entry. It reports whether the entry
// existed.
func (c *ResultCache) Invalidate(scope, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.lookup(scope, key)
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

// InvalidateScope removes every entry belonging to scope and returns
// the number removed. Other scopes are untouched.
func (c *ResultCache) InvalidateScope(scope string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	byKey, ok := c.entries[scope]
	if !ok {
		return 0
	}
	removed := len(byKey)
	for _, elem := range byKey {
		c.order.Remove(elem)
	}
	delete(c.entries, scope)
	c.size -= removed
	return removed
}

// InvalidateAll clears the cache and returns the number of entries
// removed. Counters are preserved.
func (c *ResultCache) InvalidateAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := c.size
	c.entries = make(map[string]map[string]*list.Element)
	c.order.Init()
	c.size = 0
	return removed
}

// Cleanup actively removes entries past their expiry and returns the
// number removed. Intended to run as a scheduled maintenance job so
// expired entries do not linger until their next lookup.
func (c *ResultCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		e := elem.Value.(*entry)
		if now.After(e.expiresAt) {
			c.removeElement(elem)
			c.expired++
			removed++
		}
		elem = prev
	}

	if removed > 0 {
		c.logger.Debug("cache cleanup removed expired entries",
			zap.Int("removed", removed),
			zap.Int("remaining", c.size))
	}
	return removed
}

// Stats returns a point-in-time view of cache occupancy and traffic
func (c *ResultCache) Stats() model.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return model.CacheStats{
		Entries:       c.size,
		Expired:       c.expired,
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
		TotalAccesses: c.totalAccesses,
		MaxEntries:    c.maxEntries,
		DefaultTTL:    c.defaultTTL,
	}
}

// ScopeEntries returns the number of live entries held for scope
func (c *ResultCache) ScopeEntries(scope string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries[scope])
}

func (c *ResultCache) lookup(scope, key string) (*list.Element, bool) {
	byKey, ok := c.entries[scope]
	if !ok {
		return nil, false
	}
	elem, ok := byKey[key]
	return elem, ok
}

func (c *ResultCache) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	e := elem.Value.(*entry)
	c.removeElement(elem)
	c.evictions++
	c.logger.Debug("evicted least recently used entry",
		zap.String("scope", e.scope),
		zap.Time("last_accessed_at", e.lastAccessedAt))
}

func (c *ResultCache) removeElement(elem *list.Element) {
	e := elem.Value.(*entry)
	c.order.Remove(elem)
	byKey := c.entries[e.scope]
	delete(byKey, e.key)
	if len(byKey) == 0 {
		delete(c.entries, e.scope)
	}
	c.size--
}
