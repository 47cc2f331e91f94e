// Package embedcache provides a byte-budgeted LRU cache for embedding
// vectors, shared read-mostly across maintenance workers (§5: "Embedding
// cache (LRU, default 10 MiB) may be shared read-mostly across workers with
// a per-entry generation counter").
package embedcache

import (
	"container/list"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

var caser = cases.Fold()

const floatSize = 8 // bytes per float64

// Cache is an LRU, byte-budgeted, TTL-bounded cache mapping normalized text
// to its embedding vector. Every write bumps a monotonic generation counter;
// Get returns the generation an entry was last written at so a caller
// holding a stale read (e.g. a consolidation pass sampled before a
// re-embedding completed) can detect it without locking out other readers.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*list.Element
	lru        *list.List
	maxBytes   int64
	usedBytes  int64
	ttl        time.Duration
	generation uint64

	hits, misses, evictions int64
}

type entry struct {
	key        string
	value      []float64
	generation uint64
	createdAt  time.Time
}

// New creates a cache bounded by maxBytes of vector storage (keys and
// bookkeeping overhead are not counted) and a per-entry TTL.
func New(maxBytes int64, ttl time.Duration) *Cache {
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		maxBytes: maxBytes,
		ttl:      ttl,
	}
}

// Get returns the cached embedding for text along with the generation it
// was written at. The second return is false on a miss or expiry.
func (c *Cache) Get(text string) ([]float64, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := hashKey(text)
	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, 0, false
	}

	e := elem.Value.(*entry)
	if time.Since(e.createdAt) > c.ttl {
		c.removeElement(elem)
		c.misses++
		return nil, 0, false
	}

	c.lru.MoveToFront(elem)
	c.hits++

	out := make([]float64, len(e.value))
	copy(out, e.value)
	return out, e.generation, true
}

// Set stores an embedding, bumping the cache's global generation counter,
// and returns the generation this write was recorded at.
func (c *Cache) Set(text string, vector []float64) uint64 {
	if len(vector) == 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	gen := c.generation
	key := hashKey(text)

	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry)
		c.usedBytes -= int64(len(e.value)) * floatSize
		e.value = append([]float64(nil), vector...)
		e.generation = gen
		e.createdAt = time.Now()
		c.usedBytes += int64(len(e.value)) * floatSize
		c.lru.MoveToFront(elem)
		c.evictUntilWithinBudget()
		return gen
	}

	e := &entry{
		key:        key,
		value:      append([]float64(nil), vector...),
		generation: gen,
		createdAt:  time.Now(),
	}
	elem := c.lru.PushFront(e)
	c.entries[key] = elem
	c.usedBytes += int64(len(e.value)) * floatSize

	c.evictUntilWithinBudget()
	return gen
}

// Generation returns the cache's current global generation counter.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

func (c *Cache) evictUntilWithinBudget() {
	for c.usedBytes > c.maxBytes {
		back := c.lru.Back()
		if back == nil {
			return
		}
		c.removeElement(back)
		c.evictions++
	}
}

func (c *Cache) removeElement(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(c.entries, e.key)
	c.lru.Remove(elem)
	c.usedBytes -= int64(len(e.value)) * floatSize
}

// Clear empties the cache without resetting the generation counter — readers
// holding an old generation number still correctly detect staleness.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru = list.New()
	c.usedBytes = 0
}

// Stats reports cache performance counters.
type Stats struct {
	EntryCount int
	UsedBytes  int64
	MaxBytes   int64
	Hits       int64
	Misses     int64
	Evictions  int64
	HitRate    float64
	Generation uint64
}

// Stats returns a snapshot of cache performance counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return Stats{
		EntryCount: c.lru.Len(),
		UsedBytes:  c.usedBytes,
		MaxBytes:   c.maxBytes,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
		HitRate:    hitRate,
		Generation: c.generation,
	}
}

// hashKey normalizes text (Unicode case-folding, trimmed whitespace) before
// hashing so equivalent queries share one cache entry regardless of case.
func hashKey(text string) string {
	normalized := caser.String(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum)
}
