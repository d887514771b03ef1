// Package patterncache is a process-wide, thread-safe LRU cache of
// compiled regexes keyed by (pattern text, compile flags). It is the sole
// path by which any other package obtains a compiled matcher: the
// pattern library resolves catalog pattern text through it, and the
// scanner never compiles a regex in its hot path.
package patterncache

import (
	"container/list"
	"regexp"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/standardbeagle/gatekeeper/internal/apperrors"
)

// Flags selects compile-time regex behavior. Bits combine with bitwise OR.
type Flags uint8

const (
	FlagNone           Flags = 0
	FlagCaseInsensitive Flags = 1 << 0
)

const (
	// DefaultMaxEntries bounds the cache by entry count.
	DefaultMaxEntries = 10000
	// DefaultMaxMemoryBytes bounds the cache by a byte-counted memory
	// estimate.
	DefaultMaxMemoryBytes = 64 * 1024 * 1024
)

// entry is the cache's internal record; it is never mutated after insert.
type entry struct {
	key      uint64
	source   string
	flags    Flags
	compiled *regexp.Regexp
	memEst   int
}

// Stats reports hit/miss/eviction counters plus a byte-counted memory
// estimate.
type Stats struct {
	Size        int
	Hits        int64
	Misses      int64
	Evictions   int64
	MemoryBytes int64
}

// Cache is a keyed store of compiled regexes with LRU eviction.
type Cache struct {
	mu sync.RWMutex

	entries map[uint64]*list.Element // key -> LRU element
	lru     *list.List               // front = most recently used

	maxEntries    int
	maxMemoryByte int64
	curMemoryByte int64

	hits      int64
	misses    int64
	evictions int64
}

// New creates a Cache with the given entry-count and memory bounds. A
// zero value for either falls back to the package default.
func New(maxEntries int, maxMemoryBytes int64) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxMemoryBytes <= 0 {
		maxMemoryBytes = DefaultMaxMemoryBytes
	}
	return &Cache{
		entries:       make(map[uint64]*list.Element),
		lru:           list.New(),
		maxEntries:    maxEntries,
		maxMemoryByte: maxMemoryBytes,
	}
}

func cacheKey(source string, flags Flags) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(source)
	_, _ = h.Write([]byte{byte(flags)})
	return h.Sum64()
}

// Get returns the compiled matcher for (source, flags), compiling and
// inserting it on a miss. Compilation happens outside the write lock, so
// unrelated compiles are not serialized behind one mutex. Goroutines that
// miss on the same key at the same time each compile it; the
// double-checked insert keeps only the first result, so every caller
// gets the same matcher object.
func (c *Cache) Get(source string, flags Flags) (*regexp.Regexp, error) {
	key := cacheKey(source, flags)

	c.mu.RLock()
	if el, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		c.mu.Lock()
		c.lru.MoveToFront(el)
		c.hits++
		c.mu.Unlock()
		return el.Value.(*entry).compiled, nil
	}
	c.mu.RUnlock()

	pattern := source
	if flags&FlagCaseInsensitive != 0 {
		pattern = "(?i)" + source
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, apperrors.New(apperrors.KindInvalidPattern, "compile_pattern", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-checked: another goroutine may have inserted while we
	// compiled without holding the lock.
	if el, ok := c.entries[key]; ok {
		c.lru.MoveToFront(el)
		c.hits++
		return el.Value.(*entry).compiled, nil
	}

	c.misses++
	e := &entry{
		key:      key,
		source:   source,
		flags:    flags,
		compiled: compiled,
		memEst:   estimateSize(source, compiled),
	}
	el := c.lru.PushFront(e)
	c.entries[key] = el
	c.curMemoryByte += int64(e.memEst)

	c.evictLocked()
	return compiled, nil
}

// evictLocked removes least-recently-used entries until both bounds are
// satisfied. Caller must hold c.mu.
func (c *Cache) evictLocked() {
	for (len(c.entries) > c.maxEntries || c.curMemoryByte > c.maxMemoryByte) && c.lru.Len() > 0 {
		back := c.lru.Back()
		if back == nil {
			return
		}
		e := back.Value.(*entry)
		delete(c.entries, e.key)
		c.lru.Remove(back)
		c.curMemoryByte -= int64(e.memEst)
		c.evictions++
	}
}

// estimateSize approximates an entry's memory footprint: the source text
// plus a fixed 16 bytes per capture group and 128 bytes of overhead. A cheap
// heuristic; exact introspection of regexp internals isn't possible
// from outside the package anyway.
func estimateSize(source string, compiled *regexp.Regexp) int {
	const bytesPerProgInstr = 16
	return len(source) + compiled.NumSubexp()*bytesPerProgInstr + 128
}

// Stats returns a snapshot of cache performance counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Size:        len(c.entries),
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		MemoryBytes: c.curMemoryByte,
	}
}

// Clear empties the cache and resets statistics. Intended for tests.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*list.Element)
	c.lru = list.New()
	c.curMemoryByte = 0
	c.hits, c.misses, c.evictions = 0, 0, 0
}
