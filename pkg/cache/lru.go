// Package cache provides an LRU cache for scanned source files, keyed by
// repository-relative path and bounded by total byte size.
package cache

import (
	"sync"
	"sync/atomic"
)

// DefaultFileCacheSize is the default maximum memory size for the file cache (64 MB).
const DefaultFileCacheSize = 64 * 1024 * 1024

// FileCache is a thread-safe LRU cache of source files split into lines.
// It tracks memory usage and evicts least recently used files when the limit
// is exceeded.
type FileCache struct {
	mu          sync.RWMutex
	entries     map[string]*lruEntry
	head        *lruEntry // Most recently used.
	tail        *lruEntry // Least recently used.
	maxSize     int64
	currentSize int64

	// Metrics (atomic for lock-free reads).
	hits   atomic.Int64
	misses atomic.Int64
}

// lruEntry is a doubly-linked list node for LRU tracking.
type lruEntry struct {
	path  string
	lines []string
	size  int64
	prev  *lruEntry
	next  *lruEntry
}

// NewFileCache creates a file cache with the specified maximum size in bytes.
func NewFileCache(maxSize int64) *FileCache {
	if maxSize <= 0 {
		maxSize = DefaultFileCacheSize
	}

	return &FileCache{
		entries: make(map[string]*lruEntry),
		maxSize: maxSize,
	}
}

// Get retrieves a file's lines from the cache. Returns nil if not found.
func (c *FileCache) Get(path string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[path]
	if !ok {
		c.misses.Add(1)

		return nil
	}

	c.hits.Add(1)
	c.moveToFront(entry)

	return entry.lines
}

// Put adds a file's lines to the cache, evicting from the tail until the
// new entry fits. Files larger than the whole cache are not cached.
func (c *FileCache) Put(path string, lines []string) {
	size := linesSize(lines)
	if size > c.maxSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[path]; ok {
		c.currentSize += size - entry.size
		entry.lines = lines
		entry.size = size
		c.moveToFront(entry)

		return
	}

	for c.currentSize+size > c.maxSize && c.tail != nil {
		c.evictTail()
	}

	entry := &lruEntry{path: path, lines: lines, size: size}
	c.entries[path] = entry
	c.currentSize += size
	c.addToFront(entry)
}

// Stats returns cache statistics.
func (c *FileCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Entries:     len(c.entries),
		CurrentSize: c.currentSize,
		MaxSize:     c.maxSize,
	}
}

// Stats holds cache performance metrics.
type Stats struct {
	Hits        int64
	Misses      int64
	Entries     int
	CurrentSize int64
	MaxSize     int64
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}

	return float64(s.Hits) / float64(total)
}

// Clear removes all entries from the cache.
func (c *FileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*lruEntry)
	c.head = nil
	c.tail = nil
	c.currentSize = 0
}

func linesSize(lines []string) int64 {
	var total int64
	for _, line := range lines {
		total += int64(len(line)) + 1
	}

	return total
}

// moveToFront moves an entry to the front of the LRU list (most recently used).
func (c *FileCache) moveToFront(entry *lruEntry) {
	if entry == c.head {
		return
	}

	c.removeFromList(entry)
	c.addToFront(entry)
}

// addToFront adds an entry to the front of the LRU list.
func (c *FileCache) addToFront(entry *lruEntry) {
	entry.prev = nil
	entry.next = c.head

	if c.head != nil {
		c.head.prev = entry
	}

	c.head = entry

	if c.tail == nil {
		c.tail = entry
	}
}

// removeFromList removes an entry from the LRU list.
func (c *FileCache) removeFromList(entry *lruEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}

	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}
}

// evictTail removes the least recently used entry.
func (c *FileCache) evictTail() {
	victim := c.tail
	if victim == nil {
		return
	}

	c.removeFromList(victim)
	delete(c.entries, victim.path)
	c.currentSize -= victim.size
}
