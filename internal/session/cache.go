package session

import (
	"os"
	"sync"
	"time"
)

type cacheEntry struct {
	modTime time.Time
	size    int64
	sess    *TrainingSession
}

// Cache keeps the last successfully decoded snapshot of each session file.
// A file is re-read only when its mtime or size changes, and a failed read
// falls back to the previous snapshot. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Get returns the freshest readable snapshot of path. ok is false only when
// the file has never been readable.
func (c *Cache) Get(path string) (*TrainingSession, bool) {
	info, statErr := os.Stat(path)

	c.mu.Lock()
	entry, cached := c.entries[path]
	c.mu.Unlock()

	if statErr != nil {
		if cached {
			return entry.sess, true
		}
		return nil, false
	}
	if cached && entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
		return entry.sess, true
	}

	sess, ok := Read(path)
	if !ok {
		if cached {
			return entry.sess, true
		}
		return nil, false
	}

	c.mu.Lock()
	c.entries[path] = cacheEntry{modTime: info.ModTime(), size: info.Size(), sess: sess}
	c.mu.Unlock()
	return sess, true
}

// Forget drops the cached snapshot for path.
func (c *Cache) Forget(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// Len returns the number of cached files.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
