package identity

import (
	"container/list"
	"sync"
	"time"

	"github.com/augustinmaps01/risk-profiling/internal/permissions"
)

// CacheKey identifies a session by subject and identity version
type CacheKey struct {
	Subject string
	Version string
}

// String returns a string representation of the cache key
func (k CacheKey) String() string {
	return k.Subject + "@" + k.Version
}

// cacheEntry represents a single cache entry with TTL
type cacheEntry struct {
	key        CacheKey
	session    *permissions.Session
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

// SessionCache is an in-memory LRU cache with TTL for derived sessions.
// Sessions are immutable, so entries are shared between requests.
type SessionCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry // Key: CacheKey.String()
	lruList *list.List
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
	now     func() time.Time
}

// NewSessionCache creates a new SessionCache with specified max size and TTL
func NewSessionCache(maxSize int, ttl time.Duration) *SessionCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &SessionCache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *SessionCache) expired(e *cacheEntry) bool {
	return c.now().Sub(e.insertedAt) > c.ttl
}

// Get returns the cached session, or nil when missing or expired
func (c *SessionCache) Get(key CacheKey) *permissions.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	keyStr := key.String()
	entry, exists := c.entries[keyStr]
	if !exists || c.expired(entry) {
		c.misses++
		if exists {
			c.removeEntry(keyStr)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.session
}

// Set stores a session. Older versions of the same subject are dropped.
func (c *SessionCache) Set(key CacheKey, session *permissions.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keyStr := key.String()
	if entry, exists := c.entries[keyStr]; exists {
		entry.session = session
		entry.insertedAt = c.now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	c.removeSubject(key.Subject)

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		key:        key,
		session:    session,
		insertedAt: c.now(),
	}
	entry.element = c.lruList.PushFront(keyStr)
	c.entries[keyStr] = entry
}

// InvalidateSubject removes every cached version for a subject
func (c *SessionCache) InvalidateSubject(subject string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeSubject(subject)
}

// Clear removes all entries from the cache
func (c *SessionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
}

// Stats returns cache statistics
func (c *SessionCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// must be called with lock held
func (c *SessionCache) removeSubject(subject string) {
	for keyStr, entry := range c.entries {
		if entry.key.Subject == subject {
			c.removeEntry(keyStr)
		}
	}
}

// must be called with lock held
func (c *SessionCache) removeEntry(keyStr string) {
	if entry, exists := c.entries[keyStr]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, keyStr)
	}
}

// must be called with lock held
func (c *SessionCache) evictLRU() {
	if back := c.lruList.Back(); back != nil {
		keyStr := back.Value.(string)
		c.lruList.Remove(back)
		delete(c.entries, keyStr)
	}
}

// CleanupExpired removes all expired entries and reports how many were removed
func (c *SessionCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for keyStr, entry := range c.entries {
		if c.expired(entry) {
			c.removeEntry(keyStr)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker periodically removes expired entries until stopCh closes
func (c *SessionCache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}
