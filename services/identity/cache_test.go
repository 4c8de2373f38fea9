package identity

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/augustinmaps01/risk-profiling/internal/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(subject string, roles ...string) *permissions.Session {
	identity := permissions.Identity{Subject: subject, Version: "1.0"}
	for _, role := range roles {
		identity.Roles = append(identity.Roles, permissions.Role{
			Slug:        role,
			Permissions: permissions.GetRolePermissions(role),
		})
	}
	return permissions.NewSession(permissions.Default(), identity, true)
}

// fakeClock is a settable time source
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestCacheKey_String(t *testing.T) {
	assert.Equal(t, "sub-1@1700000000.2", CacheKey{Subject: "sub-1", Version: "1700000000.2"}.String())
}

func TestSessionCache_GetSet(t *testing.T) {
	cache := NewSessionCache(10, time.Minute)
	key := CacheKey{Subject: "sub-1", Version: "1.0"}

	assert.Nil(t, cache.Get(key))

	session := testSession("sub-1", permissions.RoleManager)
	cache.Set(key, session)

	assert.Same(t, session, cache.Get(key))
	assert.Nil(t, cache.Get(CacheKey{Subject: "sub-1", Version: "2.0"}))

	stats := cache.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.InDelta(t, 1.0/3.0, stats.HitRate, 0.0001)
}

func TestSessionCache_TTLExpiration(t *testing.T) {
	clock := newFakeClock()
	cache := NewSessionCache(10, time.Minute)
	cache.now = clock.Now

	key := CacheKey{Subject: "sub-1", Version: "1.0"}
	cache.Set(key, testSession("sub-1"))

	clock.Advance(59 * time.Second)
	assert.NotNil(t, cache.Get(key))

	clock.Advance(2 * time.Second)
	assert.Nil(t, cache.Get(key))
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestSessionCache_NewVersionReplacesOld(t *testing.T) {
	cache := NewSessionCache(10, time.Minute)
	oldKey := CacheKey{Subject: "sub-1", Version: "1.0"}
	newKey := CacheKey{Subject: "sub-1", Version: "1.1"}

	cache.Set(oldKey, testSession("sub-1", permissions.RoleUser))
	cache.Set(newKey, testSession("sub-1", permissions.RoleManager))

	assert.Nil(t, cache.Get(oldKey))
	require.NotNil(t, cache.Get(newKey))
	assert.Equal(t, 1, cache.Stats().Size)
}

func TestSessionCache_LRUEviction(t *testing.T) {
	cache := NewSessionCache(2, time.Minute)
	a := CacheKey{Subject: "a", Version: "1"}
	b := CacheKey{Subject: "b", Version: "1"}
	c := CacheKey{Subject: "c", Version: "1"}

	cache.Set(a, testSession("a"))
	cache.Set(b, testSession("b"))
	// touch a so b becomes least recently used
	require.NotNil(t, cache.Get(a))
	cache.Set(c, testSession("c"))

	assert.NotNil(t, cache.Get(a))
	assert.Nil(t, cache.Get(b))
	assert.NotNil(t, cache.Get(c))
}

func TestSessionCache_InvalidateSubject(t *testing.T) {
	cache := NewSessionCache(10, time.Minute)
	cache.Set(CacheKey{Subject: "a", Version: "1"}, testSession("a"))
	cache.Set(CacheKey{Subject: "b", Version: "1"}, testSession("b"))

	cache.InvalidateSubject("a")

	assert.Nil(t, cache.Get(CacheKey{Subject: "a", Version: "1"}))
	assert.NotNil(t, cache.Get(CacheKey{Subject: "b", Version: "1"}))
}

func TestSessionCache_CleanupExpired(t *testing.T) {
	clock := newFakeClock()
	cache := NewSessionCache(10, time.Minute)
	cache.now = clock.Now

	cache.Set(CacheKey{Subject: "a", Version: "1"}, testSession("a"))
	clock.Advance(30 * time.Second)
	cache.Set(CacheKey{Subject: "b", Version: "1"}, testSession("b"))
	clock.Advance(45 * time.Second)

	assert.Equal(t, 1, cache.CleanupExpired())
	assert.Equal(t, 1, cache.Stats().Size)

	cache.Clear()
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestSessionCache_ConcurrentAccess(t *testing.T) {
	cache := NewSessionCache(50, time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := CacheKey{Subject: fmt.Sprintf("sub-%d", i%10), Version: "1"}
			for j := 0; j < 100; j++ {
				if cache.Get(key) == nil {
					cache.Set(key, testSession(key.Subject))
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Stats().Size, 10)
}

func TestSessionCache_StartCleanupWorker(t *testing.T) {
	cache := NewSessionCache(10, time.Millisecond)
	cache.Set(CacheKey{Subject: "a", Version: "1"}, testSession("a"))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		cache.StartCleanupWorker(5*time.Millisecond, stop)
		close(done)
	}()

	require.Eventually(t, func() bool { return cache.Stats().Size == 0 }, time.Second, 5*time.Millisecond)
	close(stop)
	<-done
}
