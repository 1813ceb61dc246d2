package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_SetGet(t *testing.T) {
	c := NewLRUCache[string, string](10, time.Minute)

	c.Set("a", "1", 0)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Update(t *testing.T) {
	c := NewLRUCache[string, int](10, time.Minute)

	c.Set("a", 1, 0)
	c.Set("a", 2, 0)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Size())
}

func TestLRUCache_TTLExpiry(t *testing.T) {
	c := NewLRUCache[string, string](10, time.Minute)

	c.Set("a", "1", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestLRUCache_EvictsOldestHalfAtCapacity(t *testing.T) {
	c := NewLRUCache[string, int](4, time.Minute)

	for i := 0; i < 4; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, 0)
	}
	require.Equal(t, 4, c.Size())

	// The next insert evicts the two least recently used entries.
	c.Set("k4", 4, 0)
	assert.Equal(t, 3, c.Size())

	_, ok := c.Get("k0")
	assert.False(t, ok)
	_, ok = c.Get("k1")
	assert.False(t, ok)
	_, ok = c.Get("k3")
	assert.True(t, ok)
	_, ok = c.Get("k4")
	assert.True(t, ok)
}

func TestLRUCache_GetRefreshesRecency(t *testing.T) {
	c := NewLRUCache[string, int](4, time.Minute)

	for i := 0; i < 4; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, 0)
	}

	// Touch k0 so it survives the half eviction.
	_, ok := c.Get("k0")
	require.True(t, ok)

	c.Set("k4", 4, 0)

	_, ok = c.Get("k0")
	assert.True(t, ok)
	_, ok = c.Get("k1")
	assert.False(t, ok)
}

func TestLRUCache_Invalidate(t *testing.T) {
	c := NewLRUCache[string, int](10, time.Minute)

	c.Set("session:1:a", 1, 0)
	c.Set("session:1:b", 2, 0)
	c.Set("session:2:a", 3, 0)

	n := c.Invalidate("session:1:*")
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, c.Size())

	n = c.Invalidate("session:2:a")
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, c.Size())
}

func TestLRUCache_Invalidate_NonStringKeys(t *testing.T) {
	c := NewLRUCache[int, int](10, time.Minute)
	c.Set(1, 1, 0)

	assert.Equal(t, 0, c.Invalidate("1"))
	assert.Equal(t, 1, c.Size())
}

func TestLRUCache_RemoveClear(t *testing.T) {
	c := NewLRUCache[string, int](10, time.Minute)

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestLRUCache_CleanupExpired(t *testing.T) {
	c := NewLRUCache[string, int](10, time.Minute)

	c.Set("a", 1, 10*time.Millisecond)
	c.Set("b", 2, time.Minute)
	time.Sleep(20 * time.Millisecond)

	removed := c.CleanupExpired()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Size())
}

func TestLRUCache_Contains(t *testing.T) {
	c := NewLRUCache[string, int](10, time.Minute)

	c.Set("a", 1, 0)
	assert.True(t, c.Contains("a"))
	assert.False(t, c.Contains("b"))
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	c := NewLRUCache[string, int](100, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%20)
				c.Set(key, n, 0)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Size(), 100)
}
