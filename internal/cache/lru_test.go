package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_EdgeCases(t *testing.T) {
	c := NewLRU(50)

	// Item larger than capacity
	c.Set("big", make([]byte, 60))
	_, ok := c.Get("big")
	assert.False(t, ok, "Item > capacity should not be cached")

	// Update existing item
	c.Set("k", make([]byte, 10))
	assert.Equal(t, int64(10), c.Size())

	c.Set("k", make([]byte, 20))
	assert.Equal(t, int64(20), c.Size())

	c.Set("k", make([]byte, 5))
	assert.Equal(t, int64(5), c.Size())

	// Oversized update drops the stale value.
	c.Set("k", make([]byte, 60))
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.Size())
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU(30)
	c.Set("a", make([]byte, 10))
	c.Set("b", make([]byte, 10))
	c.Set("c", make([]byte, 10))

	// Touch a so b becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", make([]byte, 10))

	_, ok = c.Get("b")
	assert.False(t, ok)
	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, int64(30), c.Size())
	assert.Equal(t, 3, c.Len())
}

func TestLRU_Stats(t *testing.T) {
	c := NewLRU(100)
	c.Set("k", []byte{1})
	c.Get("k")
	c.Get("other")

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestLRU_RemoveAndInvalidatePrefix(t *testing.T) {
	c := NewLRU(100)
	c.Set("images/1", []byte("a"))
	c.Set("images/2", []byte("b"))
	c.Set("thumbs/1", []byte("c"))

	c.Remove("images/1")
	_, ok := c.Get("images/1")
	assert.False(t, ok)

	c.InvalidatePrefix("images/")
	_, ok = c.Get("images/2")
	assert.False(t, ok)
	_, ok = c.Get("thumbs/1")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Size())
}
