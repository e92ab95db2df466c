package ttlcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCapacityEvictsOldestInsertion(t *testing.T) {
	c := New[string, int](2, time.Minute)
	c.Put("k1", 1)
	c.Put("k2", 2)
	c.Put("k3", 3)

	_, ok := c.TryGet("k1")
	assert.False(t, ok)
	v, ok := c.TryGet("k2")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	v, ok = c.TryGet("k3")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, c.Len())
}

func TestTTLExpiry(t *testing.T) {
	c := New[string, string](10, time.Second)
	fake := time.Now()
	c.now = func() time.Time { return fake }

	c.Put("k", "v")
	v, ok := c.TryGet("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	fake = fake.Add(999 * time.Millisecond)
	_, ok = c.TryGet("k")
	assert.True(t, ok)

	fake = fake.Add(2 * time.Millisecond)
	_, ok = c.TryGet("k")
	assert.False(t, ok)
}

func TestErase(t *testing.T) {
	c := New[string, int](10, time.Minute)
	c.Put("k", 1)
	c.Erase("k")
	_, ok := c.TryGet("k")
	assert.False(t, ok)
	// Erasing an absent key is a no-op, not an error.
	c.Erase("missing")
}

func TestPutRefreshesExistingKeyPosition(t *testing.T) {
	c := New[string, int](2, time.Minute)
	c.Put("k1", 1)
	c.Put("k2", 2)
	c.Put("k1", 11) // refresh k1; k2 is now the oldest insertion
	c.Put("k3", 3)  // should evict k2, not k1

	_, ok := c.TryGet("k2")
	assert.False(t, ok)
	v, ok := c.TryGet("k1")
	assert.True(t, ok)
	assert.Equal(t, 11, v)
}
