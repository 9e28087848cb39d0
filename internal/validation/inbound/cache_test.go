package inbound

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDCacheAddAndContains(t *testing.T) {
	c := newIDCache(10)

	require.False(t, c.Contains("a"))
	c.Add("a")
	require.True(t, c.Contains("a"))
	require.Equal(t, 1, c.Len())
}

func TestIDCacheEvictsOldestFirst(t *testing.T) {
	const capacity = 5
	c := newIDCache(capacity)

	for i := 0; i < capacity; i++ {
		c.Add(fmt.Sprintf("id-%d", i))
	}
	require.Equal(t, capacity, c.Len())

	// One past capacity evicts exactly the oldest entry.
	c.Add("id-5")
	require.Equal(t, capacity, c.Len())
	require.False(t, c.Contains("id-0"))
	for i := 1; i <= 5; i++ {
		require.True(t, c.Contains(fmt.Sprintf("id-%d", i)), "id-%d should be retained", i)
	}
}

func TestIDCacheReAddDoesNotRefreshPosition(t *testing.T) {
	c := newIDCache(3)

	c.Add("a")
	c.Add("b")
	c.Add("c")
	// Re-adding the oldest does not move it to the back.
	c.Add("a")
	c.Add("d")

	require.False(t, c.Contains("a"))
	require.True(t, c.Contains("b"))
	require.True(t, c.Contains("c"))
	require.True(t, c.Contains("d"))
}

func TestIDCacheNeverExceedsCapacity(t *testing.T) {
	const capacity = 100
	c := newIDCache(capacity)

	for i := 0; i < capacity*3; i++ {
		c.Add(fmt.Sprintf("id-%d", i))
		require.LessOrEqual(t, c.Len(), capacity)
	}

	// The most recent N survive.
	for i := capacity * 2; i < capacity*3; i++ {
		require.True(t, c.Contains(fmt.Sprintf("id-%d", i)))
	}
}
