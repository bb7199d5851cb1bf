package egress

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupCacheSeen(t *testing.T) {
	c := NewDedupCache(2)
	require.False(t, c.Seen("GET:a"))
	require.True(t, c.Seen("GET:a"))
	require.False(t, c.Seen("GET:b"))
	require.Equal(t, 2, c.Len())

	// third key overflows the capacity and clears everything
	require.False(t, c.Seen("GET:c"))
	require.Equal(t, 0, c.Len())
	require.False(t, c.Seen("GET:a"))
}

func TestDedupCacheReset(t *testing.T) {
	c := NewDedupCache(0)
	require.False(t, c.Seen("k"))
	c.Reset()
	require.Equal(t, 0, c.Len())
	require.False(t, c.Seen("k"))
}

func TestDedupCacheConcurrent(t *testing.T) {
	c := NewDedupCache(DefaultDedupCapacity)

	var first atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Seen("GET:https://example.com/") {
				first.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), first.Load())

	for i := 0; i < 1000; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Seen(fmt.Sprintf("GET:https://example.com/%d", i))
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, c.Len(), DefaultDedupCapacity)
}
