package cache_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FxRayHughes/ptcmapper/internal/cache"
)

func TestGetSetRoundTrip(t *testing.T) {
	c := cache.New(cache.Config{})
	c.Set("k", 42)
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, 42, v)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := cache.New(cache.Config{ExpireAfterWrite: time.Millisecond})
	c.Set("k", "v")
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("k")
	require.False(t, ok)
}

func TestMaxSizeEvictsOldest(t *testing.T) {
	c := cache.New(cache.Config{MaxSize: 2})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	_, ok := c.Get("a")
	require.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestClearRemovesEverything(t *testing.T) {
	c := cache.New(cache.Config{})
	c.Set("a", 1)
	c.Clear()
	_, ok := c.Get("a")
	require.False(t, ok)
}

func TestEvictRemovesSingleKey(t *testing.T) {
	c := cache.New(cache.Config{})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Evict("a")

	_, ok := c.Get("a")
	require.False(t, ok)
	_, ok = c.Get("b")
	require.True(t, ok)
}

// TestEvictDoesNotShrinkMaxSizeCapacity guards against a regression where
// Evict removed a key from the data map but left it in the FIFO eviction
// order slice: repeated evict/set cycles would otherwise make the order
// slice grow without bound relative to the live key count, so Set's
// MaxSize eviction loop started popping already-gone keys as no-ops and
// evicted genuinely live, just-written entries far sooner than MaxSize
// should allow.
func TestEvictDoesNotShrinkMaxSizeCapacity(t *testing.T) {
	c := cache.New(cache.Config{MaxSize: 2})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Evict("b")

	c.Set("c", 3)

	_, ok := c.Get("a")
	require.True(t, ok, "a should still be live: only two entries are live after b was evicted")
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestGetOrFillCallsFillOnceUnderConcurrency(t *testing.T) {
	c := cache.New(cache.Config{})
	var calls int64

	fill := func() (any, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(5 * time.Millisecond)
		return "value", nil
	}

	done := make(chan struct{})
	for range 8 {
		go func() {
			_, _ = c.GetOrFill("k", fill)
			done <- struct{}{}
		}()
	}
	for range 8 {
		<-done
	}

	require.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestFingerprintIsStableAndDiscriminating(t *testing.T) {
	a := cache.Fingerprint("SELECT * FROM t WHERE id = ?", []any{1}, "full")
	b := cache.Fingerprint("SELECT * FROM t WHERE id = ?", []any{1}, "full")
	c := cache.Fingerprint("SELECT * FROM t WHERE id = ?", []any{2}, "full")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
