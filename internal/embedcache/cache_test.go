package embedcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetThenGetHits(t *testing.T) {
	c := New(0, 0)
	c.Set("hello world", []float64{1, 2, 3})

	got, gen, ok := c.Get("hello world")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3}, got)
	assert.Equal(t, uint64(1), gen)
}

func TestGetNormalizesCaseAndWhitespace(t *testing.T) {
	c := New(0, 0)
	c.Set("  Hello World  ", []float64{1, 2})

	got, _, ok := c.Get("hello world")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, got)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := New(0, 0)
	_, _, ok := c.Get("nothing cached")
	assert.False(t, ok)
}

func TestGetExpiresAfterTTL(t *testing.T) {
	c := New(0, time.Millisecond)
	c.Set("fleeting", []float64{1})
	time.Sleep(5 * time.Millisecond)

	_, _, ok := c.Get("fleeting")
	assert.False(t, ok)
}

func TestSetEvictsLeastRecentlyUsedOverBudget(t *testing.T) {
	c := New(2*floatSize, time.Hour) // budget for one 2-float vector
	c.Set("first", []float64{1, 2})
	c.Set("second", []float64{3, 4})

	_, _, ok := c.Get("first")
	assert.False(t, ok, "first should have been evicted once budget was exceeded")

	_, _, ok = c.Get("second")
	assert.True(t, ok)
}

func TestSetBumpsGeneration(t *testing.T) {
	c := New(0, 0)
	gen1 := c.Set("a", []float64{1})
	gen2 := c.Set("b", []float64{2})
	assert.Less(t, gen1, gen2)
}

func TestClearResetsEntriesNotGeneration(t *testing.T) {
	c := New(0, 0)
	c.Set("a", []float64{1})
	before := c.Generation()

	c.Clear()
	_, _, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, before, c.Generation())
}

func TestStatsReportsHitRate(t *testing.T) {
	c := New(0, 0)
	c.Set("a", []float64{1})
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
}
