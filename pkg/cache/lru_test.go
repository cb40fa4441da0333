package cache

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mqtt2influxdb/errors"
	"github.com/c360/mqtt2influxdb/metric"
)

func TestNewLRU_RejectsNonPositiveCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		_, err := NewLRU[string, int](capacity, nil)
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
		assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	}
}

func TestLRU_GetAddRemove(t *testing.T) {
	c, err := NewLRU[string, string](4, nil)
	require.NoError(t, err)

	_, ok := c.Get("a")
	assert.False(t, ok)

	assert.False(t, c.Add("a", "1"))
	assert.False(t, c.Add("a", "2"), "updating a key never evicts")

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "2", v)

	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	assert.Zero(t, c.Len())
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c, err := NewLRU[string, int](2, func(key string, _ int) {
		evicted = append(evicted, key)
	})
	require.NoError(t, err)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Get("a") // b is now the oldest
	assert.True(t, c.Add("c", 3))

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, []string{"c", "a"}, c.Keys())

	_, ok := c.Get("b")
	assert.False(t, ok)

	s := c.Stats()
	assert.Equal(t, Stats{Hits: 1, Misses: 1, Evictions: 1, Len: 2, Capacity: 2}, s)
	assert.InDelta(t, 0.5, s.HitRatio(), 1e-9)
}

func TestLRU_EvictCallbackMayReenter(t *testing.T) {
	var c *LRU[int, int]
	var seen int
	c, err := NewLRU[int, int](1, func(int, int) {
		seen = c.Len()
	})
	require.NoError(t, err)

	c.Add(1, 1)
	c.Add(2, 2)
	assert.Equal(t, 1, seen)
}

func TestLRU_Purge(t *testing.T) {
	c, err := NewLRU[string, int](3, func(string, int) {
		t.Fatal("purge must not report evictions")
	})
	require.NoError(t, err)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Get("a")

	c.Purge()
	assert.Zero(t, c.Len())
	assert.Empty(t, c.Keys())
	assert.Equal(t, uint64(1), c.Stats().Hits)
}

func TestStats_HitRatioWithoutLookups(t *testing.T) {
	assert.Zero(t, Stats{}.HitRatio())
}

func TestRegister(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	c, err := NewLRU[string, int](1, nil)
	require.NoError(t, err)
	require.NoError(t, Register(registry, "match", c))

	c.Add("a", 1)
	c.Get("a")
	c.Get("x")
	c.Add("b", 2)

	expected := `
# HELP mqtt2influxdb_cache_hits_total Lookups that found their key
# TYPE mqtt2influxdb_cache_hits_total counter
mqtt2influxdb_cache_hits_total{cache="match"} 1
# HELP mqtt2influxdb_cache_evictions_total Entries dropped to make room
# TYPE mqtt2influxdb_cache_evictions_total counter
mqtt2influxdb_cache_evictions_total{cache="match"} 1
# HELP mqtt2influxdb_cache_entries Entries currently cached
# TYPE mqtt2influxdb_cache_entries gauge
mqtt2influxdb_cache_entries{cache="match"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry.PrometheusRegistry(), strings.NewReader(expected),
		"mqtt2influxdb_cache_hits_total",
		"mqtt2influxdb_cache_evictions_total",
		"mqtt2influxdb_cache_entries"))

	// The same name twice collides
	other, err := NewLRU[string, int](1, nil)
	require.NoError(t, err)
	assert.True(t, errors.IsInvalid(Register(registry, "match", other)))
}

func TestLRU_Concurrent(t *testing.T) {
	c, err := NewLRU[string, int](64, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				key := fmt.Sprintf("k%d", (w*31+i)%100)
				if _, ok := c.Get(key); !ok {
					c.Add(key, i)
				}
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
	s := c.Stats()
	assert.Equal(t, uint64(8*500), s.Hits+s.Misses)
}
