package kma

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
	"github.com/couchcryptid/coil-condensation-monitor/internal/observability"
)

// --- mock for cache tests ---

type countingProvider struct {
	currentCalls, shortCalls, midCalls int
	temp                               float64
	err                                error
}

func (p *countingProvider) CurrentTemperature(context.Context) (float64, error) {
	p.currentCalls++
	return p.temp, p.err
}

func (p *countingProvider) ShortRange(context.Context) ([]domain.ShortRangeSample, error) {
	p.shortCalls++
	return []domain.ShortRangeSample{{Date: "20261020", Time: 600, Category: domain.CategoryTemperature, Value: p.temp}}, p.err
}

func (p *countingProvider) MidRange(context.Context) ([]domain.MidRangeDay, error) {
	p.midCalls++
	return []domain.MidRangeDay{{Offset: 3}}, p.err
}

func fakeClock(t *testing.T, hour, minute int) *clockwork.FakeClock {
	t.Helper()
	clk := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, hour, minute, 0, 0, domain.Zone()))
	domain.SetClock(clk)
	t.Cleanup(func() { domain.SetClock(nil) })
	return clk
}

// --- CachedProvider tests ---

func TestCachedProvider_CurrentWithinObservationHour(t *testing.T) {
	clk := fakeClock(t, 10, 50)
	inner := &countingProvider{temp: 7.3}
	cached := NewCachedProvider(inner, 10, observability.NewMetricsForTesting())

	for range 3 {
		got, err := cached.CurrentTemperature(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 7.3, got)
	}
	assert.Equal(t, 1, inner.currentCalls, "should only call inner once")

	// 11:50 is a new observation hour.
	clk.Advance(time.Hour)
	_, err := cached.CurrentTemperature(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, inner.currentCalls)
}

func TestCachedProvider_ShortRangeKeyedByBaseTime(t *testing.T) {
	clk := fakeClock(t, 11, 20)
	inner := &countingProvider{}
	cached := NewCachedProvider(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.ShortRange(context.Background())
	require.NoError(t, err)
	clk.Advance(2 * time.Hour) // 13:20, still the 11:00 run
	_, err = cached.ShortRange(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, inner.shortCalls)

	clk.Advance(time.Hour) // 14:20, the 14:00 run is out
	_, err = cached.ShortRange(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, inner.shortCalls)
}

func TestCachedProvider_MidRangeRefreshesOnNewDay(t *testing.T) {
	clk := fakeClock(t, 19, 0)
	inner := &countingProvider{}
	cached := NewCachedProvider(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.MidRange(context.Background())
	require.NoError(t, err)
	_, err = cached.MidRange(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, inner.midCalls)

	clk.Advance(6 * time.Hour)
	_, err = cached.MidRange(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, inner.midCalls)
}

func TestCachedProvider_ErrorsNotCached(t *testing.T) {
	fakeClock(t, 10, 50)
	inner := &countingProvider{err: errors.New("timeout")}
	cached := NewCachedProvider(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.CurrentTemperature(context.Background())
	require.Error(t, err)
	_, err = cached.CurrentTemperature(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, inner.currentCalls)
}

func TestCachedProvider_Purge(t *testing.T) {
	fakeClock(t, 10, 50)
	inner := &countingProvider{temp: 1}
	cached := NewCachedProvider(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.CurrentTemperature(context.Background())
	cached.Purge()
	_, _ = cached.CurrentTemperature(context.Background())
	assert.Equal(t, 2, inner.currentCalls)
}

// --- LRU cache tests ---

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache[int](2)
	c.put("a", 1)
	c.put("b", 2)
	c.put("c", 3)

	_, ok := c.get("a")
	assert.False(t, ok, "a should be evicted")
	v, ok := c.get("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestLRUCache_AccessPromotes(t *testing.T) {
	c := newLRUCache[int](2)
	c.put("a", 1)
	c.put("b", 2)
	c.get("a")
	c.put("c", 3)

	_, ok := c.get("b")
	assert.False(t, ok, "b should be evicted")
	_, ok = c.get("a")
	assert.True(t, ok)
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache[string](2)
	c.put("a", "old")
	c.put("a", "new")
	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Len(t, c.entries, 1)
}
