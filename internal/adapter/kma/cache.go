package kma

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
	"github.com/couchcryptid/coil-condensation-monitor/internal/observability"
)

// CachedProvider wraps a WeatherProvider with in-memory LRU caches keyed by
// the product's base time, so repeated calls within one publication window
// reuse the same response. Errors are never cached.
type CachedProvider struct {
	inner   domain.WeatherProvider
	current *lruCache[float64]
	short   *lruCache[[]domain.ShortRangeSample]
	mid     *lruCache[[]domain.MidRangeDay]
	metrics *observability.Metrics
}

// NewCachedProvider creates a cache decorator around a provider.
func NewCachedProvider(inner domain.WeatherProvider, maxEntries int, metrics *observability.Metrics) *CachedProvider {
	return &CachedProvider{
		inner:   inner,
		current: newLRUCache[float64](maxEntries),
		short:   newLRUCache[[]domain.ShortRangeSample](maxEntries),
		mid:     newLRUCache[[]domain.MidRangeDay](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedProvider) CurrentTemperature(ctx context.Context) (float64, error) {
	date, hhmm := currentBase(domain.Now())
	return cached(c, c.current, date+hhmm, func() (float64, error) {
		return c.inner.CurrentTemperature(ctx)
	})
}

func (c *CachedProvider) ShortRange(ctx context.Context) ([]domain.ShortRangeSample, error) {
	date, i := shortBase(domain.Now())
	return cached(c, c.short, fmt.Sprintf("%s%02d00", date, shortBaseTimes[i]), func() ([]domain.ShortRangeSample, error) {
		return c.inner.ShortRange(ctx)
	})
}

func (c *CachedProvider) MidRange(ctx context.Context) ([]domain.MidRangeDay, error) {
	issued, _, _ := midIssue(domain.Now())
	// The rebased offsets depend on today as well as the run.
	key := domain.Today() + "/" + issued.Format("200601021504")
	return cached(c, c.mid, key, func() ([]domain.MidRangeDay, error) {
		return c.inner.MidRange(ctx)
	})
}

func cached[V any](c *CachedProvider, cache *lruCache[V], key string, load func() (V, error)) (V, error) {
	if v, ok := cache.get(key); ok {
		c.metrics.WeatherCache.WithLabelValues("hit").Inc()
		return v, nil
	}
	c.metrics.WeatherCache.WithLabelValues("miss").Inc()
	v, err := load()
	if err != nil {
		return v, err
	}
	cache.put(key, v)
	return v, nil
}

// Purge drops every cached response, e.g. after the service keys change.
func (c *CachedProvider) Purge() {
	c.current.purge()
	c.short.purge()
	c.mid.purge()
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
	c.head, c.tail = nil, nil
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
