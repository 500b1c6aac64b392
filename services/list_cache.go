package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"udf_backend_project/metrics"
	"udf_backend_project/models"
)

// DefaultListTTL is how long a loaded instrument list is served before a reload.
const DefaultListTTL = 3600 * time.Second

// InstrumentLister is the store side the list cache reloads from.
type InstrumentLister interface {
	ListStocks(ctx context.Context) ([]models.Stock, error)
	ListFutures(ctx context.Context) ([]models.Future, error)
}

type listSnapshot struct {
	items    []models.Instrument
	loadedAt time.Time
}

// ListCache holds the merged stock+futures list. Snapshots are replaced wholesale,
// never mutated, and concurrent misses share a single store read.
type ListCache struct {
	store   InstrumentLister
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics

	mu    sync.RWMutex
	snap  *listSnapshot
	group singleflight.Group
}

func NewListCache(store InstrumentLister, ttl time.Duration, m *metrics.Metrics) *ListCache {
	if ttl <= 0 {
		ttl = DefaultListTTL
	}
	return &ListCache{store: store, ttl: ttl, now: time.Now, metrics: m}
}

// WithClock swaps the time source; for tests.
func (c *ListCache) WithClock(now func() time.Time) *ListCache {
	c.now = now
	return c
}

// Get returns the cached list, reloading from the store when it is missing or stale.
// The returned slice must not be modified.
func (c *ListCache) Get(ctx context.Context) ([]models.Instrument, error) {
	if items, ok := c.fresh(); ok {
		return items, nil
	}

	v, err, _ := c.group.Do("reload", func() (any, error) {
		// another caller may have reloaded while we waited on the group
		if items, ok := c.fresh(); ok {
			return items, nil
		}
		readAt := c.now()
		stocks, err := c.store.ListStocks(ctx)
		if err != nil {
			return nil, fmt.Errorf("reload stocks: %w", err)
		}
		futures, err := c.store.ListFutures(ctx)
		if err != nil {
			return nil, fmt.Errorf("reload futures: %w", err)
		}
		c.metrics.ListReload()
		return c.Replace(stocks, futures, readAt), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Instrument), nil
}

// Replace installs a new snapshot: stocks first, then futures, each in the given order.
// at is when the lists were read from the store. A snapshot read before the current one
// is discarded and the current items are returned instead.
func (c *ListCache) Replace(stocks []models.Stock, futures []models.Future, at time.Time) []models.Instrument {
	items := make([]models.Instrument, 0, len(stocks)+len(futures))
	for _, s := range stocks {
		items = append(items, models.Instrument{Code: s.Code, Name: s.Name, Exchange: s.Exchange, Type: models.KindStock})
	}
	for _, f := range futures {
		items = append(items, models.Instrument{Code: f.Code, Name: f.Name, Exchange: f.Exchange, Type: models.KindFuture})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap != nil && at.Before(c.snap.loadedAt) {
		return c.snap.items
	}
	c.snap = &listSnapshot{items: items, loadedAt: at}
	return items
}

// Invalidate forces the next Get to reload.
func (c *ListCache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}

func (c *ListCache) fresh() ([]models.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil || c.now().Sub(c.snap.loadedAt) >= c.ttl {
		return nil, false
	}
	return c.snap.items, true
}
