package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udf_backend_project/models"
)

type countingLister struct {
	reads   atomic.Int32
	delay   time.Duration
	err     error
	stocks  []models.Stock
	futures []models.Future
}

func (l *countingLister) ListStocks(ctx context.Context) ([]models.Stock, error) {
	l.reads.Add(1)
	time.Sleep(l.delay)
	return l.stocks, l.err
}

func (l *countingLister) ListFutures(ctx context.Context) ([]models.Future, error) {
	return l.futures, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestListCacheServesWithinTTL(t *testing.T) {
	lister := &countingLister{stocks: seedStocks(), futures: seedFutures()}
	clock := &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	cache := NewListCache(lister, DefaultListTTL, nil).WithClock(clock.Now)
	ctx := context.Background()

	first, err := cache.Get(ctx)
	require.NoError(t, err)
	require.Len(t, first, 13)
	assert.Equal(t, models.KindStock, first[0].Type)
	assert.Equal(t, models.KindFuture, first[12].Type)

	clock.Advance(DefaultListTTL - time.Second)
	second, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), lister.reads.Load())

	clock.Advance(time.Second)
	_, err = cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), lister.reads.Load(), "expired entry reloads exactly once")

	_, err = cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), lister.reads.Load())
}

func TestListCacheConcurrentMissReloadsOnce(t *testing.T) {
	lister := &countingLister{stocks: seedStocks(), delay: 50 * time.Millisecond}
	cache := NewListCache(lister, time.Hour, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := cache.Get(context.Background())
			assert.NoError(t, err)
			assert.Len(t, items, 5)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), lister.reads.Load())
}

func TestListCacheReplaceAndInvalidate(t *testing.T) {
	lister := &countingLister{}
	clock := &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	cache := NewListCache(lister, time.Hour, nil).WithClock(clock.Now)
	ctx := context.Background()

	cache.Replace(seedStocks()[:1], nil, clock.Now())
	items, err := cache.Get(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "600000", items[0].Code)
	assert.Equal(t, int32(0), lister.reads.Load())

	cache.Invalidate()
	items, err = cache.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int32(1), lister.reads.Load())
}

// racingLister lets the synchronizer install a newer list while a reload is reading.
type racingLister struct {
	countingLister
	onRead func()
}

func (l *racingLister) ListStocks(ctx context.Context) ([]models.Stock, error) {
	if l.onRead != nil {
		l.onRead()
		l.onRead = nil
	}
	return l.countingLister.ListStocks(ctx)
}

func TestListCacheKeepsNewerSnapshot(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	synced := seedStocks()
	lister := &racingLister{countingLister: countingLister{stocks: synced[:1]}}
	cache := NewListCache(lister, time.Hour, nil).WithClock(clock.Now)
	lister.onRead = func() {
		clock.Advance(time.Second)
		cache.Replace(synced, nil, clock.Now())
	}

	items, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, len(synced))

	items, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, len(synced))
	assert.Equal(t, int32(1), lister.reads.Load())

	older := cache.Replace(synced[:2], nil, clock.Now().Add(-time.Minute))
	assert.Len(t, older, len(synced))
}

func TestListCacheReloadError(t *testing.T) {
	lister := &countingLister{err: errors.New("disk I/O error")}
	cache := NewListCache(lister, time.Hour, nil)

	_, err := cache.Get(context.Background())
	assert.Error(t, err)

	lister.err = nil
	_, err = cache.Get(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int32(2), lister.reads.Load(), "failed reloads are not cached")
}
