package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udf_backend_project/models"
)

func TestUpsertStocksIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rows := []models.Stock{
		{Code: "600036", Name: "招商银行", Exchange: models.ExchangeSSE},
		{Code: "000001", Name: "平安银行", Exchange: models.ExchangeSZSE},
	}

	first := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertStocks(ctx, rows, first))
	before, err := store.ListStocks(ctx)
	require.NoError(t, err)

	second := first.Add(time.Hour)
	require.NoError(t, store.UpsertStocks(ctx, rows, second))
	after, err := store.ListStocks(ctx)
	require.NoError(t, err)

	require.Len(t, after, 2)
	for i := range before {
		assert.Equal(t, before[i].Code, after[i].Code)
		assert.Equal(t, before[i].Name, after[i].Name)
		assert.Equal(t, before[i].Exchange, after[i].Exchange)
		assert.True(t, after[i].UpdateTime.Equal(second))
	}
	assert.Equal(t, "000001", after[0].Code, "ordered by code")
}

func TestUpsertCollapsesDuplicateCodes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertFutures(ctx, []models.Future{
		{Code: "CU2312", Name: "old", Exchange: models.ExchangeSHFE},
		{Code: "CU2312", Name: "铜期货", Exchange: models.ExchangeSHFE},
	}, time.Now()))

	rows, err := store.ListFutures(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "铜期货", rows[0].Name)
}

func TestFindStockAndFuture(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertStocks(ctx, seedStocks(), time.Now()))
	require.NoError(t, store.UpsertFutures(ctx, seedFutures(), time.Now()))

	stock, err := store.FindStock(ctx, "SZSE", "000858")
	require.NoError(t, err)
	require.NotNil(t, stock)
	assert.Equal(t, "五粮液", stock.Name)

	stock, err = store.FindStock(ctx, "SSE", "000858")
	require.NoError(t, err)
	assert.Nil(t, stock, "exchange must match")

	future, err := store.FindFuture(ctx, "DCE", "M2312")
	require.NoError(t, err)
	require.NotNil(t, future)
	assert.Equal(t, "豆粕期货", future.Name)

	future, err = store.FindFuture(ctx, "DCE", "ZZ9999")
	require.NoError(t, err)
	assert.Nil(t, future)
}

func TestStoreSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertStocks(ctx, seedStocks(), time.Now()))
	require.NoError(t, store.UpsertFutures(ctx, seedFutures(), time.Now()))

	testCases := []struct {
		desc     string
		query    string
		exchange string
		kind     models.Kind
		limit    int
		want     []string
	}{
		{"code substring", "600", "", models.KindStock, 10, []string{"600000", "600036"}},
		{"name substring", "银行", "", models.KindStock, 10, []string{"000001", "600000", "600036"}},
		{"exchange filter", "银行", "SZSE", models.KindStock, 10, []string{"000001"}},
		{"case insensitive", "cu", "", models.KindFuture, 10, []string{"CU2312"}},
		{"limit", "", "", models.KindFuture, 3, []string{"AL2312", "C2312", "CF2312"}},
		{"like wildcards are literal", "%", "", models.KindStock, 10, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			rows, err := store.Search(ctx, tc.query, tc.exchange, tc.kind, tc.limit)
			require.NoError(t, err)
			var codes []string
			for _, r := range rows {
				codes = append(codes, r.Code)
				assert.Equal(t, tc.kind, r.Type)
			}
			assert.Equal(t, tc.want, codes)
		})
	}
}

func TestBarsAndCoverage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	fetched := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	bars := []models.HistoryBar{
		{Symbol: "SSE:600036", Resolution: "D", Timestamp: 300, Close: 3},
		{Symbol: "SSE:600036", Resolution: "D", Timestamp: 100, Close: 1},
		{Symbol: "SSE:600036", Resolution: "D", Timestamp: 200, Close: 2},
		{Symbol: "SSE:600036", Resolution: "W", Timestamp: 100, Close: 9},
	}
	require.NoError(t, store.SaveBars(ctx, bars, fetched))
	require.NoError(t, store.SaveBars(ctx, []models.HistoryBar{
		{Symbol: "SSE:600036", Resolution: "D", Timestamp: 200, Close: 2.5},
	}, fetched))

	got, err := store.LoadBars(ctx, "SSE:600036", "D", 100, 250)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(100), got[0].Timestamp)
	assert.Equal(t, 2.5, got[1].Close)

	require.NoError(t, store.RecordCoverage(ctx, &models.HistoryCoverage{
		Symbol: "SSE:600036", Resolution: "D", FromTS: 100, ToTS: 300, FetchedAt: fetched,
	}))

	cov, err := store.FindCoverage(ctx, "SSE:600036", "D", 150, 250, fetched.Add(-time.Minute))
	require.NoError(t, err)
	require.NotNil(t, cov)
	assert.Equal(t, int64(100), cov.FromTS)

	cov, err = store.FindCoverage(ctx, "SSE:600036", "D", 50, 250, fetched.Add(-time.Minute))
	require.NoError(t, err)
	assert.Nil(t, cov, "window not covered")

	cov, err = store.FindCoverage(ctx, "SSE:600036", "D", 150, 250, fetched.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, cov, "coverage too old")
}

func TestPruneBars(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := old.Add(48 * time.Hour)

	require.NoError(t, store.SaveBars(ctx, []models.HistoryBar{{Symbol: "SSE:600000", Resolution: "D", Timestamp: 1}}, old))
	require.NoError(t, store.SaveBars(ctx, []models.HistoryBar{{Symbol: "SSE:600000", Resolution: "D", Timestamp: 2}}, recent))
	require.NoError(t, store.RecordCoverage(ctx, &models.HistoryCoverage{Symbol: "SSE:600000", Resolution: "D", FromTS: 1, ToTS: 1, FetchedAt: old}))

	removed, err := store.PruneBars(ctx, old.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	left, err := store.LoadBars(ctx, "SSE:600000", "D", 0, 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, int64(2), left[0].Timestamp)

	cov, err := store.FindCoverage(ctx, "SSE:600000", "D", 1, 1, time.Time{})
	require.NoError(t, err)
	assert.Nil(t, cov)
}
