package datafetcher

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResult struct {
	payload string
	err     error
}

// fakeCaller answers entry points from a fixed map; unknown ones return an empty table.
type fakeCaller struct {
	mu      sync.Mutex
	results map[string]fakeResult
	calls   []string
	params  map[string]url.Values
}

func newFakeCaller(results map[string]fakeResult) *fakeCaller {
	return &fakeCaller{results: results, params: map[string]url.Values{}}
}

func (f *fakeCaller) Call(ctx context.Context, entryPoint string, params url.Values) (*Table, error) {
	f.mu.Lock()
	f.calls = append(f.calls, entryPoint)
	f.params[entryPoint] = params
	res, ok := f.results[entryPoint]
	f.mu.Unlock()

	if !ok {
		return &Table{}, nil
	}
	if res.err != nil {
		return nil, res.err
	}
	return DecodeTable(strings.NewReader(res.payload))
}

func TestFetchStockListPreferenceOrder(t *testing.T) {
	caller := newFakeCaller(map[string]fakeResult{
		"stock_zh_a_spot_em": {err: errors.New("timeout")},
		"stock_zh_a_spot":    {payload: `[{"代码":"sh600000","名称":"浦发银行"}]`},
	})
	f := NewDataFetcher(caller, nil, nil)

	table, err := f.FetchStockList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sh600000", table.String(0, "代码"))
	assert.Equal(t, []string{"stock_zh_a_spot_em", "stock_zh_a_spot"}, caller.calls)
}

func TestFetchStockListFirstNonEmptyWins(t *testing.T) {
	caller := newFakeCaller(map[string]fakeResult{
		"stock_zh_a_spot_em": {payload: `[{"代码":"600036","名称":"招商银行"}]`},
		"stock_zh_a_spot":    {payload: `[{"代码":"sh600000","名称":"浦发银行"}]`},
	})
	f := NewDataFetcher(caller, nil, nil)

	table, err := f.FetchStockList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "600036", table.String(0, "代码"))
	assert.Equal(t, []string{"stock_zh_a_spot_em"}, caller.calls)
}

func TestFetchStockListNoData(t *testing.T) {
	f := NewDataFetcher(newFakeCaller(map[string]fakeResult{
		"stock_zh_a_spot_em": {err: errors.New("boom")},
	}), nil, nil)

	_, err := f.FetchStockList(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoData)
	assert.Contains(t, err.Error(), "boom")
}

func TestFetchFuturesContractsUnion(t *testing.T) {
	caller := newFakeCaller(map[string]fakeResult{
		"futures_contract_info_cffex": {payload: `[{"合约代码":"IF2312","品种":"沪深300股指期货"}]`},
		"futures_contract_info_czce":  {err: errors.New("blocked")},
		"futures_contract_info_gfex":  {payload: `[{"代码":"SI2401"}]`},
		"futures_contract_info_shfe":  {payload: `[{"合约代码":"cu2312","上市日":"20221216"},{"合约代码":"al2312"}]`},
	})
	f := NewDataFetcher(caller, nil, nil)

	table, err := f.FetchFuturesContracts(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())
	assert.Equal(t, "futures_contract_info_cffex", table.String(0, SourceColumn))
	assert.Equal(t, "futures_contract_info_shfe", table.String(2, SourceColumn))
	assert.True(t, table.Has("品种"))
	assert.True(t, table.Has("上市日"))
	assert.Len(t, caller.calls, len(FuturesContractEntryPoints))
}

func TestFetchFuturesContractsEmpty(t *testing.T) {
	f := NewDataFetcher(newFakeCaller(nil), nil, nil)
	_, err := f.FetchFuturesContracts(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
}

func TestRouteBars(t *testing.T) {
	testCases := []struct {
		desc       string
		query      BarQuery
		entryPoint string
		params     url.Values
		filter     bool
		bounded    bool
	}{
		{
			desc:       "stock minute ignores range",
			query:      BarQuery{Exchange: "SSE", Code: "600036", Resolution: "5", StartDate: "20231115", EndDate: "20231120"},
			entryPoint: "stock_zh_a_minute",
			params:     url.Values{"symbol": {"sh600036"}, "period": {"5"}},
		},
		{
			desc:       "stock daily",
			query:      BarQuery{Exchange: "SZSE", Code: "000001", Resolution: "D", StartDate: "20231115", EndDate: "20231120"},
			entryPoint: "stock_zh_a_daily",
			params:     url.Values{"symbol": {"sz000001"}, "start_date": {"20231115"}, "end_date": {"20231120"}},
			bounded:    true,
		},
		{
			desc:       "stock weekly",
			query:      BarQuery{Exchange: "BSE", Code: "830799", Resolution: "W", StartDate: "20230101", EndDate: "20231231"},
			entryPoint: "stock_zh_a_hist",
			params:     url.Values{"symbol": {"830799"}, "period": {"weekly"}, "start_date": {"20230101"}, "end_date": {"20231231"}},
			bounded:    true,
		},
		{
			desc:       "stock monthly",
			query:      BarQuery{Exchange: "SSE", Code: "600000", Resolution: "M", StartDate: "20200101", EndDate: "20231231"},
			entryPoint: "stock_zh_a_hist",
			params:     url.Values{"symbol": {"600000"}, "period": {"monthly"}, "start_date": {"20200101"}, "end_date": {"20231231"}},
			bounded:    true,
		},
		{
			desc:       "futures any resolution",
			query:      BarQuery{Exchange: "SHFE", Code: "CU2312", Resolution: "60", StartDate: "20231101", EndDate: "20231130"},
			entryPoint: "futures_zh_daily_sina",
			params:     url.Values{"symbol": {"CU2312"}},
			filter:     true,
			bounded:    true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			route, err := RouteBars(tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.entryPoint, route.EntryPoint)
			assert.Equal(t, tc.params, route.Params)
			assert.Equal(t, tc.filter, route.FilterByDate)
			assert.Equal(t, tc.bounded, route.DateBounded())
		})
	}
}

func TestRouteBarsUnroutable(t *testing.T) {
	_, err := RouteBars(BarQuery{Exchange: "NYSE", Code: "IBM", Resolution: "D"})
	assert.ErrorIs(t, err, ErrNoData)

	_, err = RouteBars(BarQuery{Exchange: "SSE", Code: "600036", Resolution: "2H"})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFetchBarsFiltersFuturesByDate(t *testing.T) {
	caller := newFakeCaller(map[string]fakeResult{
		"futures_zh_daily_sina": {payload: `[
			{"date":"2023-11-13","open":1,"close":2},
			{"date":"2023-11-15","open":3,"close":4},
			{"date":"2023-11-16","open":5,"close":6},
			{"date":"2023-11-21","open":7,"close":8}]`},
	})
	f := NewDataFetcher(caller, nil, nil)

	table, err := f.FetchBars(context.Background(), BarQuery{
		Exchange: "SHFE", Code: "CU2312", Resolution: "D", StartDate: "20231115", EndDate: "20231120",
	})
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, float64(3), table.Float(0, "open"))
	assert.Equal(t, float64(5), table.Float(1, "open"))

	_, err = f.FetchBars(context.Background(), BarQuery{
		Exchange: "SHFE", Code: "CU2312", Resolution: "D", StartDate: "20240101", EndDate: "20240131",
	})
	assert.ErrorIs(t, err, ErrNoData)
}

// nilCaller answers every entry point with no table and no error.
type nilCaller struct{}

func (nilCaller) Call(ctx context.Context, entryPoint string, params url.Values) (*Table, error) {
	return nil, nil
}

func TestFetchBarsNilTable(t *testing.T) {
	f := NewDataFetcher(nilCaller{}, nil, nil)

	_, err := f.FetchBars(context.Background(), BarQuery{
		Exchange: "DCE", Code: "M2405", Resolution: "D", StartDate: "20231115", EndDate: "20231120",
	})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFetchBarsPropagatesProviderError(t *testing.T) {
	boom := errors.New("akshare raised")
	f := NewDataFetcher(newFakeCaller(map[string]fakeResult{
		"stock_zh_a_daily": {err: boom},
	}), nil, nil)

	_, err := f.FetchBars(context.Background(), BarQuery{Exchange: "SSE", Code: "600036", Resolution: "D"})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNoData)
}
