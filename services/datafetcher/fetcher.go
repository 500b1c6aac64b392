package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"udf_backend_project/metrics"
	"udf_backend_project/models"
)

// ErrNoData means the provider answered but had nothing for the request.
var ErrNoData = errors.New("provider returned no data")

// Stock list entry points, in preference order.
var StockListEntryPoints = []string{
	"stock_zh_a_spot_em",
	"stock_zh_a_spot",
}

// Per-exchange futures contract entry points; their results are unioned.
var FuturesContractEntryPoints = []string{
	"futures_contract_info_cffex",
	"futures_contract_info_czce",
	"futures_contract_info_gfex",
	"futures_contract_info_ine",
	"futures_contract_info_shfe",
}

const (
	// ContractCodeColumn must be present for a futures result to be used.
	ContractCodeColumn = "合约代码"
	// SourceColumn tags each futures row with the entry point that produced it.
	SourceColumn = "_entry_point"
)

// DataFetcher is the provider adapter: it knows which entry points serve which data
// and turns their failures and empty answers into ErrNoData.
type DataFetcher struct {
	caller  Caller
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewDataFetcher(caller Caller, m *metrics.Metrics, log *zap.Logger) *DataFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &DataFetcher{caller: caller, metrics: m, log: log.Named("datafetcher")}
}

func (f *DataFetcher) call(ctx context.Context, entryPoint string, params url.Values) (*Table, error) {
	start := time.Now()
	table, err := f.caller.Call(ctx, entryPoint, params)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case table.Empty():
		outcome = "empty"
	}
	f.metrics.ProviderCall(entryPoint, outcome, time.Since(start))
	return table, err
}

// FetchStockList returns the first non-empty stock universe among StockListEntryPoints.
func (f *DataFetcher) FetchStockList(ctx context.Context) (*Table, error) {
	var causes []error
	for _, ep := range StockListEntryPoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		table, err := f.call(ctx, ep, nil)
		if err != nil {
			f.log.Warn("Stock list entry point failed", zap.String("entry_point", ep), zap.Error(err))
			causes = append(causes, fmt.Errorf("%s: %w", ep, err))
			continue
		}
		if table.Empty() {
			causes = append(causes, fmt.Errorf("%s: empty", ep))
			continue
		}
		f.log.Debug("Stock list fetched",
			zap.String("entry_point", ep),
			zap.Int("rows", table.Len()),
			zap.Strings("columns", table.Columns),
		)
		return table, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNoData, errors.Join(causes...))
}

// FetchFuturesContracts unions every contract table that carries ContractCodeColumn.
// Each row gets SourceColumn set to its entry point.
func (f *DataFetcher) FetchFuturesContracts(ctx context.Context) (*Table, error) {
	union := &Table{}
	var causes []error
	for _, ep := range FuturesContractEntryPoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		table, err := f.call(ctx, ep, nil)
		if err != nil {
			f.log.Warn("Futures entry point failed", zap.String("entry_point", ep), zap.Error(err))
			causes = append(causes, fmt.Errorf("%s: %w", ep, err))
			continue
		}
		if table.Empty() || !table.Has(ContractCodeColumn) {
			causes = append(causes, fmt.Errorf("%s: no %s column", ep, ContractCodeColumn))
			continue
		}
		order := append(append([]string{}, table.Columns...), SourceColumn)
		for _, row := range table.Rows {
			row[SourceColumn] = ep
			union.Append(row, order)
		}
	}
	if union.Empty() {
		return nil, fmt.Errorf("%w: %w", ErrNoData, errors.Join(causes...))
	}
	return union, nil
}

// BarQuery is a normalized bar request. Dates are YYYYMMDD in the market timezone.
type BarQuery struct {
	Exchange   string
	Code       string
	Resolution string
	StartDate  string
	EndDate    string
}

// Route is the provider call a BarQuery maps to.
type Route struct {
	EntryPoint string
	Params     url.Values
	// FilterByDate trims the result to [StartDate, EndDate] locally.
	FilterByDate bool
}

// DateBounded reports whether the result is limited to [StartDate, EndDate], either by
// the provider or by the local filter. Minute routes return the provider's recent window.
func (r Route) DateBounded() bool {
	return r.FilterByDate || r.Params.Has("start_date")
}

// FetchBars calls the routed entry point. Empty results and unroutable queries are ErrNoData.
func (f *DataFetcher) FetchBars(ctx context.Context, q BarQuery) (*Table, error) {
	route, err := RouteBars(q)
	if err != nil {
		return nil, err
	}
	table, err := f.call(ctx, route.EntryPoint, route.Params)
	if err != nil {
		return nil, err
	}
	if route.FilterByDate {
		table = filterByDate(table, q.StartDate, q.EndDate)
	}
	if table.Empty() {
		return nil, fmt.Errorf("%w: %s for %s:%s", ErrNoData, route.EntryPoint, q.Exchange, q.Code)
	}
	return table, nil
}

// RouteBars picks the entry point for a query from its market and resolution class.
func RouteBars(q BarQuery) (Route, error) {
	period, ok := periodFor(q.Resolution)
	if !ok {
		return Route{}, fmt.Errorf("%w: unsupported resolution %q", ErrNoData, q.Resolution)
	}

	if prefix, ok := StockCodePrefix(q.Exchange); ok {
		switch period {
		case "daily":
			return Route{
				EntryPoint: "stock_zh_a_daily",
				Params: url.Values{
					"symbol":     {prefix + q.Code},
					"start_date": {q.StartDate},
					"end_date":   {q.EndDate},
				},
			}, nil
		case "weekly", "monthly":
			return Route{
				EntryPoint: "stock_zh_a_hist",
				Params: url.Values{
					"symbol":     {q.Code},
					"period":     {period},
					"start_date": {q.StartDate},
					"end_date":   {q.EndDate},
				},
			}, nil
		default:
			// minute bars come back as the provider's recent window; the range is ignored
			return Route{
				EntryPoint: "stock_zh_a_minute",
				Params: url.Values{
					"symbol": {prefix + q.Code},
					"period": {period},
				},
			}, nil
		}
	}

	if IsFuturesExchange(q.Exchange) {
		return Route{
			EntryPoint:   "futures_zh_daily_sina",
			Params:       url.Values{"symbol": {q.Code}},
			FilterByDate: true,
		}, nil
	}

	return Route{}, fmt.Errorf("%w: no entry point for exchange %q", ErrNoData, q.Exchange)
}

func periodFor(resolution string) (string, bool) {
	switch resolution {
	case "1", "5", "15", "30", "60":
		return resolution, true
	case "D":
		return "daily", true
	case "W":
		return "weekly", true
	case "M":
		return "monthly", true
	}
	return "", false
}

// StockCodePrefix is the market prefix the provider expects in front of a stock code.
func StockCodePrefix(exchange string) (string, bool) {
	switch exchange {
	case models.ExchangeSSE:
		return "sh", true
	case models.ExchangeSZSE:
		return "sz", true
	case models.ExchangeBSE:
		return "bj", true
	}
	return "", false
}

func IsFuturesExchange(exchange string) bool {
	switch exchange {
	case models.ExchangeCFFEX, models.ExchangeSHFE, models.ExchangeDCE,
		models.ExchangeCZCE, models.ExchangeINE, models.ExchangeGFEX:
		return true
	}
	return false
}

// filterByDate keeps rows whose calendar date falls inside [start, end]. Rows with an
// unparseable date are kept so the reshape step can report them.
func filterByDate(t *Table, start, end string) *Table {
	if t.Empty() {
		return t
	}
	col, ok := t.DateColumn()
	if !ok {
		return t
	}
	out := &Table{Columns: t.Columns}
	for i, row := range t.Rows {
		ts, err := t.Epoch(i, col)
		if err != nil {
			out.Rows = append(out.Rows, row)
			continue
		}
		day := time.Unix(ts, 0).UTC().Format("20060102")
		if (start != "" && day < start) || (end != "" && day > end) {
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}
