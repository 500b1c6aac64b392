package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"udf_backend_project/models"
)

const (
	defaultSearchLimit = 30
	maxSearchLimit     = 100

	stockSession   = "0900-1500"
	futuresSession = "0900-1015,1030-1130,1330-1500,2100-2300"
	marketTimezone = "Asia/Shanghai"

	// always resolvable so the widget has at least one working symbol
	demoSymbol = "SSE:600036"
	demoCode   = "600036"
	demoName   = "招商银行"
)

// SymbolFinder is the store side of search and lookup.
type SymbolFinder interface {
	FindStock(ctx context.Context, exchange, code string) (*models.Stock, error)
	FindFuture(ctx context.Context, exchange, code string) (*models.Future, error)
	Search(ctx context.Context, query, exchange string, kind models.Kind, limit int) ([]models.Instrument, error)
}

// SearchQuery carries the raw /search parameters.
type SearchQuery struct {
	Query    string
	Exchange string
	Type     string
	Limit    string
}

// SymbolService answers the configuration, time, search and symbol lookup endpoints.
type SymbolService struct {
	store SymbolFinder
	log   *zap.Logger
	now   func() time.Time
}

func NewSymbolService(store SymbolFinder, log *zap.Logger) *SymbolService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SymbolService{store: store, log: log.Named("symbols"), now: time.Now}
}

func (s *SymbolService) Config() models.UDFConfig {
	return models.UDFConfig{
		SupportsSearch:         true,
		SupportsGroupRequest:   false,
		SupportsMarks:          false,
		SupportsTimescaleMarks: false,
		SupportsTime:           true,
		Exchanges: []models.UDFExchange{
			{Value: models.ExchangeSSE, Name: "上海证券交易所"},
			{Value: models.ExchangeSZSE, Name: "深圳证券交易所"},
			{Value: models.ExchangeCFFEX, Name: "中国金融期货交易所"},
			{Value: models.ExchangeSHFE, Name: "上海期货交易所"},
			{Value: models.ExchangeDCE, Name: "大连商品交易所"},
			{Value: models.ExchangeCZCE, Name: "郑州商品交易所"},
		},
		SymbolsTypes: []models.UDFSymbolType{
			{Name: "股票", Value: string(models.KindStock)},
			{Name: "期货", Value: string(models.KindFuture)},
		},
		SupportedResolutions: append([]string(nil), models.SupportedResolutions...),
	}
}

// Time is the server clock in epoch milliseconds.
func (s *SymbolService) Time() int64 {
	return s.now().UnixMilli()
}

// ParseSearchLimit clamps limit to [1, 100]; missing or non-numeric input is 30.
func ParseSearchLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultSearchLimit
	}
	return max(1, min(n, maxSearchLimit))
}

// Search returns stocks then futures matching q, at most limit in total.
// Failures yield an empty list.
func (s *SymbolService) Search(ctx context.Context, q SearchQuery) []models.SearchResult {
	limit := ParseSearchLimit(q.Limit)
	results := make([]models.SearchResult, 0, limit)

	for _, kind := range searchKinds(q.Type) {
		rows, err := s.store.Search(ctx, strings.TrimSpace(q.Query), strings.TrimSpace(q.Exchange), kind, limit)
		if err != nil {
			s.log.Error("Search failed", zap.String("query", q.Query), zap.Error(err))
			return []models.SearchResult{}
		}
		for _, r := range rows {
			symbol := r.Exchange + ":" + r.Code
			results = append(results, models.SearchResult{
				Symbol:      symbol,
				FullName:    symbol,
				Description: r.Name,
				Exchange:    r.Exchange,
				Type:        string(kind),
				TickSize:    0.01,
			})
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func searchKinds(typ string) []models.Kind {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "stock":
		return []models.Kind{models.KindStock}
	case "future", "futures":
		return []models.Kind{models.KindFuture}
	}
	return []models.Kind{models.KindStock, models.KindFuture}
}

func baseSymbolInfo() models.SymbolInfo {
	return models.SymbolInfo{
		Timezone:             marketTimezone,
		Minmov:               1,
		Pricescale:           100,
		Session:              stockSession,
		HasIntraday:          true,
		HasNoVolume:          false,
		Type:                 string(models.KindStock),
		SupportedResolutions: append([]string(nil), models.SupportedResolutions...),
	}
}

// Resolve builds the descriptor for "EXCHANGE:CODE". It always returns the full shape;
// problems are reported through the description.
func (s *SymbolService) Resolve(ctx context.Context, symbol string) models.SymbolInfo {
	info := baseSymbolInfo()
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		info.Description = "缺少符号参数"
		return info
	}

	exchange, code, ok := SplitSymbol(symbol)
	if !ok {
		s.log.Warn("Malformed symbol", zap.String("symbol", symbol))
		info.Description = "无效的符号格式: " + symbol
		return info
	}
	info.Ticker = exchange + ":" + code
	info.ExchangeTraded = exchange
	info.ExchangeListed = exchange
	info.Name = code
	info.Description = exchange + ":" + code

	if info.Ticker == demoSymbol {
		info.Name = demoCode + " " + demoName
		info.Description = demoName
		return info
	}

	stock, err := s.store.FindStock(ctx, exchange, code)
	if err != nil {
		return s.errorInfo(symbol, err)
	}
	if stock != nil {
		info.Name = code + " " + stock.Name
		info.Description = stock.Name
		return info
	}

	future, err := s.store.FindFuture(ctx, exchange, code)
	if err != nil {
		return s.errorInfo(symbol, err)
	}
	if future != nil {
		info.Name = code + " " + future.Name
		info.Description = future.Name
		info.Type = "futures"
		info.Session = futuresSession
		return info
	}

	s.log.Debug("Symbol not found, returning default descriptor", zap.String("symbol", symbol))
	return info
}

func (s *SymbolService) errorInfo(symbol string, err error) models.SymbolInfo {
	s.log.Error("Symbol lookup failed", zap.String("symbol", symbol), zap.Error(err))
	info := baseSymbolInfo()
	info.Name = "error"
	info.Description = "服务器错误: " + err.Error()
	return info
}
