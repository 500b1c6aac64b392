package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"udf_backend_project/config"
	"udf_backend_project/metrics"
	"udf_backend_project/models"
	"udf_backend_project/services/datafetcher"
)

// Messages returned in-band to the charting client.
const (
	msgIncompleteParams = "参数不完整"
	msgBadTime          = "时间格式错误"
	msgBadSymbol        = "无效的符号格式: "
	msgBadResolution    = "不支持的周期: "
	msgNoDateColumn     = "数据格式错误"
	msgReshapeFailed    = "数据格式化失败"
	msgProviderFailed   = "数据源获取失败"
)

// Bar column candidates, first present wins.
var (
	openColumns   = []string{"开盘", "open", "开盘价"}
	highColumns   = []string{"最高", "high", "最高价"}
	lowColumns    = []string{"最低", "low", "最低价"}
	closeColumns  = []string{"收盘", "close", "收盘价"}
	volumeColumns = []string{"成交量", "volume", "成交"}
)

// BarFetcher is the provider side of bar retrieval.
type BarFetcher interface {
	FetchBars(ctx context.Context, q datafetcher.BarQuery) (*datafetcher.Table, error)
}

// BarCache persists provider answers and the windows they covered.
type BarCache interface {
	FindCoverage(ctx context.Context, symbol, resolution string, from, to int64, since time.Time) (*models.HistoryCoverage, error)
	LoadBars(ctx context.Context, symbol, resolution string, from, to int64) ([]models.HistoryBar, error)
	SaveBars(ctx context.Context, bars []models.HistoryBar, now time.Time) error
	RecordCoverage(ctx context.Context, cov *models.HistoryCoverage) error
}

// HistoryQuery carries the raw /history parameters.
type HistoryQuery struct {
	Symbol     string
	Resolution string
	From       string
	To         string
}

type HistoryService struct {
	fetcher BarFetcher
	cache   BarCache
	cfg     config.HistoryConfig
	loc     *time.Location
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewHistoryService builds the bar retrieval path. cache may be nil; loc is the market
// timezone used for provider date bounds.
func NewHistoryService(fetcher BarFetcher, cache BarCache, cfg config.HistoryConfig, loc *time.Location, m *metrics.Metrics, log *zap.Logger) *HistoryService {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &HistoryService{
		fetcher: fetcher,
		cache:   cache,
		cfg:     cfg,
		loc:     loc,
		metrics: m,
		log:     log.Named("history"),
		now:     time.Now,
	}
}

// History validates q, then answers from the bar cache or the provider.
// Every outcome is an in-band status; it never returns a transport error.
func (s *HistoryService) History(ctx context.Context, q HistoryQuery) models.HistoryResponse {
	symbol := strings.TrimSpace(q.Symbol)
	resolution := strings.TrimSpace(q.Resolution)
	if resolution == "" {
		resolution = "D"
	}

	if symbol == "" || q.From == "" || q.To == "" {
		return s.fail(msgIncompleteParams, zap.String("symbol", symbol), zap.String("from", q.From), zap.String("to", q.To))
	}
	from, errFrom := strconv.ParseInt(strings.TrimSpace(q.From), 10, 64)
	to, errTo := strconv.ParseInt(strings.TrimSpace(q.To), 10, 64)
	if errFrom != nil || errTo != nil {
		return s.fail(msgBadTime, zap.String("from", q.From), zap.String("to", q.To))
	}
	if from == 0 || to == 0 {
		return s.fail(msgIncompleteParams, zap.String("symbol", symbol), zap.Int64("from", from), zap.Int64("to", to))
	}

	exchange, code, ok := SplitSymbol(symbol)
	if !ok {
		return s.fail(msgBadSymbol+symbol)
	}
	if !supportedResolution(resolution) {
		return s.fail(msgBadResolution + resolution)
	}
	key := exchange + ":" + code
	query := datafetcher.BarQuery{
		Exchange:   exchange,
		Code:       code,
		Resolution: resolution,
		StartDate:  s.dateString(from),
		EndDate:    s.dateString(to),
	}
	window, cacheable := s.cacheWindow(query)

	if cacheable {
		if resp, ok := s.fromCache(ctx, key, resolution, window); ok {
			s.metrics.HistoryRequest("cache_hit")
			return resp
		}
	}

	table, err := s.fetcher.FetchBars(ctx, query)
	if errors.Is(err, datafetcher.ErrNoData) {
		s.log.Warn("No bars from provider", zap.String("symbol", key), zap.String("resolution", resolution), zap.Error(err))
		s.metrics.HistoryRequest(models.StatusNoData)
		return models.HistoryResponse{S: models.StatusNoData}
	}
	if err != nil {
		s.log.Error("Bar fetch failed", zap.String("symbol", key), zap.String("resolution", resolution), zap.Error(err))
		if s.cfg.PlaceholderOnError {
			s.metrics.HistoryRequest("placeholder")
			return PlaceholderBars(from)
		}
		return s.fail(msgProviderFailed)
	}

	bars, msg := reshapeBars(table, key, resolution)
	if msg != "" {
		return s.fail(msg, zap.String("symbol", key), zap.Strings("columns", table.Columns))
	}
	s.metrics.HistoryRequest(models.StatusOK)
	if cacheable {
		s.store(ctx, key, resolution, window, bars)
	}
	return barsResponse(bars)
}

// SplitSymbol splits "EXCHANGE:CODE" on the first colon.
func SplitSymbol(symbol string) (exchange, code string, ok bool) {
	exchange, code, ok = strings.Cut(symbol, ":")
	if !ok || exchange == "" || code == "" {
		return "", "", false
	}
	return exchange, code, true
}

func supportedResolution(r string) bool {
	for _, s := range models.SupportedResolutions {
		if s == r {
			return true
		}
	}
	return false
}

func (s *HistoryService) dateString(ts int64) string {
	return time.Unix(ts, 0).In(s.loc).Format("20060102")
}

func (s *HistoryService) fail(msg string, fields ...zap.Field) models.HistoryResponse {
	s.log.Warn("History request rejected", append([]zap.Field{zap.String("errmsg", msg)}, fields...)...)
	s.metrics.HistoryRequest(models.StatusError)
	return models.HistoryResponse{S: models.StatusError, ErrMsg: msg}
}

// barWindow is the span of bar timestamps a provider call can answer with.
type barWindow struct {
	from, to int64
}

func (w barWindow) contains(ts int64) bool { return ts >= w.from && ts <= w.to }

// cacheWindow maps q to the timestamps of the calendar days the provider returns. Provider
// dates decode as UTC midnights, so the window runs from StartDate 00:00 UTC to the last
// second of EndDate. Routes that ignore the date range are not cacheable.
func (s *HistoryService) cacheWindow(q datafetcher.BarQuery) (barWindow, bool) {
	if s.cache == nil || !s.cfg.CacheEnabled {
		return barWindow{}, false
	}
	route, err := datafetcher.RouteBars(q)
	if err != nil || !route.DateBounded() {
		return barWindow{}, false
	}
	start, errStart := time.ParseInLocation("20060102", q.StartDate, time.UTC)
	end, errEnd := time.ParseInLocation("20060102", q.EndDate, time.UTC)
	if errStart != nil || errEnd != nil || end.Before(start) {
		return barWindow{}, false
	}
	return barWindow{from: start.Unix(), to: end.AddDate(0, 0, 1).Unix() - 1}, true
}

func (s *HistoryService) fromCache(ctx context.Context, symbol, resolution string, w barWindow) (models.HistoryResponse, bool) {
	if s.cfg.CacheTTL <= 0 {
		return models.HistoryResponse{}, false
	}
	cov, err := s.cache.FindCoverage(ctx, symbol, resolution, w.from, w.to, s.now().Add(-s.cfg.CacheTTL))
	if err != nil {
		s.log.Warn("Coverage lookup failed", zap.String("symbol", symbol), zap.Error(err))
		return models.HistoryResponse{}, false
	}
	if cov == nil {
		return models.HistoryResponse{}, false
	}
	bars, err := s.cache.LoadBars(ctx, symbol, resolution, w.from, w.to)
	if err != nil || len(bars) == 0 {
		return models.HistoryResponse{}, false
	}
	return barsResponse(bars), true
}

// store saves bars and the window they answer when a later hit would reproduce the
// answer: unique ascending timestamps inside the window.
func (s *HistoryService) store(ctx context.Context, symbol, resolution string, w barWindow, bars []models.HistoryBar) {
	if !replayable(bars, w) {
		s.log.Debug("Provider answer not replayable from the store, skipping cache",
			zap.String("symbol", symbol), zap.String("resolution", resolution))
		return
	}
	now := s.now()
	if err := s.cache.SaveBars(ctx, append([]models.HistoryBar(nil), bars...), now); err != nil {
		s.log.Warn("Saving bars failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	cov := &models.HistoryCoverage{Symbol: symbol, Resolution: resolution, FromTS: w.from, ToTS: w.to, FetchedAt: now}
	if err := s.cache.RecordCoverage(ctx, cov); err != nil {
		s.log.Warn("Recording coverage failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

func replayable(bars []models.HistoryBar, w barWindow) bool {
	for i, b := range bars {
		if !w.contains(b.Timestamp) || (i > 0 && b.Timestamp <= bars[i-1].Timestamp) {
			return false
		}
	}
	return true
}

// reshapeBars converts a provider table into bars in table order. A non-empty msg is the
// client-facing error. Missing price or volume columns read as zeros.
func reshapeBars(t *datafetcher.Table, symbol, resolution string) ([]models.HistoryBar, string) {
	dateCol, ok := t.DateColumn()
	if !ok {
		return nil, msgNoDateColumn
	}
	openCol, _ := t.Resolve(openColumns...)
	highCol, _ := t.Resolve(highColumns...)
	lowCol, _ := t.Resolve(lowColumns...)
	closeCol, _ := t.Resolve(closeColumns...)
	volumeCol, _ := t.Resolve(volumeColumns...)

	bars := make([]models.HistoryBar, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		ts, err := t.Epoch(i, dateCol)
		if err != nil {
			return nil, msgReshapeFailed
		}
		bars = append(bars, models.HistoryBar{
			Symbol:     symbol,
			Resolution: resolution,
			Timestamp:  ts,
			Open:       t.Float(i, openCol),
			High:       t.Float(i, highCol),
			Low:        t.Float(i, lowCol),
			Close:      t.Float(i, closeCol),
			Volume:     t.Int(i, volumeCol),
		})
	}
	return bars, ""
}

func barsResponse(bars []models.HistoryBar) models.HistoryResponse {
	resp := models.HistoryResponse{
		S: models.StatusOK,
		T: make([]int64, len(bars)),
		O: make([]float64, len(bars)),
		H: make([]float64, len(bars)),
		L: make([]float64, len(bars)),
		C: make([]float64, len(bars)),
		V: make([]int64, len(bars)),
	}
	for i, b := range bars {
		resp.T[i], resp.O[i], resp.H[i], resp.L[i], resp.C[i], resp.V[i] = b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume
	}
	return resp
}

// PlaceholderBars is the fixed five-day series served when the provider fails and
// placeholders are enabled. It is a debugging aid and is never cached.
func PlaceholderBars(from int64) models.HistoryResponse {
	const day = 86400
	return models.HistoryResponse{
		S: models.StatusOK,
		T: []int64{from, from + day, from + 2*day, from + 3*day, from + 4*day},
		O: []float64{10.0, 10.2, 10.1, 10.3, 10.5},
		H: []float64{10.1, 10.3, 10.2, 10.4, 10.6},
		L: []float64{9.9, 10.1, 10.0, 10.2, 10.4},
		C: []float64{10.0, 10.2, 10.1, 10.3, 10.5},
		V: []int64{1000, 2000, 1500, 2500, 3000},
	}
}
