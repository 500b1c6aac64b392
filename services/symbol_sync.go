package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"udf_backend_project/config"
	"udf_backend_project/metrics"
	"udf_backend_project/models"
	"udf_backend_project/services/datafetcher"
)

const (
	sourceProvider = "provider"
	sourceSeed     = "seed"
)

// ListFetcher is the provider side of a sync cycle.
type ListFetcher interface {
	FetchStockList(ctx context.Context) (*datafetcher.Table, error)
	FetchFuturesContracts(ctx context.Context) (*datafetcher.Table, error)
}

// InstrumentWriter is the store side of a sync cycle.
type InstrumentWriter interface {
	InstrumentLister
	UpsertStocks(ctx context.Context, rows []models.Stock, now time.Time) error
	UpsertFutures(ctx context.Context, rows []models.Future, now time.Time) error
}

// SyncResult summarizes one completed cycle.
type SyncResult struct {
	Stocks         int       `json:"stocks"`
	Futures        int       `json:"futures"`
	StockSource    string    `json:"stock_source"`
	FutureSource   string    `json:"future_source"`
	StockAttempts  int       `json:"stock_attempts"`
	FutureAttempts int       `json:"future_attempts"`
	SyncedAt       time.Time `json:"synced_at"`
}

// SymbolSynchronizer keeps the instrument tables and the list cache filled.
// It is the only writer of stock and futures rows.
type SymbolSynchronizer struct {
	fetcher ListFetcher
	store   InstrumentWriter
	cache   *ListCache
	cfg     config.SyncConfig
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time

	mu   sync.RWMutex
	last *SyncResult
}

func NewSymbolSynchronizer(fetcher ListFetcher, store InstrumentWriter, cache *ListCache, cfg config.SyncConfig, m *metrics.Metrics, log *zap.Logger) *SymbolSynchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.MaxStockRows <= 0 {
		cfg.MaxStockRows = 1000
	}
	if cfg.MaxFutureRows <= 0 {
		cfg.MaxFutureRows = 500
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &SymbolSynchronizer{
		fetcher: fetcher,
		store:   store,
		cache:   cache,
		cfg:     cfg,
		metrics: m,
		log:     log.Named("symbol_sync"),
		now:     time.Now,
	}
}

// Run syncs immediately, then again Interval after each cycle finishes, until ctx is done.
// Cycles never overlap and a failed cycle never stops the loop.
func (s *SymbolSynchronizer) Run(ctx context.Context) {
	s.log.Info("Symbol synchronizer started", zap.Duration("interval", s.cfg.Interval))
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("Symbol sync cycle abandoned", zap.Error(err))
		}
		if err := sleepCtx(ctx, s.cfg.Interval); err != nil {
			s.log.Info("Symbol synchronizer stopped")
			return
		}
	}
}

// RunOnce runs one cycle, retrying the whole cycle up to MaxAttempts times.
func (s *SymbolSynchronizer) RunOnce(ctx context.Context) (*SyncResult, error) {
	var err error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		var res *SyncResult
		res, err = s.cycle(ctx)
		if err == nil {
			s.metrics.SyncCycle("success")
			s.mu.Lock()
			s.last = res
			s.mu.Unlock()
			s.log.Info("Symbol list updated",
				zap.Int("stocks", res.Stocks),
				zap.String("stock_source", res.StockSource),
				zap.Int("futures", res.Futures),
				zap.String("future_source", res.FutureSource),
			)
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.metrics.SyncCycle("cancelled")
			return nil, ctxErr
		}
		s.log.Error("Symbol sync cycle failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.MaxAttempts),
			zap.Error(err),
		)
		if attempt < s.cfg.MaxAttempts {
			if sleepErr := sleepCtx(ctx, s.cfg.RetryDelay); sleepErr != nil {
				s.metrics.SyncCycle("cancelled")
				return nil, sleepErr
			}
		}
	}
	s.metrics.SyncCycle("failed")
	return nil, fmt.Errorf("symbol sync failed after %d attempts: %w", s.cfg.MaxAttempts, err)
}

// LastResult is the outcome of the most recent successful cycle, or nil.
func (s *SymbolSynchronizer) LastResult() *SyncResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *SymbolSynchronizer) cycle(ctx context.Context) (res *SyncResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in sync cycle: %v", r)
		}
	}()

	now := s.now()
	policy := FetchPolicy{MaxAttempts: s.cfg.MaxAttempts, Delay: s.cfg.RetryDelay}
	res = &SyncResult{SyncedAt: now}

	stocks, err := s.resolveStocks(ctx, policy, res)
	if err != nil {
		return nil, err
	}
	futures, err := s.resolveFutures(ctx, policy, res)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpsertStocks(ctx, stocks, now); err != nil {
		return nil, fmt.Errorf("upsert stocks: %w", err)
	}
	if err := s.store.UpsertFutures(ctx, futures, now); err != nil {
		return nil, fmt.Errorf("upsert futures: %w", err)
	}
	res.Stocks, res.Futures = len(stocks), len(futures)
	s.metrics.SyncRows(string(models.KindStock), res.StockSource, res.Stocks)
	s.metrics.SyncRows(string(models.KindFuture), res.FutureSource, res.Futures)

	readAt := s.now()
	storedStocks, err := s.store.ListStocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload stocks: %w", err)
	}
	storedFutures, err := s.store.ListFutures(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload futures: %w", err)
	}
	if s.cache != nil {
		s.cache.Replace(storedStocks, storedFutures, readAt)
	}
	return res, nil
}

func (s *SymbolSynchronizer) resolveStocks(ctx context.Context, policy FetchPolicy, res *SyncResult) ([]models.Stock, error) {
	out, err := RunFetch(ctx, policy,
		func(ctx context.Context, attempt int) (*datafetcher.Table, error) {
			return s.fetcher.FetchStockList(ctx)
		},
		func() *datafetcher.Table { return nil },
	)
	if err != nil {
		return nil, err
	}
	res.StockAttempts = out.Attempts

	if out.State == StateFellBackToStatic {
		s.log.Error("Stock list unavailable, writing seed list",
			zap.Int("attempts", out.Attempts),
			zap.Error(errors.Join(out.Errors...)),
		)
		res.StockSource = sourceSeed
		return seedStocks(), nil
	}

	stocks, err := ClassifyStockRows(out.Value, s.cfg.MaxStockRows)
	if err != nil {
		s.log.Warn("Stock list columns not recognised, writing seed list",
			zap.Strings("columns", out.Value.Columns),
			zap.Error(err),
		)
		res.StockSource = sourceSeed
		return seedStocks(), nil
	}
	res.StockSource = sourceProvider
	return stocks, nil
}

func (s *SymbolSynchronizer) resolveFutures(ctx context.Context, policy FetchPolicy, res *SyncResult) ([]models.Future, error) {
	out, err := RunFetch(ctx, policy,
		func(ctx context.Context, attempt int) (*datafetcher.Table, error) {
			return s.fetcher.FetchFuturesContracts(ctx)
		},
		func() *datafetcher.Table { return nil },
	)
	if err != nil {
		return nil, err
	}
	res.FutureAttempts = out.Attempts

	if out.State == StateFellBackToStatic {
		s.log.Error("Futures contracts unavailable, writing seed list",
			zap.Int("attempts", out.Attempts),
			zap.Error(errors.Join(out.Errors...)),
		)
		res.FutureSource = sourceSeed
		return seedFutures(), nil
	}

	if _, ok := out.Value.Resolve(futureNameColumns...); !ok {
		s.log.Warn("No futures name column, synthesizing names", zap.Strings("columns", out.Value.Columns))
	}
	res.FutureSource = sourceProvider
	return ClassifyFutureRows(out.Value, s.cfg.MaxFutureRows), nil
}
