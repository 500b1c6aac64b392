package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"udf_backend_project/models"
)

const (
	upsertBatchSize = 200
	busyRetries     = 3
)

// InstrumentStore is the relational store for instruments and cached bars.
// All timestamps are stored in UTC.
type InstrumentStore struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewInstrumentStore(db *gorm.DB, log *zap.Logger) *InstrumentStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &InstrumentStore{db: db, log: log.Named("store")}
}

// Migrate creates or verifies every table.
func (s *InstrumentStore) Migrate(ctx context.Context) error {
	if err := models.Migrate(s.db.WithContext(ctx)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *InstrumentStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// UpsertStocks inserts or replaces rows by code in one transaction, stamping now.
// Later rows win when a batch repeats a code.
func (s *InstrumentStore) UpsertStocks(ctx context.Context, rows []models.Stock, now time.Time) error {
	rows = lastByCode(rows, func(r models.Stock) string { return r.Code })
	for i := range rows {
		rows[i].UpdateTime = now.UTC()
	}
	return s.upsertByCode(ctx, &rows, len(rows))
}

func (s *InstrumentStore) UpsertFutures(ctx context.Context, rows []models.Future, now time.Time) error {
	rows = lastByCode(rows, func(r models.Future) string { return r.Code })
	for i := range rows {
		rows[i].UpdateTime = now.UTC()
	}
	return s.upsertByCode(ctx, &rows, len(rows))
}

func (s *InstrumentStore) upsertByCode(ctx context.Context, rows any, n int) error {
	if n == 0 {
		return nil
	}
	return s.withBusyRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "code"}},
				UpdateAll: true,
			}).CreateInBatches(rows, upsertBatchSize).Error
		})
	})
}

func (s *InstrumentStore) ListStocks(ctx context.Context) ([]models.Stock, error) {
	var rows []models.Stock
	if err := s.db.WithContext(ctx).Order("code").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	return rows, nil
}

func (s *InstrumentStore) ListFutures(ctx context.Context) ([]models.Future, error) {
	var rows []models.Future
	if err := s.db.WithContext(ctx).Order("code").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list futures: %w", err)
	}
	return rows, nil
}

// FindStock returns (nil, nil) when no row matches.
func (s *InstrumentStore) FindStock(ctx context.Context, exchange, code string) (*models.Stock, error) {
	var row models.Stock
	err := s.db.WithContext(ctx).Where("code = ? AND exchange = ?", code, exchange).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find stock %s:%s: %w", exchange, code, err)
	}
	return &row, nil
}

// FindFuture returns (nil, nil) when no row matches.
func (s *InstrumentStore) FindFuture(ctx context.Context, exchange, code string) (*models.Future, error) {
	var row models.Future
	err := s.db.WithContext(ctx).Where("code = ? AND exchange = ?", code, exchange).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find future %s:%s: %w", exchange, code, err)
	}
	return &row, nil
}

// '!' escapes LIKE wildcards in every supported dialect.
var likeEscaper = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

// Search matches query case-insensitively against code and name in the table of kind,
// optionally restricted to one exchange, returning at most limit rows.
func (s *InstrumentStore) Search(ctx context.Context, query, exchange string, kind models.Kind, limit int) ([]models.Instrument, error) {
	table := models.Stock{}.TableName()
	if kind == models.KindFuture {
		table = models.Future{}.TableName()
	}

	tx := s.db.WithContext(ctx).Table(table).Select("code, name, exchange")
	if query != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
		tx = tx.Where(`(LOWER(code) LIKE ? ESCAPE '!' OR LOWER(name) LIKE ? ESCAPE '!')`, pattern, pattern)
	}
	if exchange != "" {
		tx = tx.Where("exchange = ?", exchange)
	}

	var rows []models.Instrument
	if err := tx.Order("code").Limit(limit).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("search %s: %w", table, err)
	}
	for i := range rows {
		rows[i].Type = kind
	}
	return rows, nil
}

// SaveBars upserts bars keyed by (symbol, resolution, timestamp).
func (s *InstrumentStore) SaveBars(ctx context.Context, bars []models.HistoryBar, now time.Time) error {
	if len(bars) == 0 {
		return nil
	}
	for i := range bars {
		bars[i].UpdateTime = now.UTC()
	}
	return s.withBusyRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "symbol"}, {Name: "resolution"}, {Name: "timestamp"}},
				UpdateAll: true,
			}).CreateInBatches(&bars, upsertBatchSize).Error
		})
	})
}

// timestamp is reserved in some dialects; clause.Column is quoted per dialect.
var timestampColumn = clause.Column{Name: "timestamp"}

// LoadBars reads bars with from <= timestamp <= to in timestamp order.
func (s *InstrumentStore) LoadBars(ctx context.Context, symbol, resolution string, from, to int64) ([]models.HistoryBar, error) {
	var bars []models.HistoryBar
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND resolution = ?", symbol, resolution).
		Where("? BETWEEN ? AND ?", timestampColumn, from, to).
		Order(clause.OrderByColumn{Column: timestampColumn}).
		Find(&bars).Error
	if err != nil {
		return nil, fmt.Errorf("load bars %s/%s: %w", symbol, resolution, err)
	}
	return bars, nil
}

func (s *InstrumentStore) RecordCoverage(ctx context.Context, cov *models.HistoryCoverage) error {
	cov.FetchedAt = cov.FetchedAt.UTC()
	return s.withBusyRetry(ctx, func() error {
		return s.db.WithContext(ctx).Create(cov).Error
	})
}

// FindCoverage returns the newest window fetched at or after since that contains
// [from, to], or (nil, nil).
func (s *InstrumentStore) FindCoverage(ctx context.Context, symbol, resolution string, from, to int64, since time.Time) (*models.HistoryCoverage, error) {
	var cov models.HistoryCoverage
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND resolution = ? AND from_ts <= ? AND to_ts >= ? AND fetched_at >= ?",
			symbol, resolution, from, to, since.UTC()).
		Order("fetched_at DESC").
		Take(&cov).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find coverage %s/%s: %w", symbol, resolution, err)
	}
	return &cov, nil
}

// PruneBars deletes cached bars and coverage windows older than before.
func (s *InstrumentStore) PruneBars(ctx context.Context, before time.Time) (int64, error) {
	before = before.UTC()
	var removed int64
	err := s.withBusyRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Where("fetched_at < ?", before).Delete(&models.HistoryCoverage{})
			if res.Error != nil {
				return res.Error
			}
			bars := tx.Where("update_time < ?", before).Delete(&models.HistoryBar{})
			if bars.Error != nil {
				return bars.Error
			}
			removed = bars.RowsAffected
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("prune bars: %w", err)
	}
	return removed, nil
}

// withBusyRetry retries fn while SQLite reports the database busy or locked.
func (s *InstrumentStore) withBusyRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= busyRetries; attempt++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		s.log.Warn("Database busy, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return err
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

func lastByCode[T any](rows []T, code func(T) string) []T {
	pos := make(map[string]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if i, ok := pos[code(r)]; ok {
			out[i] = r
			continue
		}
		pos[code(r)] = len(out)
		out = append(out, r)
	}
	return out
}
