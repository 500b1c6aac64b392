package models

import (
	"time"

	"gorm.io/gorm"
)

// Kind distinguishes the two instrument tables.
type Kind string

const (
	KindStock  Kind = "stock"
	KindFuture Kind = "future"
)

// Exchange codes stored in the instrument tables.
const (
	ExchangeSSE   = "SSE"
	ExchangeSZSE  = "SZSE"
	ExchangeBSE   = "BSE"
	ExchangeCFFEX = "CFFEX"
	ExchangeSHFE  = "SHFE"
	ExchangeDCE   = "DCE"
	ExchangeCZCE  = "CZCE"
	ExchangeINE   = "INE"
	ExchangeGFEX  = "GFEX"
	ExchangeOther = "OTHER"
)

// Stock is one row of the stocks table, keyed by code alone.
type Stock struct {
	Code       string    `gorm:"primaryKey;size:32" json:"code"`
	Name       string    `gorm:"size:128" json:"name"`
	Exchange   string    `gorm:"index;size:16" json:"exchange"` // SSE, SZSE, BSE
	UpdateTime time.Time `gorm:"column:update_time" json:"update_time"`
}

func (Stock) TableName() string { return "stocks" }

// Future is one row of the futures table. Codes may collide with stock codes.
type Future struct {
	Code       string    `gorm:"primaryKey;size:32" json:"code"`
	Name       string    `gorm:"size:128" json:"name"`
	Exchange   string    `gorm:"index;size:16" json:"exchange"`
	UpdateTime time.Time `gorm:"column:update_time" json:"update_time"`
}

func (Future) TableName() string { return "futures" }

// Instrument is the merged view served by the list cache and /symbols_list.
type Instrument struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Type     Kind   `json:"type"`
}

// HistoryBar is a persisted OHLCV sample keyed by (symbol, resolution, timestamp).
type HistoryBar struct {
	Symbol     string    `gorm:"primaryKey;size:64" json:"symbol"`
	Resolution string    `gorm:"primaryKey;size:8" json:"resolution"`
	Timestamp  int64     `gorm:"primaryKey;autoIncrement:false" json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	UpdateTime time.Time `gorm:"column:update_time;index" json:"update_time"`
}

func (HistoryBar) TableName() string { return "history_data" }

// HistoryCoverage records a request window that was answered from the provider
// and written to history_data.
type HistoryCoverage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Symbol     string    `gorm:"index:idx_coverage_key;size:64" json:"symbol"`
	Resolution string    `gorm:"index:idx_coverage_key;size:8" json:"resolution"`
	FromTS     int64     `gorm:"column:from_ts" json:"from_ts"`
	ToTS       int64     `gorm:"column:to_ts" json:"to_ts"`
	FetchedAt  time.Time `gorm:"index" json:"fetched_at"`
}

func (HistoryCoverage) TableName() string { return "history_coverage" }

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Stock{},
		&Future{},
		&HistoryBar{},
		&HistoryCoverage{},
	)
}
