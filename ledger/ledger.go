// Package ledger is an optional, write-only audit trail for order and trade
// events. It is never read back by the supervision core: the Registry is
// the live source of truth for everything in-process needs, so this exists
// purely for after-the-fact inspection and compliance, and a disabled or
// failing ledger must never affect order flow.
package ledger

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OrderEvent is one row of the order_events table: a snapshot of a pack's
// gateway status at the moment the core observed it.
type OrderEvent struct {
	ID           uint `gorm:"primaryKey"`
	OrderID      string
	Symbol       string
	OrderType    string
	Status       string
	Price        decimal.Decimal `gorm:"type:numeric"`
	TotalVolume  decimal.Decimal `gorm:"type:numeric"`
	TradedVolume decimal.Decimal `gorm:"type:numeric"`
	RecordedAt   time.Time
}

// TradeEvent is one row of the trade_events table: a single fill.
type TradeEvent struct {
	ID         uint `gorm:"primaryKey"`
	TradeID    string
	OrderID    string
	Price      decimal.Decimal `gorm:"type:numeric"`
	Volume     decimal.Decimal `gorm:"type:numeric"`
	RecordedAt time.Time
}

// Ledger wraps a gorm.DB opened against either sqlite (the default, for a
// local demo run) or postgres (for anything meant to outlive one process).
type Ledger struct {
	db *gorm.DB
}

// Open connects to driver ("sqlite" or "postgres") at dsn and migrates the
// event tables. A sqlite file is created if it does not already exist.
func Open(driver, dsn string) (*Ledger, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&OrderEvent{}, &TradeEvent{}); err != nil {
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// RecordOrder appends one order_events row. Write failures are logged, not
// returned: a broken audit sink must never stop the supervision core.
func (l *Ledger) RecordOrder(ev OrderEvent) {
	if l == nil {
		return
	}
	ev.RecordedAt = time.Now()
	if err := l.db.Create(&ev).Error; err != nil {
		log.Error().Err(err).Str("order_id", ev.OrderID).Msg("ledger: order write failed")
	}
}

// RecordTrade appends one trade_events row.
func (l *Ledger) RecordTrade(ev TradeEvent) {
	if l == nil {
		return
	}
	ev.RecordedAt = time.Now()
	if err := l.db.Create(&ev).Error; err != nil {
		log.Error().Err(err).Str("trade_id", ev.TradeID).Msg("ledger: trade write failed")
	}
}
