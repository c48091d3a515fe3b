package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockLot is a batch of inventory received at one time. Lots are only ever
// mutated by consumption (quantity_remaining decreases) and are deleted once
// fully drained.
type StockLot struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ProductID         uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index:idx_stock_lots_fifo,priority:1"`
	QuantityRemaining int             `gorm:"column:quantity_remaining;not null;check:quantity_remaining >= 0"`
	UnitPrice         decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	UnitCost          decimal.Decimal `gorm:"column:unit_cost;type:numeric(12,2);not null"`
	ReceivedAt        time.Time       `gorm:"column:received_at;not null;index:idx_stock_lots_fifo,priority:2"`
}

func (l *StockLot) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.ReceivedAt.IsZero() {
		l.ReceivedAt = time.Now().UTC()
	}
	return nil
}
