package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment records money received against a sale. Append-only.
type Payment struct {
	ID     uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SaleID uuid.UUID       `gorm:"column:sale_id;type:uuid;not null;index"`
	Amount decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	PaidAt time.Time       `gorm:"column:paid_at;autoCreateTime;index"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
