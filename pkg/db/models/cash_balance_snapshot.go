package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotRowID is the primary key of the single current-balance row.
const SnapshotRowID = 1

// CashBalanceSnapshot is the single "current balance now" row. Its value must
// always equal the new_balance of the most recent CashTransaction; both are
// written in the same transaction.
type CashBalanceSnapshot struct {
	ID        int             `gorm:"column:id;primaryKey"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
