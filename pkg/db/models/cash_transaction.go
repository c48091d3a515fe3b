package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mercadito-app/mercadito-backend/pkg/enums"
)

// CashTransaction is one immutable entry in the cash ledger. Amount carries
// the signed delta applied to the balance: positive for revenue, negative for
// expenses, and whatever sign the caller supplied for adjustments.
// Corrections are new offsetting entries, never edits.
type CashTransaction struct {
	ID           uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	Kind         enums.CashTransactionKind `gorm:"column:kind;type:cash_transaction_kind;not null"`
	Amount       decimal.Decimal           `gorm:"column:amount;type:numeric(12,2);not null"`
	Description  *string                   `gorm:"column:description"`
	SaleID       *uuid.UUID                `gorm:"column:sale_id;type:uuid"`
	PaymentID    *uuid.UUID                `gorm:"column:payment_id;type:uuid"`
	PriorBalance decimal.Decimal           `gorm:"column:prior_balance;type:numeric(12,2);not null"`
	NewBalance   decimal.Decimal           `gorm:"column:new_balance;type:numeric(12,2);not null"`
	CreatedAt    time.Time                 `gorm:"column:created_at;autoCreateTime;index"`
}

func (t *CashTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
