package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sale is an immutable sale header. Whether a sale is settled is derived from
// its line items and payments on read; no status is ever stored.
type Sale struct {
	ID                uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Buyer             string         `gorm:"column:buyer;not null;index"`
	ExternalReference *string        `gorm:"column:external_reference"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime;index"`
	LineItems         []SaleLineItem `gorm:"foreignKey:SaleID"`
}

func (s *Sale) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
