package stock

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mercadito-app/mercadito-backend/pkg/db/models"
)

// Repository manages persistence for stock lots.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, lot *models.StockLot) error
	ListByProductFIFO(ctx context.Context, productID uuid.UUID, lock bool) ([]models.StockLot, error)
	SumRemaining(ctx context.Context, productID uuid.UUID) (int, error)
	SetRemaining(ctx context.Context, lotID uuid.UUID, quantity int) error
	Delete(ctx context.Context, lotID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a stock repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, lot *models.StockLot) error {
	return r.db.WithContext(ctx).Create(lot).Error
}

// ListByProductFIFO returns the product's lots ordered oldest first,
// tie-broken by id so concurrent consumers always lock rows in the same
// order. SQLite has no FOR UPDATE; its single-writer lock serializes
// transactions instead.
func (r *repository) ListByProductFIFO(ctx context.Context, productID uuid.UUID, lock bool) ([]models.StockLot, error) {
	query := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("received_at ASC, id ASC")
	if lock && r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var lots []models.StockLot
	if err := query.Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

func (r *repository) SumRemaining(ctx context.Context, productID uuid.UUID) (int, error) {
	var total *int
	err := r.db.WithContext(ctx).
		Model(&models.StockLot{}).
		Where("product_id = ?", productID).
		Select("SUM(quantity_remaining)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (r *repository) SetRemaining(ctx context.Context, lotID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.StockLot{}).
		Where("id = ?", lotID).
		Update("quantity_remaining", quantity).Error
}

func (r *repository) Delete(ctx context.Context, lotID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", lotID).
		Delete(&models.StockLot{}).Error
}
