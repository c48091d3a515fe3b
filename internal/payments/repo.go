package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mercadito-app/mercadito-backend/pkg/db/models"
)

// Repository persists payments and answers the money aggregations the debt
// ledger is built on.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	SumBySale(ctx context.Context, saleID uuid.UUID) (decimal.Decimal, error)
	SumBySales(ctx context.Context, saleIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	TotalOwed(ctx context.Context, buyer *string) (decimal.Decimal, error)
	TotalPaid(ctx context.Context, buyer *string) (decimal.Decimal, error)
	CountInWindow(ctx context.Context, from, to time.Time) (int64, decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) SumBySale(ctx context.Context, saleID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("SUM(amount)").
		Where("sale_id = ?", saleID).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (r *repository) SumBySales(ctx context.Context, saleIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	if len(saleIDs) == 0 {
		return map[uuid.UUID]decimal.Decimal{}, nil
	}
	var rows []struct {
		SaleID uuid.UUID       `gorm:"column:sale_id"`
		Total  decimal.Decimal `gorm:"column:total"`
	}
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("sale_id, SUM(amount) AS total").
		Where("sale_id IN ?", saleIDs).
		Group("sale_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	totals := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		totals[row.SaleID] = row.Total
	}
	return totals, nil
}

// TotalOwed sums the line totals of every sale, optionally for one buyer.
func (r *repository) TotalOwed(ctx context.Context, buyer *string) (decimal.Decimal, error) {
	query := r.db.WithContext(ctx).
		Model(&models.SaleLineItem{}).
		Select("SUM(sale_line_items.quantity * sale_line_items.unit_price)").
		Joins("JOIN sales ON sales.id = sale_line_items.sale_id")
	if buyer != nil {
		query = query.Where("sales.buyer = ?", *buyer)
	}
	var total decimal.NullDecimal
	if err := query.Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// TotalPaid sums every recorded payment, optionally for one buyer's sales.
func (r *repository) TotalPaid(ctx context.Context, buyer *string) (decimal.Decimal, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("SUM(payments.amount)")
	if buyer != nil {
		query = query.
			Joins("JOIN sales ON sales.id = payments.sale_id").
			Where("sales.buyer = ?", *buyer)
	}
	var total decimal.NullDecimal
	if err := query.Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// CountInWindow reports how many payments landed in [from, to) and their sum.
func (r *repository) CountInWindow(ctx context.Context, from, to time.Time) (int64, decimal.Decimal, error) {
	var row struct {
		Count int64               `gorm:"column:count"`
		Total decimal.NullDecimal `gorm:"column:total"`
	}
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("COUNT(*) AS count, SUM(amount) AS total").
		Where("paid_at >= ? AND paid_at < ?", from, to).
		Scan(&row).Error
	if err != nil {
		return 0, decimal.Zero, err
	}
	if !row.Total.Valid {
		return row.Count, decimal.Zero, nil
	}
	return row.Count, row.Total.Decimal, nil
}
