package reporting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mercadito-app/mercadito-backend/pkg/db/models"
)

// SaleStats aggregates the sales ledger over a window. CostOfGoods comes from
// the per-line cost snapshots written at sale time, so it reflects the lots
// actually consumed rather than current stock prices.
type SaleStats struct {
	SaleCount   int64
	CostOfGoods decimal.Decimal
}

// Repository answers the read-only aggregations behind period summaries.
type Repository interface {
	SaleStats(ctx context.Context, from, to time.Time) (SaleStats, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SaleStats(ctx context.Context, from, to time.Time) (SaleStats, error) {
	stats := SaleStats{CostOfGoods: decimal.Zero}

	err := r.db.WithContext(ctx).
		Model(&models.Sale{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Count(&stats.SaleCount).Error
	if err != nil {
		return SaleStats{}, err
	}

	var cogs decimal.NullDecimal
	err = r.db.WithContext(ctx).
		Model(&models.SaleLineItem{}).
		Select("SUM(sale_line_items.cost_total)").
		Joins("JOIN sales ON sales.id = sale_line_items.sale_id").
		Where("sales.created_at >= ? AND sales.created_at < ?", from, to).
		Scan(&cogs).Error
	if err != nil {
		return SaleStats{}, err
	}
	if cogs.Valid {
		stats.CostOfGoods = cogs.Decimal
	}
	return stats, nil
}
