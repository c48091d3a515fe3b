package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mercadito-app/mercadito-backend/internal/stock"
	"github.com/mercadito-app/mercadito-backend/pkg/db"
	"github.com/mercadito-app/mercadito-backend/pkg/db/models"
	pkgerrors "github.com/mercadito-app/mercadito-backend/pkg/errors"
	"github.com/mercadito-app/mercadito-backend/pkg/logger"
	"github.com/mercadito-app/mercadito-backend/pkg/metrics"
	"github.com/mercadito-app/mercadito-backend/pkg/validate"
)

// settlementTolerance absorbs sub-cent drift from decimal arithmetic when
// deciding whether a sale is fully paid.
var settlementTolerance = decimal.New(1, -2)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type stockConsumer interface {
	AvailableQuantity(ctx context.Context, productID uuid.UUID) (int, error)
	ConsumeTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, quantity int) ([]stock.LotConsumption, error)
}

type paymentTotals interface {
	SumBySale(ctx context.Context, saleID uuid.UUID) (decimal.Decimal, error)
	SumBySales(ctx context.Context, saleIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
}

type reportInvalidator interface {
	Invalidate(ctx context.Context)
}

// Service exposes the sales ledger operations.
type Service interface {
	CreateSale(ctx context.Context, input CreateSaleInput) (*SaleDetail, error)
	CreateDebtOnlySale(ctx context.Context, input CreateSaleInput) (*SaleDetail, error)
	GetSale(ctx context.Context, id uuid.UUID) (*SaleDetail, error)
	ListSales(ctx context.Context, buyer *string) ([]SaleDetail, error)
}

// CreateSaleInput is the typed request for recording a sale.
type CreateSaleInput struct {
	Buyer             string          `json:"buyer" validate:"required"`
	ExternalReference *string         `json:"external_reference"`
	Items             []SaleItemInput `json:"items" validate:"required,min=1,dive"`
}

type SaleItemInput struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gt=0"`
}

// SaleDetail is a sale with its read-time money figures. Total, Paid,
// BalanceDue and Settled are computed from line items and payments on every
// read; they are never stored.
type SaleDetail struct {
	Sale       models.Sale     `json:"sale"`
	Total      decimal.Decimal `json:"total"`
	Paid       decimal.Decimal `json:"paid"`
	BalanceDue decimal.Decimal `json:"balance_due"`
	Settled    bool            `json:"settled"`
}

type service struct {
	tx          txRunner
	repo        Repository
	catalog     productLoader
	stock       stockConsumer
	payments    paymentTotals
	metrics     *metrics.LedgerMetrics
	invalidator reportInvalidator
	log         *logger.Logger
}

// NewService wires the sales ledger. Metrics, the report invalidator and the
// logger are optional.
func NewService(tx txRunner, repo Repository, catalog productLoader, stock stockConsumer, payments paymentTotals, m *metrics.LedgerMetrics, invalidator reportInvalidator, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("sales repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock consumer required")
	}
	if payments == nil {
		return nil, fmt.Errorf("payment totals required")
	}
	return &service{
		tx:          tx,
		repo:        repo,
		catalog:     catalog,
		stock:       stock,
		payments:    payments,
		metrics:     m,
		invalidator: invalidator,
		log:         logg,
	}, nil
}

// logStorageFailure emits infrastructure failures with operation and buyer
// context. Domain outcomes like shortages are expected and stay unlogged.
func (s *service) logStorageFailure(ctx context.Context, op, buyer string, err error) {
	if s.log == nil || !pkgerrors.IsStorageFailure(err) {
		return
	}
	ctx = s.log.WithOperation(ctx, op)
	if buyer != "" {
		ctx = s.log.WithBuyer(ctx, buyer)
	}
	s.log.Error(ctx, "sales storage failure", err)
}

func (s *service) CreateSale(ctx context.Context, input CreateSaleInput) (detail *SaleDetail, err error) {
	defer func(start time.Time) {
		s.metrics.Track("create_sale", start, err)
		s.logStorageFailure(ctx, "create_sale", input.Buyer, err)
	}(time.Now())
	return s.create(ctx, input, true)
}

func (s *service) CreateDebtOnlySale(ctx context.Context, input CreateSaleInput) (detail *SaleDetail, err error) {
	defer func(start time.Time) {
		s.metrics.Track("create_debt_only_sale", start, err)
		s.logStorageFailure(ctx, "create_debt_only_sale", input.Buyer, err)
	}(time.Now())
	return s.create(ctx, input, false)
}

func (s *service) create(ctx context.Context, input CreateSaleInput, consumeStock bool) (*SaleDetail, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	// resolve name snapshots and pre-check availability before the
	// transaction opens; the locked re-check inside Consume stays
	// authoritative
	names := make(map[uuid.UUID]string, len(input.Items))
	for _, item := range input.Items {
		if _, ok := names[item.ProductID]; ok {
			continue
		}
		product, err := s.catalog.FindByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		names[item.ProductID] = product.Name
	}
	if consumeStock {
		requested := make(map[uuid.UUID]int, len(input.Items))
		for _, item := range input.Items {
			requested[item.ProductID] += item.Quantity
		}
		for productID, quantity := range requested {
			available, err := s.stock.AvailableQuantity(ctx, productID)
			if err != nil {
				return nil, err
			}
			if available < quantity {
				return nil, pkgerrors.InsufficientStock(available, quantity)
			}
		}
	}

	sale := &models.Sale{
		Buyer:             input.Buyer,
		ExternalReference: input.ExternalReference,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, sale); err != nil {
			return db.MapStorageError(err, "create sale")
		}
		for _, item := range input.Items {
			cost := decimal.Zero
			if consumeStock {
				trail, err := s.stock.ConsumeTx(ctx, tx, item.ProductID, item.Quantity)
				if err != nil {
					return err
				}
				for _, step := range trail {
					cost = cost.Add(step.UnitCost.Mul(decimal.NewFromInt(int64(step.Quantity))))
				}
			}
			line := &models.SaleLineItem{
				SaleID:      sale.ID,
				ProductID:   item.ProductID,
				ProductName: names[item.ProductID],
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
				CostTotal:   cost,
			}
			if err := repo.CreateLineItem(ctx, line); err != nil {
				return db.MapStorageError(err, "create sale line item")
			}
			sale.LineItems = append(sale.LineItems, *line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	return buildDetail(*sale, decimal.Zero), nil
}

func (s *service) GetSale(ctx context.Context, id uuid.UUID) (*SaleDetail, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale id required")
	}
	sale, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, db.MapStorageError(err, "load sale")
	}
	paid, err := s.payments.SumBySale(ctx, id)
	if err != nil {
		return nil, db.MapStorageError(err, "sum payments")
	}
	return buildDetail(*sale, paid), nil
}

func (s *service) ListSales(ctx context.Context, buyer *string) ([]SaleDetail, error) {
	sales, err := s.repo.List(ctx, buyer)
	if err != nil {
		return nil, db.MapStorageError(err, "list sales")
	}
	if len(sales) == 0 {
		return []SaleDetail{}, nil
	}

	ids := make([]uuid.UUID, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}
	paidBySale, err := s.payments.SumBySales(ctx, ids)
	if err != nil {
		return nil, db.MapStorageError(err, "sum payments")
	}

	details := make([]SaleDetail, 0, len(sales))
	for _, sale := range sales {
		paid, ok := paidBySale[sale.ID]
		if !ok {
			paid = decimal.Zero
		}
		details = append(details, *buildDetail(sale, paid))
	}
	return details, nil
}

func buildDetail(sale models.Sale, paid decimal.Decimal) *SaleDetail {
	total := decimal.Zero
	for _, line := range sale.LineItems {
		total = total.Add(line.LineTotal())
	}
	balance := total.Sub(paid)
	return &SaleDetail{
		Sale:       sale,
		Total:      total,
		Paid:       paid,
		BalanceDue: balance,
		Settled:    balance.LessThanOrEqual(settlementTolerance),
	}
}
