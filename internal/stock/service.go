package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mercadito-app/mercadito-backend/pkg/db"
	"github.com/mercadito-app/mercadito-backend/pkg/db/models"
	pkgerrors "github.com/mercadito-app/mercadito-backend/pkg/errors"
	"github.com/mercadito-app/mercadito-backend/pkg/logger"
	"github.com/mercadito-app/mercadito-backend/pkg/metrics"
	"github.com/mercadito-app/mercadito-backend/pkg/validate"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type catalogLookup interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type reportInvalidator interface {
	Invalidate(ctx context.Context)
}

// Service exposes the stock ledger operations.
type Service interface {
	AddLot(ctx context.Context, input AddStockInput) (*models.StockLot, error)
	AvailableQuantity(ctx context.Context, productID uuid.UUID) (int, error)
	Consume(ctx context.Context, productID uuid.UUID, quantity int) ([]LotConsumption, error)
	ConsumeTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, quantity int) ([]LotConsumption, error)
}

// AddStockInput is the typed request for receiving a new lot.
type AddStockInput struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
	UnitCost  decimal.Decimal `json:"unit_cost" validate:"gte=0"`
}

// LotConsumption is one step of the FIFO audit trail: which lot was touched,
// how much was taken, and at what unit cost. Callers use it for per-lot
// cost-of-goods-sold breakdowns.
type LotConsumption struct {
	LotID    uuid.UUID       `json:"lot_id"`
	Quantity int             `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

type service struct {
	tx          txRunner
	repo        Repository
	catalog     catalogLookup
	metrics     *metrics.LedgerMetrics
	invalidator reportInvalidator
	log         *logger.Logger
}

// NewService wires the stock ledger. Metrics, the report invalidator and the
// logger are optional.
func NewService(tx txRunner, repo Repository, catalog catalogLookup, m *metrics.LedgerMetrics, invalidator reportInvalidator, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog lookup required")
	}
	return &service{
		tx:          tx,
		repo:        repo,
		catalog:     catalog,
		metrics:     m,
		invalidator: invalidator,
		log:         logg,
	}, nil
}

// logStorageFailure emits infrastructure failures with operation and product
// context. Domain outcomes like shortages are expected and stay unlogged.
func (s *service) logStorageFailure(ctx context.Context, op string, productID uuid.UUID, err error) {
	if s.log == nil || !pkgerrors.IsStorageFailure(err) {
		return
	}
	ctx = s.log.WithOperation(ctx, op)
	if productID != uuid.Nil {
		ctx = s.log.WithProductID(ctx, productID.String())
	}
	s.log.Error(ctx, "stock storage failure", err)
}

func (s *service) AddLot(ctx context.Context, input AddStockInput) (lot *models.StockLot, err error) {
	defer func(start time.Time) {
		s.metrics.Track("add_lot", start, err)
		s.logStorageFailure(ctx, "add_lot", input.ProductID, err)
	}(time.Now())

	if err = validate.Struct(input); err != nil {
		return nil, err
	}

	// catalog lookup happens before the transaction opens; no external
	// reads are interleaved with lot writes
	exists, err := s.catalog.Exists(ctx, input.ProductID)
	if err != nil {
		return nil, db.MapStorageError(err, "check product")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	lot = &models.StockLot{
		ProductID:         input.ProductID,
		QuantityRemaining: input.Quantity,
		UnitPrice:         input.UnitPrice,
		UnitCost:          input.UnitCost,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, lot); err != nil {
			return db.MapStorageError(err, "create stock lot")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	return lot, nil
}

func (s *service) AvailableQuantity(ctx context.Context, productID uuid.UUID) (int, error) {
	if productID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	total, err := s.repo.SumRemaining(ctx, productID)
	if err != nil {
		return 0, db.MapStorageError(err, "sum available quantity")
	}
	return total, nil
}

func (s *service) Consume(ctx context.Context, productID uuid.UUID, quantity int) (trail []LotConsumption, err error) {
	defer func(start time.Time) {
		s.metrics.Track("consume", start, err)
		s.logStorageFailure(ctx, "consume", productID, err)
	}(time.Now())

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		trail, txErr = s.ConsumeTx(ctx, tx, productID, quantity)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	return trail, nil
}

// ConsumeTx drains the product's lots oldest-first inside the caller's
// transaction. Availability is verified against the locked rows before any
// mutation, so an insufficient request leaves no state change; two
// concurrent consumers cannot both pass the check against a stale total.
func (s *service) ConsumeTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, quantity int) ([]LotConsumption, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	repo := s.repo.WithTx(tx)
	lots, err := repo.ListByProductFIFO(ctx, productID, true)
	if err != nil {
		return nil, db.MapStorageError(err, "lock stock lots")
	}

	available := 0
	for _, lot := range lots {
		available += lot.QuantityRemaining
	}
	if available < quantity {
		return nil, pkgerrors.InsufficientStock(available, quantity)
	}

	trail := make([]LotConsumption, 0, len(lots))
	needed := quantity
	for _, lot := range lots {
		if needed == 0 {
			break
		}
		take := lot.QuantityRemaining
		if take > needed {
			take = needed
		}
		if take == 0 {
			continue
		}
		if take == lot.QuantityRemaining {
			if err := repo.Delete(ctx, lot.ID); err != nil {
				return nil, db.MapStorageError(err, "delete drained lot")
			}
		} else {
			if err := repo.SetRemaining(ctx, lot.ID, lot.QuantityRemaining-take); err != nil {
				return nil, db.MapStorageError(err, "decrement lot")
			}
		}
		trail = append(trail, LotConsumption{LotID: lot.ID, Quantity: take, UnitCost: lot.UnitCost})
		needed -= take
	}
	return trail, nil
}
