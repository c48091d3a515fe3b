package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mercadito-app/mercadito-backend/internal/cashbook"
	"github.com/mercadito-app/mercadito-backend/pkg/db"
	"github.com/mercadito-app/mercadito-backend/pkg/db/models"
	"github.com/mercadito-app/mercadito-backend/pkg/enums"
	pkgerrors "github.com/mercadito-app/mercadito-backend/pkg/errors"
	"github.com/mercadito-app/mercadito-backend/pkg/logger"
	"github.com/mercadito-app/mercadito-backend/pkg/metrics"
	"github.com/mercadito-app/mercadito-backend/pkg/validate"
)

// debtTolerance absorbs sub-cent drift when deciding whether a buyer's debt
// is cleared.
var debtTolerance = decimal.New(1, -2)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type saleLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Sale, error)
}

type cashApplier interface {
	ApplyTx(ctx context.Context, tx *gorm.DB, input cashbook.ApplyInput) (*models.CashTransaction, error)
}

type reportInvalidator interface {
	Invalidate(ctx context.Context)
}

// Service exposes the payment and debt ledger operations.
type Service interface {
	RecordPayment(ctx context.Context, input RecordPaymentInput) (*models.Payment, error)
	DebtSummary(ctx context.Context, buyer *string) (*DebtSummary, error)
}

// RecordPaymentInput is the typed request for recording money received.
type RecordPaymentInput struct {
	SaleID uuid.UUID       `json:"sale_id" validate:"required"`
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
}

// DebtSummary is the owed/paid picture for one buyer, or across all buyers
// when Buyer is nil. All figures are recomputed from the ledgers on read.
type DebtSummary struct {
	Buyer       *string         `json:"buyer"`
	TotalOwed   decimal.Decimal `json:"total_owed"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	BalanceDue  decimal.Decimal `json:"balance_due"`
	IsFullyPaid bool            `json:"is_fully_paid"`
}

type service struct {
	tx          txRunner
	repo        Repository
	sales       saleLoader
	cash        cashApplier
	metrics     *metrics.LedgerMetrics
	invalidator reportInvalidator
	log         *logger.Logger
}

// NewService wires the payment ledger. Metrics, the report invalidator and
// the logger are optional.
func NewService(tx txRunner, repo Repository, sales saleLoader, cash cashApplier, m *metrics.LedgerMetrics, invalidator reportInvalidator, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if sales == nil {
		return nil, fmt.Errorf("sale loader required")
	}
	if cash == nil {
		return nil, fmt.Errorf("cash applier required")
	}
	return &service{
		tx:          tx,
		repo:        repo,
		sales:       sales,
		cash:        cash,
		metrics:     m,
		invalidator: invalidator,
		log:         logg,
	}, nil
}

// logStorageFailure emits infrastructure failures with operation and sale
// context. Domain outcomes stay unlogged.
func (s *service) logStorageFailure(ctx context.Context, op string, saleID uuid.UUID, err error) {
	if s.log == nil || !pkgerrors.IsStorageFailure(err) {
		return
	}
	ctx = s.log.WithOperation(ctx, op)
	if saleID != uuid.Nil {
		ctx = s.log.WithSaleID(ctx, saleID.String())
	}
	s.log.Error(ctx, "payments storage failure", err)
}

// RecordPayment appends the payment and its matching cash revenue entry in
// one transaction. A crash between the two can never leave money recorded on
// only one ledger.
func (s *service) RecordPayment(ctx context.Context, input RecordPaymentInput) (payment *models.Payment, err error) {
	defer func(start time.Time) {
		s.metrics.Track("record_payment", start, err)
		s.logStorageFailure(ctx, "record_payment", input.SaleID, err)
	}(time.Now())

	if err = validate.Struct(input); err != nil {
		return nil, err
	}
	if _, err = s.sales.FindByID(ctx, input.SaleID); err != nil {
		return nil, db.MapStorageError(err, "load sale")
	}

	payment = &models.Payment{
		SaleID: input.SaleID,
		Amount: input.Amount,
	}
	description := "payment received"
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, payment); err != nil {
			return db.MapStorageError(err, "create payment")
		}
		_, err := s.cash.ApplyTx(ctx, tx, cashbook.ApplyInput{
			Kind:        enums.CashTransactionKindRevenue,
			Amount:      input.Amount,
			Description: &description,
			SaleID:      &payment.SaleID,
			PaymentID:   &payment.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	return payment, nil
}

func (s *service) DebtSummary(ctx context.Context, buyer *string) (*DebtSummary, error) {
	if buyer != nil && *buyer == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer must not be empty")
	}

	owed, err := s.repo.TotalOwed(ctx, buyer)
	if err != nil {
		return nil, db.MapStorageError(err, "sum owed")
	}
	paid, err := s.repo.TotalPaid(ctx, buyer)
	if err != nil {
		return nil, db.MapStorageError(err, "sum paid")
	}

	balance := owed.Sub(paid)
	return &DebtSummary{
		Buyer:       buyer,
		TotalOwed:   owed,
		TotalPaid:   paid,
		BalanceDue:  balance,
		IsFullyPaid: balance.LessThanOrEqual(debtTolerance),
	}, nil
}
