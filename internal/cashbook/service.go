package cashbook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mercadito-app/mercadito-backend/pkg/db"
	"github.com/mercadito-app/mercadito-backend/pkg/db/models"
	"github.com/mercadito-app/mercadito-backend/pkg/enums"
	pkgerrors "github.com/mercadito-app/mercadito-backend/pkg/errors"
	"github.com/mercadito-app/mercadito-backend/pkg/logger"
	"github.com/mercadito-app/mercadito-backend/pkg/metrics"
	"github.com/mercadito-app/mercadito-backend/pkg/validate"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reportInvalidator interface {
	Invalidate(ctx context.Context)
}

// Service exposes the cash ledger operations.
type Service interface {
	CurrentBalance(ctx context.Context) (decimal.Decimal, error)
	Apply(ctx context.Context, input ApplyInput) (*models.CashTransaction, error)
	ApplyTx(ctx context.Context, tx *gorm.DB, input ApplyInput) (*models.CashTransaction, error)
	RecordExpense(ctx context.Context, amount decimal.Decimal, description string) (*models.CashTransaction, error)
	ListTransactions(ctx context.Context, from, to *time.Time) ([]models.CashTransaction, error)
	Replay(ctx context.Context) (*ReplayResult, error)
}

// ApplyInput is the typed request for appending a cash entry. Amount is the
// positive magnitude for revenue and expense entries; for adjustments it is
// the signed delta itself.
type ApplyInput struct {
	Kind        enums.CashTransactionKind `json:"kind" validate:"required"`
	Amount      decimal.Decimal           `json:"amount"`
	Description *string                   `json:"description"`
	SaleID      *uuid.UUID                `json:"sale_id"`
	PaymentID   *uuid.UUID                `json:"payment_id"`
}

// ReplayResult compares the balance recomputed from the ordered log against
// the stored snapshot.
type ReplayResult struct {
	ComputedBalance decimal.Decimal `json:"computed_balance"`
	SnapshotBalance decimal.Decimal `json:"snapshot_balance"`
	Divergence      decimal.Decimal `json:"divergence"`
	Consistent      bool            `json:"consistent"`
	EntryCount      int             `json:"entry_count"`
}

type service struct {
	tx          txRunner
	repo        Repository
	metrics     *metrics.LedgerMetrics
	invalidator reportInvalidator
	log         *logger.Logger
}

// NewService wires the cash ledger. Metrics, the report invalidator and the
// logger are optional.
func NewService(tx txRunner, repo Repository, m *metrics.LedgerMetrics, invalidator reportInvalidator, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("cashbook repository required")
	}
	return &service{tx: tx, repo: repo, metrics: m, invalidator: invalidator, log: logg}, nil
}

// logStorageFailure emits infrastructure failures with operation context.
// Domain outcomes stay unlogged.
func (s *service) logStorageFailure(ctx context.Context, op string, err error) {
	if s.log == nil || !pkgerrors.IsStorageFailure(err) {
		return
	}
	s.log.Error(s.log.WithOperation(ctx, op), "cash ledger storage failure", err)
}

func (s *service) CurrentBalance(ctx context.Context) (decimal.Decimal, error) {
	snapshot, err := s.repo.ReadSnapshot(ctx)
	if err != nil {
		return decimal.Zero, db.MapStorageError(err, "read balance snapshot")
	}
	return snapshot.Balance, nil
}

func (s *service) Apply(ctx context.Context, input ApplyInput) (txn *models.CashTransaction, err error) {
	defer func(start time.Time) {
		s.metrics.Track("cash_apply", start, err)
		s.logStorageFailure(ctx, "cash_apply", err)
	}(time.Now())

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		txn, txErr = s.ApplyTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	return txn, nil
}

// ApplyTx appends one entry inside the caller's transaction. The snapshot row
// is locked before the prior balance is read, so concurrent appends serialize
// and every entry's prior_balance equals the previous entry's new_balance.
func (s *service) ApplyTx(ctx context.Context, tx *gorm.DB, input ApplyInput) (*models.CashTransaction, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	delta, err := signedDelta(input.Kind, input.Amount)
	if err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	snapshot, err := repo.LockSnapshot(ctx)
	if err != nil {
		return nil, db.MapStorageError(err, "lock balance snapshot")
	}

	txn := &models.CashTransaction{
		Kind:         input.Kind,
		Amount:       delta,
		Description:  input.Description,
		SaleID:       input.SaleID,
		PaymentID:    input.PaymentID,
		PriorBalance: snapshot.Balance,
		NewBalance:   snapshot.Balance.Add(delta),
	}
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		return nil, db.MapStorageError(err, "append cash transaction")
	}

	snapshot.Balance = txn.NewBalance
	if err := repo.SaveSnapshot(ctx, snapshot); err != nil {
		return nil, db.MapStorageError(err, "save balance snapshot")
	}
	return txn, nil
}

func (s *service) RecordExpense(ctx context.Context, amount decimal.Decimal, description string) (*models.CashTransaction, error) {
	return s.Apply(ctx, ApplyInput{
		Kind:        enums.CashTransactionKindExpense,
		Amount:      amount,
		Description: &description,
	})
}

func (s *service) ListTransactions(ctx context.Context, from, to *time.Time) ([]models.CashTransaction, error) {
	txns, err := s.repo.ListTransactions(ctx, from, to)
	if err != nil {
		return nil, db.MapStorageError(err, "list cash transactions")
	}
	return txns, nil
}

// Replay recomputes the balance by folding the full ordered log and reports
// how far the snapshot has drifted. A consistent ledger always replays to the
// snapshot exactly.
func (s *service) Replay(ctx context.Context) (*ReplayResult, error) {
	txns, err := s.repo.ListTransactions(ctx, nil, nil)
	if err != nil {
		return nil, db.MapStorageError(err, "replay cash transactions")
	}
	snapshot, err := s.repo.ReadSnapshot(ctx)
	if err != nil {
		return nil, db.MapStorageError(err, "read balance snapshot")
	}

	computed := decimal.Zero
	for _, txn := range txns {
		computed = computed.Add(txn.Amount)
	}
	divergence := snapshot.Balance.Sub(computed)
	return &ReplayResult{
		ComputedBalance: computed,
		SnapshotBalance: snapshot.Balance,
		Divergence:      divergence,
		Consistent:      divergence.IsZero(),
		EntryCount:      len(txns),
	}, nil
}

// signedDelta normalizes the input amount to the signed balance delta stored
// on the entry.
func signedDelta(kind enums.CashTransactionKind, amount decimal.Decimal) (decimal.Decimal, error) {
	if !kind.IsValid() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid cash transaction kind %q", kind))
	}
	switch kind {
	case enums.CashTransactionKindRevenue:
		if !amount.IsPositive() {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "revenue amount must be positive")
		}
		return amount, nil
	case enums.CashTransactionKindExpense:
		if !amount.IsPositive() {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "expense amount must be positive")
		}
		return amount.Neg(), nil
	default:
		if amount.IsZero() {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "adjustment amount must be non-zero")
		}
		return amount, nil
	}
}
