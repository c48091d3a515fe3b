package cashbook

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mercadito-app/mercadito-backend/pkg/db/models"
)

// Repository persists cash ledger entries and the balance snapshot.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockSnapshot(ctx context.Context) (*models.CashBalanceSnapshot, error)
	ReadSnapshot(ctx context.Context) (*models.CashBalanceSnapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *models.CashBalanceSnapshot) error
	CreateTransaction(ctx context.Context, txn *models.CashTransaction) error
	ListTransactions(ctx context.Context, from, to *time.Time) ([]models.CashTransaction, error)
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

// LockSnapshot returns the single balance row, holding it for update until the
// surrounding transaction ends. The zero row is inserted lazily on first use.
func (r *repository) LockSnapshot(ctx context.Context) (*models.CashBalanceSnapshot, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var snapshot models.CashBalanceSnapshot
	err := query.First(&snapshot, "id = ?", models.SnapshotRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		snapshot = models.CashBalanceSnapshot{ID: models.SnapshotRowID}
		if err := r.db.WithContext(ctx).Create(&snapshot).Error; err != nil {
			return nil, err
		}
		return &snapshot, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *repository) ReadSnapshot(ctx context.Context) (*models.CashBalanceSnapshot, error) {
	var snapshot models.CashBalanceSnapshot
	err := r.db.WithContext(ctx).First(&snapshot, "id = ?", models.SnapshotRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.CashBalanceSnapshot{ID: models.SnapshotRowID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *repository) SaveSnapshot(ctx context.Context, snapshot *models.CashBalanceSnapshot) error {
	return r.db.WithContext(ctx).Save(snapshot).Error
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.CashTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListTransactions(ctx context.Context, from, to *time.Time) ([]models.CashTransaction, error) {
	query := r.db.WithContext(ctx).Order("created_at ASC, id ASC")
	if from != nil {
		query = query.Where("created_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("created_at < ?", *to)
	}
	var txns []models.CashTransaction
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
