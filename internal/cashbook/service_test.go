package cashbook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mercadito-app/mercadito-backend/pkg/db"
	"github.com/mercadito-app/mercadito-backend/pkg/db/models"
	"github.com/mercadito-app/mercadito-backend/pkg/enums"
	pkgerrors "github.com/mercadito-app/mercadito-backend/pkg/errors"
)

func newTestService(t *testing.T) (Service, *db.Client) {
	t.Helper()
	dsn := "file:cashbook_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.CashTransaction{}, &models.CashBalanceSnapshot{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	client := db.NewFromConn(conn, time.Second)

	svc, err := NewService(client, NewRepository(client.DB()), nil, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, client
}

func TestCurrentBalanceStartsAtZero(t *testing.T) {
	svc, _ := newTestService(t)

	balance, err := svc.CurrentBalance(context.Background())
	if err != nil {
		t.Fatalf("current balance: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("expected zero opening balance, got %s", balance)
	}
}

func TestApplySignConventions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	revenue, err := svc.Apply(ctx, ApplyInput{
		Kind:   enums.CashTransactionKindRevenue,
		Amount: decimal.RequireFromString("100"),
	})
	if err != nil {
		t.Fatalf("apply revenue: %v", err)
	}
	if !revenue.Amount.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("revenue delta must stay positive, got %s", revenue.Amount)
	}
	if !revenue.PriorBalance.IsZero() || !revenue.NewBalance.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("unexpected balances on revenue entry: %+v", revenue)
	}

	expense, err := svc.Apply(ctx, ApplyInput{
		Kind:   enums.CashTransactionKindExpense,
		Amount: decimal.RequireFromString("30"),
	})
	if err != nil {
		t.Fatalf("apply expense: %v", err)
	}
	if !expense.Amount.Equal(decimal.RequireFromString("-30")) {
		t.Fatalf("expense delta must be negated, got %s", expense.Amount)
	}
	if !expense.NewBalance.Equal(decimal.RequireFromString("70")) {
		t.Fatalf("expected balance 70, got %s", expense.NewBalance)
	}

	adjustment, err := svc.Apply(ctx, ApplyInput{
		Kind:   enums.CashTransactionKindAdjustment,
		Amount: decimal.RequireFromString("-5.25"),
	})
	if err != nil {
		t.Fatalf("apply adjustment: %v", err)
	}
	if !adjustment.Amount.Equal(decimal.RequireFromString("-5.25")) {
		t.Fatalf("adjustment delta must be stored as given, got %s", adjustment.Amount)
	}

	balance, err := svc.CurrentBalance(ctx)
	if err != nil {
		t.Fatalf("current balance: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("64.75")) {
		t.Fatalf("expected 64.75, got %s", balance)
	}
}

func TestApplyRejectsBadAmounts(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()

	cases := []ApplyInput{
		{Kind: enums.CashTransactionKindRevenue, Amount: decimal.Zero},
		{Kind: enums.CashTransactionKindRevenue, Amount: decimal.RequireFromString("-1")},
		{Kind: enums.CashTransactionKindExpense, Amount: decimal.Zero},
		{Kind: enums.CashTransactionKindAdjustment, Amount: decimal.Zero},
		{Kind: enums.CashTransactionKind("transfer"), Amount: decimal.NewFromInt(1)},
	}
	for _, input := range cases {
		if _, err := svc.Apply(ctx, input); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %+v, got %v", input, err)
		}
	}

	var count int64
	if err := client.DB().Model(&models.CashTransaction{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected inputs must not append entries, found %d", count)
	}
}

func TestEntriesChainPriorToNewBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	amounts := []string{"50", "20", "10"}
	for _, raw := range amounts {
		if _, err := svc.Apply(ctx, ApplyInput{Kind: enums.CashTransactionKindRevenue, Amount: decimal.RequireFromString(raw)}); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	txns, err := svc.ListTransactions(ctx, nil, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txns) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(txns))
	}
	for i := 1; i < len(txns); i++ {
		if !txns[i].PriorBalance.Equal(txns[i-1].NewBalance) {
			t.Fatalf("entry %d prior balance %s does not chain from %s", i, txns[i].PriorBalance, txns[i-1].NewBalance)
		}
	}
}

func TestRecordExpense(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	txn, err := svc.RecordExpense(ctx, decimal.RequireFromString("12.40"), "ice for the cooler")
	if err != nil {
		t.Fatalf("record expense: %v", err)
	}
	if txn.Kind != enums.CashTransactionKindExpense {
		t.Fatalf("expected expense kind, got %s", txn.Kind)
	}
	if txn.Description == nil || *txn.Description != "ice for the cooler" {
		t.Fatalf("expected description to carry through, got %v", txn.Description)
	}
	if !txn.NewBalance.Equal(decimal.RequireFromString("-12.40")) {
		t.Fatalf("expected balance -12.40, got %s", txn.NewBalance)
	}
}

func TestReplayMatchesSnapshot(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()

	entries := []ApplyInput{
		{Kind: enums.CashTransactionKindRevenue, Amount: decimal.RequireFromString("200")},
		{Kind: enums.CashTransactionKindExpense, Amount: decimal.RequireFromString("45.10")},
		{Kind: enums.CashTransactionKindAdjustment, Amount: decimal.RequireFromString("0.10")},
	}
	for _, input := range entries {
		if _, err := svc.Apply(ctx, input); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	result, err := svc.Replay(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !result.Consistent {
		t.Fatalf("expected consistent ledger, diverged by %s", result.Divergence)
	}
	if result.EntryCount != 3 {
		t.Fatalf("expected 3 entries, got %d", result.EntryCount)
	}
	if !result.ComputedBalance.Equal(decimal.RequireFromString("155")) {
		t.Fatalf("expected replayed balance 155, got %s", result.ComputedBalance)
	}

	// corrupt the snapshot out of band; replay must report the drift
	err = client.DB().Model(&models.CashBalanceSnapshot{}).
		Where("id = ?", models.SnapshotRowID).
		Update("balance", decimal.RequireFromString("160")).Error
	if err != nil {
		t.Fatalf("corrupt snapshot: %v", err)
	}
	result, err = svc.Replay(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.Consistent {
		t.Fatal("expected divergence after snapshot corruption")
	}
	if !result.Divergence.Equal(decimal.RequireFromString("5")) {
		t.Fatalf("expected divergence 5, got %s", result.Divergence)
	}
}

func TestListTransactionsWindow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Apply(ctx, ApplyInput{Kind: enums.CashTransactionKindRevenue, Amount: decimal.NewFromInt(10)}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	future := time.Now().Add(time.Hour)
	txns, err := svc.ListTransactions(ctx, &future, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txns) != 0 {
		t.Fatalf("expected no entries after the future cutoff, got %d", len(txns))
	}

	past := time.Now().Add(-time.Hour)
	txns, err = svc.ListTransactions(ctx, &past, &future)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("expected 1 entry inside the window, got %d", len(txns))
	}
}

// collidingSnapshotRepo simulates losing the lazy-bootstrap insert race: the
// snapshot row is missing on read but another writer creates it first.
type collidingSnapshotRepo struct {
	Repository
}

func (r collidingSnapshotRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r collidingSnapshotRepo) LockSnapshot(ctx context.Context) (*models.CashBalanceSnapshot, error) {
	return nil, errors.New("UNIQUE constraint failed: cash_balance_snapshot.id")
}

func TestApplyLostSnapshotBootstrapRaceIsRetryable(t *testing.T) {
	_, client := newTestService(t)
	svc, err := NewService(client, collidingSnapshotRepo{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.Apply(context.Background(), ApplyInput{
		Kind:   enums.CashTransactionKindRevenue,
		Amount: decimal.NewFromInt(10),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict for lost bootstrap race, got %v", err)
	}
	if typed := pkgerrors.As(err); typed == nil || !pkgerrors.MetadataFor(typed.Code()).Retryable {
		t.Fatalf("lost bootstrap race must be retryable, got %v", err)
	}
}
