package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mercadito-app/mercadito-backend/internal/cashbook"
	"github.com/mercadito-app/mercadito-backend/internal/sales"
	"github.com/mercadito-app/mercadito-backend/pkg/db"
	"github.com/mercadito-app/mercadito-backend/pkg/db/models"
	pkgerrors "github.com/mercadito-app/mercadito-backend/pkg/errors"
)

type paymentsFixture struct {
	svc    Service
	cash   cashbook.Service
	client *db.Client
}

func newFixture(t *testing.T) *paymentsFixture {
	t.Helper()
	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.Sale{},
		&models.SaleLineItem{},
		&models.Payment{},
		&models.CashTransaction{},
		&models.CashBalanceSnapshot{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	client := db.NewFromConn(conn, time.Second)

	cashSvc, err := cashbook.NewService(client, cashbook.NewRepository(client.DB()), nil, nil, nil)
	if err != nil {
		t.Fatalf("cashbook service: %v", err)
	}
	svc, err := NewService(client, NewRepository(client.DB()), sales.NewRepository(client.DB()), cashSvc, nil, nil, nil)
	if err != nil {
		t.Fatalf("payments service: %v", err)
	}
	return &paymentsFixture{svc: svc, cash: cashSvc, client: client}
}

// seedSale writes a sale with one line item directly; the sales service owns
// creation semantics and is covered by its own tests.
func (f *paymentsFixture) seedSale(t *testing.T, buyer string, quantity int, unitPrice string) uuid.UUID {
	t.Helper()
	sale := &models.Sale{Buyer: buyer}
	if err := f.client.DB().Omit("LineItems").Create(sale).Error; err != nil {
		t.Fatalf("seed sale: %v", err)
	}
	line := &models.SaleLineItem{
		SaleID:      sale.ID,
		ProductID:   uuid.New(),
		ProductName: "abarrotes",
		Quantity:    quantity,
		UnitPrice:   decimal.RequireFromString(unitPrice),
		CostTotal:   decimal.Zero,
	}
	if err := f.client.DB().Create(line).Error; err != nil {
		t.Fatalf("seed line item: %v", err)
	}
	return sale.ID
}

func TestRecordPaymentAppendsCashEntryAtomically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	saleID := f.seedSale(t, "ana", 4, "25")

	payment, err := f.svc.RecordPayment(ctx, RecordPaymentInput{
		SaleID: saleID,
		Amount: decimal.RequireFromString("60"),
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}

	var entry models.CashTransaction
	if err := f.client.DB().First(&entry, "payment_id = ?", payment.ID).Error; err != nil {
		t.Fatalf("expected a cash entry linked to the payment: %v", err)
	}
	if !entry.Amount.Equal(decimal.RequireFromString("60")) {
		t.Fatalf("expected revenue delta 60, got %s", entry.Amount)
	}
	if entry.SaleID == nil || *entry.SaleID != saleID {
		t.Fatalf("cash entry must reference the sale, got %v", entry.SaleID)
	}

	balance, err := f.cash.CurrentBalance(ctx)
	if err != nil {
		t.Fatalf("current balance: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("60")) {
		t.Fatalf("expected balance 60, got %s", balance)
	}
}

func TestRecordPaymentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	saleID := f.seedSale(t, "ana", 1, "10")

	_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{SaleID: saleID, Amount: decimal.Zero})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}

	_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{SaleID: saleID, Amount: decimal.RequireFromString("-5")})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for negative amount, got %v", err)
	}

	_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{SaleID: uuid.New(), Amount: decimal.NewFromInt(10)})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for missing sale, got %v", err)
	}

	var paymentCount, entryCount int64
	if err := f.client.DB().Model(&models.Payment{}).Count(&paymentCount).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if err := f.client.DB().Model(&models.CashTransaction{}).Count(&entryCount).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if paymentCount != 0 || entryCount != 0 {
		t.Fatalf("rejected payments must not write, found %d payments and %d entries", paymentCount, entryCount)
	}
}

func TestDebtSummaryPerBuyer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	anaSale := f.seedSale(t, "ana", 4, "25")
	f.seedSale(t, "benito", 2, "30")

	if _, err := f.svc.RecordPayment(ctx, RecordPaymentInput{SaleID: anaSale, Amount: decimal.RequireFromString("60")}); err != nil {
		t.Fatalf("record payment: %v", err)
	}

	buyer := "ana"
	summary, err := f.svc.DebtSummary(ctx, &buyer)
	if err != nil {
		t.Fatalf("debt summary: %v", err)
	}
	if !summary.TotalOwed.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected owed 100, got %s", summary.TotalOwed)
	}
	if !summary.TotalPaid.Equal(decimal.RequireFromString("60")) {
		t.Fatalf("expected paid 60, got %s", summary.TotalPaid)
	}
	if !summary.BalanceDue.Equal(decimal.RequireFromString("40")) || summary.IsFullyPaid {
		t.Fatalf("expected 40 outstanding, got %+v", summary)
	}

	if _, err := f.svc.RecordPayment(ctx, RecordPaymentInput{SaleID: anaSale, Amount: decimal.RequireFromString("40")}); err != nil {
		t.Fatalf("record payment: %v", err)
	}
	summary, err = f.svc.DebtSummary(ctx, &buyer)
	if err != nil {
		t.Fatalf("debt summary: %v", err)
	}
	if !summary.IsFullyPaid {
		t.Fatalf("expected cleared debt, got %+v", summary)
	}

	// every payment left exactly one revenue entry; together they moved the
	// cash balance by the full sale total
	var entries []models.CashTransaction
	if err := f.client.DB().Where("sale_id = ?", anaSale).Find(&entries).Error; err != nil {
		t.Fatalf("load entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 revenue entries, got %d", len(entries))
	}
	entrySum := decimal.Zero
	for _, entry := range entries {
		entrySum = entrySum.Add(entry.Amount)
	}
	if !entrySum.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected entries summing to 100, got %s", entrySum)
	}
	balance, err := f.cash.CurrentBalance(ctx)
	if err != nil {
		t.Fatalf("current balance: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected cash balance 100, got %s", balance)
	}

	aggregate, err := f.svc.DebtSummary(ctx, nil)
	if err != nil {
		t.Fatalf("aggregate summary: %v", err)
	}
	if !aggregate.TotalOwed.Equal(decimal.RequireFromString("160")) {
		t.Fatalf("expected aggregate owed 160, got %s", aggregate.TotalOwed)
	}
	if !aggregate.BalanceDue.Equal(decimal.RequireFromString("60")) {
		t.Fatalf("expected aggregate balance 60, got %s", aggregate.BalanceDue)
	}
}

func TestDebtSummaryToleratesSubCentDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	saleID := f.seedSale(t, "ana", 3, "33.33")

	if _, err := f.svc.RecordPayment(ctx, RecordPaymentInput{SaleID: saleID, Amount: decimal.RequireFromString("99.98")}); err != nil {
		t.Fatalf("record payment: %v", err)
	}

	buyer := "ana"
	summary, err := f.svc.DebtSummary(ctx, &buyer)
	if err != nil {
		t.Fatalf("debt summary: %v", err)
	}
	// 99.99 owed, 99.98 paid: one cent short is still considered settled
	if !summary.IsFullyPaid {
		t.Fatalf("expected tolerance to absorb one cent, got %+v", summary)
	}

	empty := ""
	if _, err := f.svc.DebtSummary(ctx, &empty); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty buyer, got %v", err)
	}
}
