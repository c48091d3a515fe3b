package stock

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mercadito-app/mercadito-backend/pkg/db/models"
)

func setupStockTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:stockrepo_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.StockLot{}))
	return conn
}

func seedLot(t *testing.T, conn *gorm.DB, productID uuid.UUID, qty int, cost string, receivedAt time.Time) *models.StockLot {
	t.Helper()
	lot := &models.StockLot{
		ProductID:         productID,
		QuantityRemaining: qty,
		UnitPrice:         decimal.RequireFromString(cost).Mul(decimal.NewFromInt(2)),
		UnitCost:          decimal.RequireFromString(cost),
		ReceivedAt:        receivedAt,
	}
	require.NoError(t, conn.Create(lot).Error)
	return lot
}

func TestListByProductFIFOOrdersByReceipt(t *testing.T) {
	conn := setupStockTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	productID := uuid.New()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// seed newest first to prove ordering comes from received_at, not insert order
	newest := seedLot(t, conn, productID, 5, "12", base.Add(2*time.Hour))
	oldest := seedLot(t, conn, productID, 5, "10", base)
	middle := seedLot(t, conn, productID, 5, "11", base.Add(time.Hour))
	seedLot(t, conn, uuid.New(), 99, "1", base) // other product, must not appear

	lots, err := repo.ListByProductFIFO(ctx, productID, false)
	require.NoError(t, err)
	require.Len(t, lots, 3)
	assert.Equal(t, oldest.ID, lots[0].ID)
	assert.Equal(t, middle.ID, lots[1].ID)
	assert.Equal(t, newest.ID, lots[2].ID)
}

func TestSumRemaining(t *testing.T) {
	conn := setupStockTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	productID := uuid.New()
	now := time.Now().UTC()

	total, err := repo.SumRemaining(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	seedLot(t, conn, productID, 7, "10", now)
	seedLot(t, conn, productID, 3, "11", now.Add(time.Minute))

	total, err = repo.SumRemaining(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
}

func TestSetRemainingAndDelete(t *testing.T) {
	conn := setupStockTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	productID := uuid.New()
	lot := seedLot(t, conn, productID, 8, "10", time.Now().UTC())

	require.NoError(t, repo.SetRemaining(ctx, lot.ID, 3))
	var reloaded models.StockLot
	require.NoError(t, conn.First(&reloaded, "id = ?", lot.ID).Error)
	assert.Equal(t, 3, reloaded.QuantityRemaining)

	require.NoError(t, repo.Delete(ctx, lot.ID))
	err := conn.First(&reloaded, "id = ?", lot.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
