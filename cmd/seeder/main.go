package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/mercadito-app/mercadito-backend/internal/catalog"
	"github.com/mercadito-app/mercadito-backend/internal/stock"
	"github.com/mercadito-app/mercadito-backend/pkg/config"
	"github.com/mercadito-app/mercadito-backend/pkg/db"
	"github.com/mercadito-app/mercadito-backend/pkg/db/models"
	"github.com/mercadito-app/mercadito-backend/pkg/logger"
	"github.com/mercadito-app/mercadito-backend/pkg/migrate"
)

type demoProduct struct {
	name      string
	quantity  int
	unitPrice string
	unitCost  string
}

// demoCatalog is the local-dev starting inventory.
var demoCatalog = []demoProduct{
	{name: "arroz 1kg", quantity: 40, unitPrice: "28.50", unitCost: "21.00"},
	{name: "frijol negro 1kg", quantity: 30, unitPrice: "34.00", unitCost: "26.50"},
	{name: "azucar morena 1kg", quantity: 25, unitPrice: "31.00", unitCost: "24.00"},
	{name: "aceite 900ml", quantity: 18, unitPrice: "52.00", unitCost: "43.00"},
	{name: "cafe molido 500g", quantity: 12, unitPrice: "89.00", unitCost: "70.00"},
}

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "seeder"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "seeder",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	if cfg.App.IsProd() {
		fmt.Fprintln(os.Stderr, "refusing to seed a prod environment")
		os.Exit(1)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "migrations", err)

	var existing int64
	err = dbClient.DB().Model(&models.Product{}).Count(&existing).Error
	requireResource(ctx, logg, "product count", err)
	if existing > 0 {
		logg.Info(logg.WithField(ctx, "products", existing), "catalog already seeded, skipping")
		return
	}

	stockSvc, err := stock.NewService(
		dbClient,
		stock.NewRepository(dbClient.DB()),
		catalog.NewRepository(dbClient.DB()),
		nil,
		nil,
		logg,
	)
	requireResource(ctx, logg, "stock service", err)

	for _, demo := range demoCatalog {
		product := &models.Product{Name: demo.name}
		err := dbClient.DB().Create(product).Error
		requireResource(ctx, logg, "create product", err)

		_, err = stockSvc.AddLot(ctx, stock.AddStockInput{
			ProductID: product.ID,
			Quantity:  demo.quantity,
			UnitPrice: decimal.RequireFromString(demo.unitPrice),
			UnitCost:  decimal.RequireFromString(demo.unitCost),
		})
		requireResource(ctx, logg, "add lot", err)

		logg.Info(logg.WithFields(ctx, map[string]any{
			"product":  demo.name,
			"quantity": demo.quantity,
		}), "seeded product with opening lot")
	}

	logg.Info(ctx, "seeding completed")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
