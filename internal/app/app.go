// Package app is the composition root. Embedding programs build an App from
// config and call the ledgers through its service fields; the package owns
// the wiring between stock, sales, payments, cashbook and reporting so the
// domain packages stay free of each other's constructors.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mercadito-app/mercadito-backend/internal/cashbook"
	"github.com/mercadito-app/mercadito-backend/internal/catalog"
	"github.com/mercadito-app/mercadito-backend/internal/payments"
	"github.com/mercadito-app/mercadito-backend/internal/reporting"
	"github.com/mercadito-app/mercadito-backend/internal/sales"
	"github.com/mercadito-app/mercadito-backend/internal/stock"
	"github.com/mercadito-app/mercadito-backend/pkg/config"
	"github.com/mercadito-app/mercadito-backend/pkg/db"
	"github.com/mercadito-app/mercadito-backend/pkg/logger"
	"github.com/mercadito-app/mercadito-backend/pkg/metrics"
	"github.com/mercadito-app/mercadito-backend/pkg/migrate"
	"github.com/mercadito-app/mercadito-backend/pkg/redis"
)

// App bundles the wired ledger services and the resources they share.
type App struct {
	Stock     stock.Service
	Sales     sales.Service
	Payments  payments.Service
	Cashbook  cashbook.Service
	Reporting reporting.Service

	DB      *db.Client
	Cache   *redis.Client
	Metrics *metrics.LedgerMetrics

	log *logger.Logger
}

// New boots the full ledger from config. The reporting cache is attached only
// when enabled; everything else is mandatory.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger, reg prometheus.Registerer) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "mercadito"})
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("booting database: %w", err)
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		dbClient.Close()
		return nil, fmt.Errorf("running dev migrations: %w", err)
	}

	var cache *redis.Client
	if cfg.Reporting.CacheEnabled {
		cache, err = redis.New(ctx, cfg.Redis)
		if err != nil {
			dbClient.Close()
			return nil, fmt.Errorf("booting redis: %w", err)
		}
	}

	app, err := build(dbClient, cache, cfg, logg, reg)
	if err != nil {
		if cache != nil {
			cache.Close()
		}
		dbClient.Close()
		return nil, err
	}
	return app, nil
}

// NewWithClient wires the services over an existing DB client. Used by tests
// and embedders that manage their own connections.
func NewWithClient(dbClient *db.Client, cache *redis.Client, cfg *config.Config, logg *logger.Logger, reg prometheus.Registerer) (*App, error) {
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	return build(dbClient, cache, cfg, logg, reg)
}

func build(dbClient *db.Client, cache *redis.Client, cfg *config.Config, logg *logger.Logger, reg prometheus.Registerer) (*App, error) {
	var ledgerMetrics *metrics.LedgerMetrics
	if reg != nil {
		ledgerMetrics = metrics.NewLedgerMetrics(reg)
	}

	var invalidator *reporting.Invalidator
	if cache != nil {
		invalidator = reporting.NewInvalidator(cache, logg)
	}

	conn := dbClient.DB()
	catalogRepo := catalog.NewRepository(conn)
	stockRepo := stock.NewRepository(conn)
	salesRepo := sales.NewRepository(conn)
	paymentsRepo := payments.NewRepository(conn)
	cashbookRepo := cashbook.NewRepository(conn)
	reportingRepo := reporting.NewRepository(conn)

	stockSvc, err := stock.NewService(dbClient, stockRepo, catalogRepo, ledgerMetrics, invalidator, logg)
	if err != nil {
		return nil, fmt.Errorf("wiring stock: %w", err)
	}
	salesSvc, err := sales.NewService(dbClient, salesRepo, catalogRepo, stockSvc, paymentsRepo, ledgerMetrics, invalidator, logg)
	if err != nil {
		return nil, fmt.Errorf("wiring sales: %w", err)
	}
	cashbookSvc, err := cashbook.NewService(dbClient, cashbookRepo, ledgerMetrics, invalidator, logg)
	if err != nil {
		return nil, fmt.Errorf("wiring cashbook: %w", err)
	}
	paymentsSvc, err := payments.NewService(dbClient, paymentsRepo, salesRepo, cashbookSvc, ledgerMetrics, invalidator, logg)
	if err != nil {
		return nil, fmt.Errorf("wiring payments: %w", err)
	}

	var reportCache reporting.Cache
	if cache != nil {
		reportCache = cache
	}
	reportingSvc, err := reporting.NewService(reportingRepo, paymentsRepo, reportCache, cfg.Reporting.CacheTTL, logg)
	if err != nil {
		return nil, fmt.Errorf("wiring reporting: %w", err)
	}

	return &App{
		Stock:     stockSvc,
		Sales:     salesSvc,
		Payments:  paymentsSvc,
		Cashbook:  cashbookSvc,
		Reporting: reportingSvc,
		DB:        dbClient,
		Cache:     cache,
		Metrics:   ledgerMetrics,
		log:       logg,
	}, nil
}

// Close releases the shared resources.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var firstErr error
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			firstErr = err
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
