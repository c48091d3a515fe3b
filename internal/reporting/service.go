package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mercadito-app/mercadito-backend/pkg/db"
	pkgerrors "github.com/mercadito-app/mercadito-backend/pkg/errors"
	"github.com/mercadito-app/mercadito-backend/pkg/logger"
	"github.com/mercadito-app/mercadito-backend/pkg/redis"
)

type paymentStats interface {
	CountInWindow(ctx context.Context, from, to time.Time) (int64, decimal.Decimal, error)
}

// Cache is the slice of the redis client the reporting reads depend on.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	ReportKey(parts ...string) string
}

// Service answers read-only period summaries over the ledgers.
type Service interface {
	Summary(ctx context.Context, from, to time.Time) (*PeriodSummary, error)
}

// PeriodSummary is the profitability picture for [From, To). Revenue counts
// money actually received (payments), not sale totals; unpaid debt is not
// revenue yet.
type PeriodSummary struct {
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	Revenue      decimal.Decimal `json:"revenue"`
	CostOfGoods  decimal.Decimal `json:"cost_of_goods"`
	GrossProfit  decimal.Decimal `json:"gross_profit"`
	SaleCount    int64           `json:"sale_count"`
	PaymentCount int64           `json:"payment_count"`
}

type service struct {
	repo     Repository
	payments paymentStats
	cache    Cache
	cacheTTL time.Duration
	log      *logger.Logger
}

// NewService wires the reporting reads. The cache is optional; when nil every
// summary is computed from the ledgers.
func NewService(repo Repository, payments paymentStats, cache Cache, cacheTTL time.Duration, log *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reporting repository required")
	}
	if payments == nil {
		return nil, fmt.Errorf("payment stats required")
	}
	return &service{
		repo:     repo,
		payments: payments,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log,
	}, nil
}

func (s *service) Summary(ctx context.Context, from, to time.Time) (*PeriodSummary, error) {
	if !from.Before(to) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "summary window must not be empty")
	}

	key := s.summaryKey(ctx, from, to)
	if key != "" {
		if cached, err := s.cache.Get(ctx, key); err == nil {
			var summary PeriodSummary
			if err := json.Unmarshal([]byte(cached), &summary); err == nil {
				return &summary, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.warn(ctx, "reporting cache read failed", err)
		}
	}

	paymentCount, revenue, err := s.payments.CountInWindow(ctx, from, to)
	if err != nil {
		return nil, db.MapStorageError(err, "count payments")
	}
	stats, err := s.repo.SaleStats(ctx, from, to)
	if err != nil {
		return nil, db.MapStorageError(err, "aggregate sales")
	}

	summary := &PeriodSummary{
		From:         from,
		To:           to,
		Revenue:      revenue,
		CostOfGoods:  stats.CostOfGoods,
		GrossProfit:  revenue.Sub(stats.CostOfGoods),
		SaleCount:    stats.SaleCount,
		PaymentCount: paymentCount,
	}

	if key != "" {
		if encoded, err := json.Marshal(summary); err == nil {
			if err := s.cache.Set(ctx, key, string(encoded), s.cacheTTL); err != nil {
				s.warn(ctx, "reporting cache write failed", err)
			}
		}
	}
	return summary, nil
}

// summaryKey includes the invalidation generation so every mutating ledger
// call makes all previously cached windows unreachable at once.
func (s *service) summaryKey(ctx context.Context, from, to time.Time) string {
	if s.cache == nil {
		return ""
	}
	generation := "0"
	if current, err := s.cache.Get(ctx, s.cache.ReportKey("generation")); err == nil {
		generation = current
	} else if !errors.Is(err, redis.Nil) {
		s.warn(ctx, "reporting generation read failed", err)
		return ""
	}
	return s.cache.ReportKey(
		"summary",
		generation,
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339),
	)
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.log == nil {
		return
	}
	s.log.Warn(s.log.WithField(ctx, "error", err.Error()), msg)
}

// Invalidator bumps the cache generation. The ledgers call it after every
// mutating operation; when the cache is nil or unreachable it degrades to a
// no-op and summaries fall through to the database.
type Invalidator struct {
	cache Cache
	log   *logger.Logger
}

func NewInvalidator(cache Cache, log *logger.Logger) *Invalidator {
	return &Invalidator{cache: cache, log: log}
}

func (i *Invalidator) Invalidate(ctx context.Context) {
	if i == nil || i.cache == nil {
		return
	}
	if _, err := i.cache.Incr(ctx, i.cache.ReportKey("generation")); err != nil {
		if i.log != nil {
			i.log.Warn(i.log.WithField(ctx, "error", err.Error()), "reporting cache invalidation failed")
		}
	}
}
