// Package report_service serves read-only views of the ledger for the admin dashboard.
package report_service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/treasury/logger"
	"github.com/joy095/treasury/models/ledger_models"
	"github.com/joy095/treasury/models/payout_models"
	"github.com/joy095/treasury/models/treasury_models"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200

	dashboardCacheKey = "treasury:dashboard"
)

var (
	ErrInvalidFilter = errors.New("invalid payout filter")
	ErrStoreNotFound = errors.New("store not found")
)

// Dashboard is the admin overview. It may lag the ledger by up to the cache TTL.
type Dashboard struct {
	Treasury          *treasury_models.Treasury                          `json:"treasury"`
	OrdersProcessed   int64                                              `json:"orders_processed"`
	StoreCount        int64                                              `json:"store_count"`
	StoreBalanceTotal decimal.Decimal                                    `json:"store_balance_total"`
	StoreRevenueTotal decimal.Decimal                                    `json:"store_revenue_total"`
	Payouts           map[payout_models.Status]ledger_models.StatusTotal `json:"payouts"`
	GeneratedAt       time.Time                                          `json:"generated_at"`
}

type StorePending struct {
	StoreID       uuid.UUID               `json:"store_id"`
	PendingAmount decimal.Decimal         `json:"pending_amount"`
	Payouts       []*payout_models.Payout `json:"payouts"`
}

type HistoryFilter struct {
	StoreID *uuid.UUID
	Status  string
	Limit   int
}

type ReportService struct {
	ledger   ledger_models.Ledger
	redis    *redis.Client
	cacheTTL time.Duration
}

// NewReportService builds the service. rdb may be nil, in which case the dashboard is never cached.
func NewReportService(ledger ledger_models.Ledger, rdb *redis.Client, cacheTTL time.Duration) *ReportService {
	return &ReportService{ledger: ledger, redis: rdb, cacheTTL: cacheTTL}
}

func zeroTreasury() *treasury_models.Treasury {
	return &treasury_models.Treasury{
		AdminFeeBalance:        decimal.Zero,
		ShippingBalance:        decimal.Zero,
		SellerPendingBalance:   decimal.Zero,
		TotalAdminFeeEarned:    decimal.Zero,
		TotalShippingCollected: decimal.Zero,
		TotalSellerPayouts:     decimal.Zero,
	}
}

// TreasurySnapshot returns the current treasury, or an unsaved zero treasury if no payment
// has been recorded yet.
func (s *ReportService) TreasurySnapshot(ctx context.Context) (*treasury_models.Treasury, error) {
	t, err := s.ledger.GetTreasury(ctx)
	if errors.Is(err, ledger_models.ErrNotFound) {
		return zeroTreasury(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load treasury: %w", err)
	}
	return t, nil
}

func (s *ReportService) DashboardTotals(ctx context.Context) (*Dashboard, error) {
	if s.redis != nil && s.cacheTTL > 0 {
		raw, err := s.redis.Get(ctx, dashboardCacheKey).Bytes()
		switch {
		case err == nil:
			var cached Dashboard
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
			logger.WarnLogger.Warnf("Discarding unreadable dashboard cache entry")
		case !errors.Is(err, redis.Nil):
			logger.WarnLogger.Warnf("Dashboard cache read failed, reading ledger: %v", err)
		}
	}

	dash, err := s.buildDashboard(ctx)
	if err != nil {
		return nil, err
	}

	if s.redis != nil && s.cacheTTL > 0 {
		if raw, err := json.Marshal(dash); err == nil {
			if err := s.redis.Set(ctx, dashboardCacheKey, raw, s.cacheTTL).Err(); err != nil {
				logger.WarnLogger.Warnf("Dashboard cache write failed: %v", err)
			}
		}
	}
	return dash, nil
}

func (s *ReportService) buildDashboard(ctx context.Context) (*Dashboard, error) {
	t, err := s.TreasurySnapshot(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.ledger.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger stats: %w", err)
	}
	return &Dashboard{
		Treasury:          t,
		OrdersProcessed:   t.TotalOrdersProcessed,
		StoreCount:        st.StoreCount,
		StoreBalanceTotal: st.StoreBalanceTotal,
		StoreRevenueTotal: st.StoreRevenueTotal,
		Payouts:           st.Payouts,
		GeneratedAt:       time.Now().UTC(),
	}, nil
}

// PendingPayoutsGroupedByStore lists every store with pending money, largest total first.
func (s *ReportService) PendingPayoutsGroupedByStore(ctx context.Context) ([]ledger_models.StorePendingTotal, error) {
	totals, err := s.ledger.PendingTotalsByStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to group pending payouts: %w", err)
	}
	if totals == nil {
		totals = []ledger_models.StorePendingTotal{}
	}
	return totals, nil
}

// PendingForStore returns what a store is owed and the records making it up, oldest first.
func (s *ReportService) PendingForStore(ctx context.Context, storeID uuid.UUID) (*StorePending, error) {
	if _, err := s.ledger.GetStore(ctx, storeID); err != nil {
		if errors.Is(err, ledger_models.ErrNotFound) {
			return nil, fmt.Errorf("store %s: %w", storeID, ErrStoreNotFound)
		}
		return nil, err
	}

	status := payout_models.StatusPending
	payouts, err := s.ledger.ListPayouts(ctx, ledger_models.PayoutFilter{StoreID: &storeID, Status: &status, Oldest: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payouts: %w", err)
	}
	if payouts == nil {
		payouts = []*payout_models.Payout{}
	}
	return &StorePending{
		StoreID:       storeID,
		PendingAmount: payout_models.SumAmounts(payouts),
		Payouts:       payouts,
	}, nil
}

// PayoutHistory lists payout records newest first.
func (s *ReportService) PayoutHistory(ctx context.Context, filter HistoryFilter) ([]*payout_models.Payout, error) {
	lf := ledger_models.PayoutFilter{StoreID: filter.StoreID, Limit: filter.Limit}

	if filter.Status != "" {
		status := payout_models.Status(filter.Status)
		if !payout_models.IsValidStatus(status) {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, filter.Status)
		}
		lf.Status = &status
	}

	switch {
	case lf.Limit < 0:
		return nil, fmt.Errorf("%w: negative limit", ErrInvalidFilter)
	case lf.Limit == 0:
		lf.Limit = DefaultHistoryLimit
	case lf.Limit > MaxHistoryLimit:
		lf.Limit = MaxHistoryLimit
	}

	payouts, err := s.ledger.ListPayouts(ctx, lf)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	if payouts == nil {
		payouts = []*payout_models.Payout{}
	}
	return payouts, nil
}
