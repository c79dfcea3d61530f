// Package ledger_models persists the treasury, store accounts and payout records.
//
// All writes go through Ledger.RunInTx so that a treasury debit, the matching store credit
// and the payout record changes commit together or not at all. Two implementations exist:
// PostgresLedger for production and MemoryLedger for local runs and tests.
package ledger_models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/treasury/models/payout_models"
	"github.com/joy095/treasury/models/store_models"
	"github.com/joy095/treasury/models/treasury_models"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound              = errors.New("ledger: record not found")
	ErrDuplicateOrderPayment = errors.New("ledger: order payment already recorded")
	ErrConcurrencyConflict   = errors.New("ledger: concurrent modification")
	ErrStorageUnavailable    = errors.New("ledger: storage unavailable")
)

// Tx is the write side of a ledger transaction. Reads made through a Tx lock what they return
// until the transaction ends.
type Tx interface {
	// GetOrCreateTreasury returns the singleton, creating it at zero if none exists.
	GetOrCreateTreasury(ctx context.Context) (*treasury_models.Treasury, error)
	// UpdateTreasury saves t if t.Version is still current and bumps the version.
	UpdateTreasury(ctx context.Context, t *treasury_models.Treasury) error

	// EnsureStore creates an empty account for storeID if there is none.
	EnsureStore(ctx context.Context, storeID uuid.UUID) error
	GetStoreForUpdate(ctx context.Context, storeID uuid.UUID) (*store_models.Store, error)
	// UpdateStore saves s if s.Version is still current and bumps the version.
	UpdateStore(ctx context.Context, s *store_models.Store) error

	// GetOrderPayment returns the order_payment record for orderID or ErrNotFound.
	GetOrderPayment(ctx context.Context, orderID string) (*payout_models.Payout, error)
	// ListPendingPayoutsForUpdate returns a store's pending records, oldest first.
	ListPendingPayoutsForUpdate(ctx context.Context, storeID uuid.UUID) ([]*payout_models.Payout, error)
	InsertPayout(ctx context.Context, p *payout_models.Payout) error
	// UpdatePayout saves the mutable fields: amount, status, processed_by, processed_at, notes.
	UpdatePayout(ctx context.Context, p *payout_models.Payout) error
}

// Ledger is the ledger store. Read methods never lock and may observe slightly stale data.
type Ledger interface {
	// RunInTx runs fn in a transaction, committing only if fn returns nil.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// GetTreasury returns the singleton or ErrNotFound if it was never created.
	GetTreasury(ctx context.Context) (*treasury_models.Treasury, error)
	GetStore(ctx context.Context, storeID uuid.UUID) (*store_models.Store, error)
	// ListPayouts returns records matching filter, newest first.
	ListPayouts(ctx context.Context, filter PayoutFilter) ([]*payout_models.Payout, error)
	// PendingTotalsByStore sums pending records per store, largest total first.
	PendingTotalsByStore(ctx context.Context) ([]StorePendingTotal, error)
	Stats(ctx context.Context) (*Stats, error)

	Ping(ctx context.Context) error
	Close()
}

// PayoutFilter selects payout records. Zero fields do not filter. Oldest reverses the
// default newest-first order.
type PayoutFilter struct {
	StoreID *uuid.UUID
	Status  *payout_models.Status
	Limit   int
	Oldest  bool
}

type StorePendingTotal struct {
	StoreID         uuid.UUID       `json:"store_id"`
	PendingCount    int64           `json:"pending_count"`
	PendingAmount   decimal.Decimal `json:"pending_amount"`
	OldestPendingAt time.Time       `json:"oldest_pending_at"`
}

// StatusTotal is the count and sum of payout records in one status.
type StatusTotal struct {
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type Stats struct {
	StoreCount        int64                                `json:"store_count"`
	StoreBalanceTotal decimal.Decimal                      `json:"store_balance_total"`
	StoreRevenueTotal decimal.Decimal                      `json:"store_revenue_total"`
	Payouts           map[payout_models.Status]StatusTotal `json:"payouts"`
}

func newStats() *Stats {
	s := &Stats{
		StoreBalanceTotal: decimal.Zero,
		StoreRevenueTotal: decimal.Zero,
		Payouts:           make(map[payout_models.Status]StatusTotal, 3),
	}
	for _, st := range []payout_models.Status{payout_models.StatusPending, payout_models.StatusCompleted, payout_models.StatusFailed} {
		s.Payouts[st] = StatusTotal{Amount: decimal.Zero}
	}
	return s
}
