// Package treasury_service records order payments into the treasury and settles seller payouts.
//
// Every operation runs in a single ledger transaction: the treasury, the store account and the
// payout records either all change or none do. Transactions that lose a race are retried.
package treasury_service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/treasury/logger"
	"github.com/joy095/treasury/models/ledger_models"
	"github.com/joy095/treasury/models/payout_models"
	"github.com/joy095/treasury/models/store_models"
	"github.com/joy095/treasury/models/treasury_models"
	"github.com/shopspring/decimal"
)

const (
	defaultMaxRetries   = 5
	defaultRetryBackoff = 20 * time.Millisecond
)

// PaymentEvent is a paid order as reported by the payment gateway.
type PaymentEvent struct {
	OrderID      string
	StoreID      uuid.UUID
	AdminFee     decimal.Decimal
	ShippingCost decimal.Decimal
	SellerAmount decimal.Decimal
	// ProductTotal is audit-only; nil means SellerAmount + AdminFee.
	ProductTotal *decimal.Decimal
}

// PayoutCommand asks for a disbursement to a store. A nil Amount pays out everything pending.
type PayoutCommand struct {
	StoreID uuid.UUID
	Amount  *decimal.Decimal
	Notes   string
	Actor   uuid.UUID
}

type PayoutResult struct {
	SettledAmount decimal.Decimal         `json:"settled_amount"`
	Store         *store_models.Store     `json:"store"`
	Settled       []*payout_models.Payout `json:"settled"`
	Remaining     []*payout_models.Payout `json:"remaining"`
}

type TreasuryService struct {
	ledger       ledger_models.Ledger
	now          func() time.Time
	maxRetries   int
	retryBackoff time.Duration
}

type Option func(*TreasuryService)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *TreasuryService) { s.now = now }
}

// WithMaxRetries sets how many times a conflicting transaction is retried.
func WithMaxRetries(n int) Option {
	return func(s *TreasuryService) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

func WithRetryBackoff(d time.Duration) Option {
	return func(s *TreasuryService) { s.retryBackoff = d }
}

func NewTreasuryService(ledger ledger_models.Ledger, opts ...Option) *TreasuryService {
	s := &TreasuryService{
		ledger:       ledger,
		now:          func() time.Time { return time.Now().UTC() },
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withRetry runs fn in a ledger transaction, starting over on ErrConcurrencyConflict.
func (s *TreasuryService) withRetry(ctx context.Context, op string, fn func(ctx context.Context, tx ledger_models.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := s.ledger.RunInTx(ctx, fn)
		if err == nil || !errors.Is(err, ledger_models.ErrConcurrencyConflict) {
			return err
		}
		if attempt >= s.maxRetries {
			logger.ErrorLogger.Errorf("%s: giving up after %d attempts: %v", op, attempt+1, err)
			return err
		}

		logger.WarnLogger.Warnf("%s: concurrent modification, retrying (attempt %d): %v", op, attempt+1, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryBackoff * time.Duration(attempt+1)):
		}
	}
}

// GetOrCreateTreasury returns the treasury, creating it with zero balances on first use.
func (s *TreasuryService) GetOrCreateTreasury(ctx context.Context) (*treasury_models.Treasury, error) {
	var out *treasury_models.Treasury
	err := s.withRetry(ctx, "get or create treasury", func(ctx context.Context, tx ledger_models.Tx) error {
		t, err := tx.GetOrCreateTreasury(ctx)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func validCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

func (e PaymentEvent) validate() error {
	if e.OrderID == "" {
		return fmt.Errorf("%w: order id is required", ErrInvalidPayment)
	}
	if e.StoreID == uuid.Nil {
		return fmt.Errorf("%w: store id is required", ErrInvalidPayment)
	}
	amounts := map[string]decimal.Decimal{
		"admin fee":     e.AdminFee,
		"shipping cost": e.ShippingCost,
		"seller amount": e.SellerAmount,
	}
	if e.ProductTotal != nil {
		amounts["product total"] = *e.ProductTotal
	}
	for name, v := range amounts {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidPayment, name)
		}
		if !validCents(v) {
			return fmt.Errorf("%w: %s has more than two decimal places", ErrInvalidPayment, name)
		}
	}
	return nil
}

// RecordPayment credits the treasury with a paid order and adds a pending order_payment record
// for the seller's share. An order is recorded at most once; a repeat returns
// ErrPaymentAlreadyRecorded and changes nothing.
func (s *TreasuryService) RecordPayment(ctx context.Context, event PaymentEvent) (*payout_models.Payout, error) {
	if err := event.validate(); err != nil {
		return nil, err
	}

	productTotal := event.SellerAmount.Add(event.AdminFee)
	if event.ProductTotal != nil {
		productTotal = *event.ProductTotal
	}
	breakdown := payout_models.Breakdown{
		ProductTotal: productTotal,
		ShippingCost: event.ShippingCost,
		AdminFee:     event.AdminFee,
	}

	var recorded *payout_models.Payout
	err := s.withRetry(ctx, "record payment", func(ctx context.Context, tx ledger_models.Tx) error {
		_, err := tx.GetOrderPayment(ctx, event.OrderID)
		if err == nil {
			return fmt.Errorf("order %s: %w", event.OrderID, ErrPaymentAlreadyRecorded)
		}
		if !errors.Is(err, ledger_models.ErrNotFound) {
			return err
		}

		if err := tx.EnsureStore(ctx, event.StoreID); err != nil {
			return err
		}

		p, err := payout_models.NewOrderPayment(event.StoreID, event.OrderID, event.SellerAmount, breakdown, s.now())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPayment, err)
		}
		if err := tx.InsertPayout(ctx, p); err != nil {
			if errors.Is(err, ledger_models.ErrDuplicateOrderPayment) {
				return fmt.Errorf("order %s: %w", event.OrderID, ErrPaymentAlreadyRecorded)
			}
			return err
		}

		t, err := tx.GetOrCreateTreasury(ctx)
		if err != nil {
			return err
		}
		if err := t.RecordPayment(event.AdminFee, event.ShippingCost, event.SellerAmount); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPayment, err)
		}
		if err := tx.UpdateTreasury(ctx, t); err != nil {
			return err
		}

		recorded = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.InfoLogger.Infof("Recorded payment for order %s: store %s seller %s admin fee %s shipping %s",
		event.OrderID, event.StoreID, event.SellerAmount, event.AdminFee, event.ShippingCost)
	return recorded, nil
}

// IssuePayout pays a store out of the treasury's seller pending pool and settles the store's
// pending records oldest first, splitting the last one if the amount ends inside it.
func (s *TreasuryService) IssuePayout(ctx context.Context, cmd PayoutCommand) (*PayoutResult, error) {
	if cmd.Actor == uuid.Nil {
		return nil, ErrActorRequired
	}
	if cmd.Amount != nil && !validCents(*cmd.Amount) {
		return nil, ErrInvalidAmount
	}

	var result *PayoutResult
	err := s.withRetry(ctx, "issue payout", func(ctx context.Context, tx ledger_models.Tx) error {
		store, err := tx.GetStoreForUpdate(ctx, cmd.StoreID)
		if errors.Is(err, ledger_models.ErrNotFound) {
			return fmt.Errorf("store %s: %w", cmd.StoreID, ErrStoreNotFound)
		}
		if err != nil {
			return err
		}

		pending, err := tx.ListPendingPayoutsForUpdate(ctx, cmd.StoreID)
		if err != nil {
			return err
		}
		available := payout_models.SumAmounts(pending)

		amount := available
		if cmd.Amount != nil {
			amount = *cmd.Amount
		}
		if !amount.IsPositive() {
			return ErrNothingToPay
		}
		if amount.GreaterThan(available) {
			return &CeilingError{Kind: ErrExceedsStoreAvailable, Requested: amount, Ceiling: available}
		}

		t, err := tx.GetOrCreateTreasury(ctx)
		if err != nil {
			return err
		}
		if amount.GreaterThan(t.SellerPendingBalance) {
			return &CeilingError{Kind: ErrInsufficientTreasuryFunds, Requested: amount, Ceiling: t.SellerPendingBalance}
		}

		steps, err := payout_models.PlanSettlement(pending, amount)
		if err != nil {
			return err
		}
		outcome, err := payout_models.ApplySettlement(steps, cmd.Actor, cmd.Notes, s.now())
		if err != nil {
			return err
		}

		if err := t.ProcessPayout(amount); err != nil {
			return err
		}
		if err := tx.UpdateTreasury(ctx, t); err != nil {
			return err
		}

		if err := store.Credit(amount); err != nil {
			return err
		}
		if err := tx.UpdateStore(ctx, store); err != nil {
			return err
		}

		for _, p := range outcome.Updated {
			if err := tx.UpdatePayout(ctx, p); err != nil {
				return err
			}
		}
		for _, p := range outcome.Created {
			if err := tx.InsertPayout(ctx, p); err != nil {
				return err
			}
		}

		result = &PayoutResult{
			SettledAmount: amount,
			Store:         store,
			Settled:       outcome.Settled(),
			Remaining:     remainingAfter(pending, outcome),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.InfoLogger.Infof("Issued payout of %s to store %s by %s (%d records settled)",
		result.SettledAmount, cmd.StoreID, cmd.Actor, len(result.Settled))
	return result, nil
}

// remainingAfter returns the store's pending records once outcome is applied, oldest first.
func remainingAfter(pending []*payout_models.Payout, outcome payout_models.SettlementOutcome) []*payout_models.Payout {
	updated := make(map[uuid.UUID]*payout_models.Payout, len(outcome.Updated))
	for _, p := range outcome.Updated {
		updated[p.ID] = p
	}

	out := make([]*payout_models.Payout, 0, len(pending))
	for _, p := range pending {
		if u, ok := updated[p.ID]; ok {
			if u.Status == payout_models.StatusPending {
				out = append(out, u)
			}
			continue
		}
		out = append(out, p)
	}
	return out
}
