package treasury_service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/treasury/logger"
	"github.com/joy095/treasury/models/ledger_models"
	"github.com/joy095/treasury/models/payout_models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.Silence()
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func amountPtr(v int64) *decimal.Decimal {
	a := decimal.NewFromInt(v)
	return &a
}

// steppingClock returns a time one second later on every call so records get distinct,
// ordered creation times.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newService(t *testing.T, opts ...Option) (*TreasuryService, *ledger_models.MemoryLedger) {
	t.Helper()
	l := ledger_models.NewMemoryLedger()
	opts = append([]Option{WithClock(steppingClock()), WithRetryBackoff(time.Millisecond)}, opts...)
	return NewTreasuryService(l, opts...), l
}

func recordPayment(t *testing.T, s *TreasuryService, storeID uuid.UUID, orderID string, seller int64) *payout_models.Payout {
	t.Helper()
	p, err := s.RecordPayment(context.Background(), PaymentEvent{
		OrderID:      orderID,
		StoreID:      storeID,
		AdminFee:     d(0),
		ShippingCost: d(0),
		SellerAmount: d(seller),
	})
	require.NoError(t, err)
	return p
}

func TestRecordPaymentProductTotal(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	store := uuid.New()

	tests := []struct {
		name  string
		given *decimal.Decimal
		want  decimal.Decimal
	}{
		{"absent defaults to seller plus fee", nil, d(80)},
		{"explicit zero is kept", amountPtr(0), d(0)},
		{"explicit value is kept", amountPtr(95), d(95)},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := s.RecordPayment(ctx, PaymentEvent{
				OrderID:      fmt.Sprintf("pt-%d", i),
				StoreID:      store,
				AdminFee:     d(10),
				ShippingCost: d(5),
				SellerAmount: d(70),
				ProductTotal: tt.given,
			})
			require.NoError(t, err)
			assert.True(t, p.Breakdown.ProductTotal.Equal(tt.want), p.Breakdown.ProductTotal.String())
		})
	}

	_, err := s.RecordPayment(ctx, PaymentEvent{
		OrderID: "pt-neg", StoreID: store, SellerAmount: d(1), ProductTotal: amountPtr(-1),
	})
	assert.ErrorIs(t, err, ErrInvalidPayment)
}

func TestRecordAndIssuePayoutScenario(t *testing.T) {
	s, l := newService(t)
	ctx := context.Background()
	store := uuid.New()
	admin := uuid.New()

	p, err := s.RecordPayment(ctx, PaymentEvent{
		OrderID:      "O1",
		StoreID:      store,
		AdminFee:     d(1000),
		ShippingCost: d(2000),
		SellerAmount: d(7000),
	})
	require.NoError(t, err)
	assert.Equal(t, "O1", *p.OrderID)
	assert.Equal(t, payout_models.TypeOrderPayment, p.Type)
	assert.Equal(t, payout_models.StatusPending, p.Status)
	assert.True(t, p.Amount.Equal(d(7000)))
	assert.True(t, p.Breakdown.ProductTotal.Equal(d(8000)))

	tr, err := l.GetTreasury(ctx)
	require.NoError(t, err)
	assert.True(t, tr.SellerPendingBalance.Equal(d(7000)))
	assert.True(t, tr.AdminFeeBalance.Equal(d(1000)))
	assert.True(t, tr.ShippingBalance.Equal(d(2000)))
	assert.Equal(t, int64(1), tr.TotalOrdersProcessed)

	res, err := s.IssuePayout(ctx, PayoutCommand{StoreID: store, Amount: amountPtr(7000), Actor: admin})
	require.NoError(t, err)
	assert.True(t, res.SettledAmount.Equal(d(7000)))
	assert.True(t, res.Store.Balance.Equal(d(7000)))
	assert.True(t, res.Store.TotalRevenue.Equal(d(7000)))
	assert.Empty(t, res.Remaining)
	require.Len(t, res.Settled, 1)
	assert.Equal(t, p.ID, res.Settled[0].ID)

	tr, err = l.GetTreasury(ctx)
	require.NoError(t, err)
	assert.True(t, tr.SellerPendingBalance.IsZero())
	assert.True(t, tr.TotalSellerPayouts.Equal(d(7000)))

	records, err := l.ListPayouts(ctx, ledger_models.PayoutFilter{StoreID: &store})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, payout_models.StatusCompleted, records[0].Status)
	require.NotNil(t, records[0].ProcessedBy)
	assert.Equal(t, admin, *records[0].ProcessedBy)
	assert.NotNil(t, records[0].ProcessedAt)
}

func TestIssuePayoutFifoSplit(t *testing.T) {
	s, l := newService(t)
	ctx := context.Background()
	store := uuid.New()

	first := recordPayment(t, s, store, "A", 3000)
	second := recordPayment(t, s, store, "B", 5000)
	third := recordPayment(t, s, store, "C", 2000)

	res, err := s.IssuePayout(ctx, PayoutCommand{StoreID: store, Amount: amountPtr(6000), Actor: uuid.New()})
	require.NoError(t, err)
	assert.True(t, res.SettledAmount.Equal(d(6000)))

	require.Len(t, res.Remaining, 2)
	assert.Equal(t, second.ID, res.Remaining[0].ID)
	assert.True(t, res.Remaining[0].Amount.Equal(d(2000)))
	assert.Equal(t, third.ID, res.Remaining[1].ID)
	assert.True(t, payout_models.SumAmounts(res.Remaining).Equal(d(4000)))

	pending := payout_models.StatusPending
	stillPending, err := l.ListPayouts(ctx, ledger_models.PayoutFilter{StoreID: &store, Status: &pending})
	require.NoError(t, err)
	assert.True(t, payout_models.SumAmounts(stillPending).Equal(d(4000)))

	completed := payout_models.StatusCompleted
	done, err := l.ListPayouts(ctx, ledger_models.PayoutFilter{StoreID: &store, Status: &completed, Oldest: true})
	require.NoError(t, err)
	require.Len(t, done, 2)
	assert.Equal(t, first.ID, done[0].ID)
	assert.Equal(t, payout_models.TypeManualPayout, done[1].Type)
	assert.True(t, done[1].Amount.Equal(d(3000)))
	assert.Equal(t, "B", *done[1].OrderID)
	assert.Equal(t, "Partial payout of "+second.ID.String(), *done[1].Notes)

	tr, err := l.GetTreasury(ctx)
	require.NoError(t, err)
	assert.True(t, tr.SellerPendingBalance.Equal(d(4000)))
}

func TestIssuePayoutDefaultsToEverythingPending(t *testing.T) {
	s, _ := newService(t)
	store := uuid.New()
	recordPayment(t, s, store, "A", 1200)
	recordPayment(t, s, store, "B", 800)

	res, err := s.IssuePayout(context.Background(), PayoutCommand{StoreID: store, Notes: "weekly", Actor: uuid.New()})
	require.NoError(t, err)
	assert.True(t, res.SettledAmount.Equal(d(2000)))
	require.Len(t, res.Settled, 2)
	for _, p := range res.Settled {
		assert.Equal(t, "weekly", *p.Notes)
	}
}

func TestIssuePayoutStoreCeiling(t *testing.T) {
	s, l := newService(t)
	ctx := context.Background()
	store := uuid.New()
	recordPayment(t, s, store, "A", 3000)

	_, err := s.IssuePayout(ctx, PayoutCommand{StoreID: store, Amount: amountPtr(3001), Actor: uuid.New()})
	require.ErrorIs(t, err, ErrExceedsStoreAvailable)

	var ceiling *CeilingError
	require.ErrorAs(t, err, &ceiling)
	assert.True(t, ceiling.Ceiling.Equal(d(3000)))
	assert.True(t, ceiling.Requested.Equal(d(3001)))

	tr, err := l.GetTreasury(ctx)
	require.NoError(t, err)
	assert.True(t, tr.SellerPendingBalance.Equal(d(3000)))

	st, err := l.GetStore(ctx, store)
	require.NoError(t, err)
	assert.True(t, st.Balance.IsZero())
}

func TestIssuePayoutTreasuryCeiling(t *testing.T) {
	s, l := newService(t)
	ctx := context.Background()
	store := uuid.New()
	recordPayment(t, s, store, "A", 5000)

	// Drain the pool behind the store's back to model an inconsistent ledger.
	err := l.RunInTx(ctx, func(ctx context.Context, tx ledger_models.Tx) error {
		tr, err := tx.GetOrCreateTreasury(ctx)
		if err != nil {
			return err
		}
		tr.SellerPendingBalance = d(1000)
		return tx.UpdateTreasury(ctx, tr)
	})
	require.NoError(t, err)

	_, err = s.IssuePayout(ctx, PayoutCommand{StoreID: store, Amount: amountPtr(4000), Actor: uuid.New()})
	require.ErrorIs(t, err, ErrInsufficientTreasuryFunds)

	var ceiling *CeilingError
	require.ErrorAs(t, err, &ceiling)
	assert.True(t, ceiling.Ceiling.Equal(d(1000)))

	pending := payout_models.StatusPending
	records, err := l.ListPayouts(ctx, ledger_models.PayoutFilter{StoreID: &store, Status: &pending})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Amount.Equal(d(5000)))
}

func TestIssuePayoutValidation(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	store := uuid.New()
	recordPayment(t, s, store, "A", 100)

	_, err := s.IssuePayout(ctx, PayoutCommand{StoreID: store})
	assert.ErrorIs(t, err, ErrActorRequired)

	_, err = s.IssuePayout(ctx, PayoutCommand{StoreID: uuid.New(), Actor: uuid.New()})
	assert.ErrorIs(t, err, ErrStoreNotFound)

	_, err = s.IssuePayout(ctx, PayoutCommand{StoreID: store, Amount: amountPtr(0), Actor: uuid.New()})
	assert.ErrorIs(t, err, ErrNothingToPay)

	_, err = s.IssuePayout(ctx, PayoutCommand{StoreID: store, Amount: amountPtr(-5), Actor: uuid.New()})
	assert.ErrorIs(t, err, ErrNothingToPay)

	tiny := decimal.RequireFromString("0.001")
	_, err = s.IssuePayout(ctx, PayoutCommand{StoreID: store, Amount: &tiny, Actor: uuid.New()})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = s.IssuePayout(ctx, PayoutCommand{StoreID: store, Actor: uuid.New()})
	require.NoError(t, err)

	// Everything is settled now.
	_, err = s.IssuePayout(ctx, PayoutCommand{StoreID: store, Actor: uuid.New()})
	assert.ErrorIs(t, err, ErrNothingToPay)
}

func TestRecordPaymentIsIdempotent(t *testing.T) {
	s, l := newService(t)
	ctx := context.Background()
	store := uuid.New()
	event := PaymentEvent{OrderID: "O1", StoreID: store, AdminFee: d(10), ShippingCost: d(20), SellerAmount: d(70)}

	_, err := s.RecordPayment(ctx, event)
	require.NoError(t, err)

	_, err = s.RecordPayment(ctx, event)
	assert.ErrorIs(t, err, ErrPaymentAlreadyRecorded)

	tr, err := l.GetTreasury(ctx)
	require.NoError(t, err)
	assert.True(t, tr.SellerPendingBalance.Equal(d(70)))
	assert.True(t, tr.AdminFeeBalance.Equal(d(10)))
	assert.Equal(t, int64(1), tr.TotalOrdersProcessed)

	records, err := l.ListPayouts(ctx, ledger_models.PayoutFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRecordPaymentValidation(t *testing.T) {
	s, l := newService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		event PaymentEvent
	}{
		{"missing order", PaymentEvent{StoreID: uuid.New(), SellerAmount: d(1)}},
		{"missing store", PaymentEvent{OrderID: "o", SellerAmount: d(1)}},
		{"negative admin fee", PaymentEvent{OrderID: "o", StoreID: uuid.New(), AdminFee: d(-1)}},
		{"negative seller amount", PaymentEvent{OrderID: "o", StoreID: uuid.New(), SellerAmount: d(-1)}},
		{"sub-cent amount", PaymentEvent{OrderID: "o", StoreID: uuid.New(), SellerAmount: decimal.RequireFromString("1.005")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.RecordPayment(ctx, tt.event)
			assert.ErrorIs(t, err, ErrInvalidPayment)
		})
	}

	_, err := l.GetTreasury(ctx)
	assert.ErrorIs(t, err, ledger_models.ErrNotFound)
}

func TestGetOrCreateTreasury(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	first, err := s.GetOrCreateTreasury(ctx)
	require.NoError(t, err)
	assert.True(t, first.Held().IsZero())

	second, err := s.GetOrCreateTreasury(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestConcurrentPaymentsAndPayoutsConserveMoney(t *testing.T) {
	s, l := newService(t)
	ctx := context.Background()
	stores := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.RecordPayment(ctx, PaymentEvent{
				OrderID:      fmt.Sprintf("order-%d", i),
				StoreID:      stores[i%len(stores)],
				AdminFee:     d(5),
				ShippingCost: d(3),
				SellerAmount: d(int64(100 + i)),
			})
			assert.NoError(t, err)
		}(i)
	}
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.IssuePayout(ctx, PayoutCommand{StoreID: stores[i%len(stores)], Amount: amountPtr(150), Actor: uuid.New()})
			if err != nil {
				// A payout may legitimately find too little pending so far.
				assert.True(t,
					errors.Is(err, ErrStoreNotFound) || errors.Is(err, ErrNothingToPay) ||
						errors.Is(err, ErrExceedsStoreAvailable), "unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	tr, err := l.GetTreasury(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(60), tr.TotalOrdersProcessed)
	assert.False(t, tr.SellerPendingBalance.IsNegative())

	var totalSeller int64
	for i := 0; i < 60; i++ {
		totalSeller += int64(100 + i)
	}

	st, err := l.Stats(ctx)
	require.NoError(t, err)
	pending := st.Payouts[payout_models.StatusPending].Amount
	completed := st.Payouts[payout_models.StatusCompleted].Amount

	// Every seller unit is either still pending or paid out, never both.
	assert.True(t, pending.Add(completed).Equal(d(totalSeller)))
	assert.True(t, tr.SellerPendingBalance.Equal(pending))
	assert.True(t, tr.TotalSellerPayouts.Equal(completed))
	assert.True(t, st.StoreBalanceTotal.Equal(completed))
	assert.True(t, tr.AdminFeeBalance.Equal(d(300)))
	assert.True(t, tr.ShippingBalance.Equal(d(180)))
}

// conflictingLedger fails the first n transactions with ErrConcurrencyConflict.
type conflictingLedger struct {
	ledger_models.Ledger
	failures atomic.Int32
	calls    atomic.Int32
}

func (c *conflictingLedger) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ledger_models.Tx) error) error {
	c.calls.Add(1)
	if c.failures.Add(-1) >= 0 {
		return fmt.Errorf("update treasury: %w", ledger_models.ErrConcurrencyConflict)
	}
	return c.Ledger.RunInTx(ctx, fn)
}

func TestRetriesOnConcurrencyConflict(t *testing.T) {
	l := &conflictingLedger{Ledger: ledger_models.NewMemoryLedger()}
	l.failures.Store(2)
	s := NewTreasuryService(l, WithRetryBackoff(time.Millisecond), WithMaxRetries(3))

	_, err := s.RecordPayment(context.Background(), PaymentEvent{OrderID: "o", StoreID: uuid.New(), SellerAmount: d(10)})
	require.NoError(t, err)
	assert.Equal(t, int32(3), l.calls.Load())
}

func TestRetriesExhausted(t *testing.T) {
	l := &conflictingLedger{Ledger: ledger_models.NewMemoryLedger()}
	l.failures.Store(10)
	s := NewTreasuryService(l, WithRetryBackoff(time.Millisecond), WithMaxRetries(2))

	_, err := s.GetOrCreateTreasury(context.Background())
	assert.ErrorIs(t, err, ledger_models.ErrConcurrencyConflict)
	assert.Equal(t, int32(3), l.calls.Load())
}
