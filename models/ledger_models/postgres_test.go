package ledger_models

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joy095/treasury/config/db"
	"github.com/joy095/treasury/models/payout_models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"order payment unique", &pgconn.PgError{Code: "23505", ConstraintName: orderPaymentIndex}, ErrDuplicateOrderPayment},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, ErrConcurrencyConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ErrConcurrencyConflict},
		{"connection failure", &pgconn.PgError{Code: "08006"}, ErrStorageUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, ErrStorageUnavailable},
		{"dial error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, ErrStorageUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyError("op", tt.err), tt.want)
		})
	}

	other := classifyError("op", &pgconn.PgError{Code: "23505", ConstraintName: "payouts_pkey"})
	assert.NotErrorIs(t, other, ErrDuplicateOrderPayment)

	canceled := classifyError("op", context.Canceled)
	assert.ErrorIs(t, canceled, context.Canceled)
	assert.NotErrorIs(t, canceled, ErrStorageUnavailable)

	assert.NoError(t, classifyError("op", nil))
}

// newTestPostgresLedger connects to TEST_DATABASE_URL and resets the ledger tables.
func newTestPostgresLedger(t *testing.T) *PostgresLedger {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx, pool))

	_, err = pool.Exec(ctx, `TRUNCATE payouts, store_accounts, treasury`)
	require.NoError(t, err)

	l := NewPostgresLedger(pool)
	t.Cleanup(l.Close)
	return l
}

func TestPostgresLedgerRoundTrip(t *testing.T) {
	l := newTestPostgresLedger(t)
	ctx := context.Background()
	storeID := uuid.New()

	p, err := payout_models.NewOrderPayment(storeID, "order-1", decimal.RequireFromString("950.50"),
		payout_models.Breakdown{
			ProductTotal: decimal.RequireFromString("1000.50"),
			ShippingCost: decimal.NewFromInt(100),
			AdminFee:     decimal.NewFromInt(50),
		}, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, err)

	err = l.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.EnsureStore(ctx, storeID); err != nil {
			return err
		}
		if err := tx.InsertPayout(ctx, p); err != nil {
			return err
		}
		tr, err := tx.GetOrCreateTreasury(ctx)
		if err != nil {
			return err
		}
		if err := tr.RecordPayment(decimal.NewFromInt(50), decimal.NewFromInt(100), decimal.RequireFromString("950.50")); err != nil {
			return err
		}
		return tx.UpdateTreasury(ctx, tr)
	})
	require.NoError(t, err)

	tr, err := l.GetTreasury(ctx)
	require.NoError(t, err)
	assert.True(t, tr.SellerPendingBalance.Equal(decimal.RequireFromString("950.50")))
	assert.Equal(t, int64(1), tr.TotalOrdersProcessed)

	history, err := l.ListPayouts(ctx, PayoutFilter{StoreID: &storeID})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, p.ID, history[0].ID)
	assert.Equal(t, "order-1", *history[0].OrderID)
	assert.Nil(t, history[0].ProcessedBy)
	assert.True(t, history[0].Breakdown.ProductTotal.Equal(decimal.RequireFromString("1000.50")))

	dup, err := payout_models.NewOrderPayment(storeID, "order-1", decimal.NewFromInt(1), payout_models.Breakdown{}, time.Now().UTC())
	require.NoError(t, err)
	err = l.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertPayout(ctx, dup)
	})
	assert.ErrorIs(t, err, ErrDuplicateOrderPayment)
}

func TestPostgresLedgerStaleTreasury(t *testing.T) {
	l := newTestPostgresLedger(t)

	err := l.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		tr, err := tx.GetOrCreateTreasury(ctx)
		if err != nil {
			return err
		}
		stale := tr.Clone()
		if err := tx.UpdateTreasury(ctx, tr); err != nil {
			return err
		}
		return tx.UpdateTreasury(ctx, stale)
	})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}
