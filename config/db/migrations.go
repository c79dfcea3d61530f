package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the ledger tables. Every statement is idempotent and runs on startup.
const schema = `
CREATE TABLE IF NOT EXISTS treasury (
    id UUID PRIMARY KEY,
    singleton BOOLEAN NOT NULL DEFAULT TRUE UNIQUE CHECK (singleton),
    admin_fee_balance NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (admin_fee_balance >= 0),
    shipping_balance NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (shipping_balance >= 0),
    seller_pending_balance NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (seller_pending_balance >= 0),
    total_admin_fee_earned NUMERIC(18,2) NOT NULL DEFAULT 0,
    total_shipping_collected NUMERIC(18,2) NOT NULL DEFAULT 0,
    total_seller_payouts NUMERIC(18,2) NOT NULL DEFAULT 0,
    total_orders_processed BIGINT NOT NULL DEFAULT 0,
    version BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS store_accounts (
    store_id UUID PRIMARY KEY,
    balance NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
    total_revenue NUMERIC(18,2) NOT NULL DEFAULT 0,
    version BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS payouts (
    id UUID PRIMARY KEY,
    store_id UUID NOT NULL REFERENCES store_accounts(store_id),
    order_id TEXT,
    amount NUMERIC(18,2) NOT NULL CHECK (amount >= 0),
    type TEXT NOT NULL CHECK (type IN ('order_payment', 'manual_payout', 'refund')),
    status TEXT NOT NULL CHECK (status IN ('pending', 'completed', 'failed')),
    processed_by UUID,
    processed_at TIMESTAMPTZ,
    notes TEXT,
    breakdown_product_total NUMERIC(18,2) NOT NULL DEFAULT 0,
    breakdown_shipping_cost NUMERIC(18,2) NOT NULL DEFAULT 0,
    breakdown_admin_fee NUMERIC(18,2) NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payouts_store_created_at ON payouts(store_id, created_at);
CREATE INDEX IF NOT EXISTS idx_payouts_status ON payouts(status);
CREATE UNIQUE INDEX IF NOT EXISTS uq_payouts_order_payment ON payouts(order_id) WHERE type = 'order_payment';
`

// Migrate applies the ledger schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
