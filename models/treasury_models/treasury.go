package treasury_models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount    = errors.New("treasury: amount must not be negative")
	ErrInsufficientFunds = errors.New("treasury: insufficient seller pending balance")
)

// Treasury is the platform-wide ledger. Exactly one exists; the ledger store enforces it.
//
// The three balances are money currently held by the platform. The Total* fields are lifetime
// counters used for reporting and only ever grow.
type Treasury struct {
	ID uuid.UUID `json:"id"`

	AdminFeeBalance      decimal.Decimal `json:"admin_fee_balance"`
	ShippingBalance      decimal.Decimal `json:"shipping_balance"`
	SellerPendingBalance decimal.Decimal `json:"seller_pending_balance"`

	TotalAdminFeeEarned    decimal.Decimal `json:"total_admin_fee_earned"`
	TotalShippingCollected decimal.Decimal `json:"total_shipping_collected"`
	TotalSellerPayouts     decimal.Decimal `json:"total_seller_payouts"`
	TotalOrdersProcessed   int64           `json:"total_orders_processed"`

	// Version is bumped by the ledger store on every successful update.
	Version int64 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a treasury with every balance and counter at zero.
func New() (*Treasury, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for treasury: %w", err)
	}
	now := time.Now().UTC()
	return &Treasury{
		ID:                     id,
		AdminFeeBalance:        decimal.Zero,
		ShippingBalance:        decimal.Zero,
		SellerPendingBalance:   decimal.Zero,
		TotalAdminFeeEarned:    decimal.Zero,
		TotalShippingCollected: decimal.Zero,
		TotalSellerPayouts:     decimal.Zero,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

// RecordPayment pools the three parts of a paid order and counts the order.
// Nothing is changed unless every argument is valid.
func (t *Treasury) RecordPayment(adminFee, shippingCost, sellerAmount decimal.Decimal) error {
	if adminFee.IsNegative() || shippingCost.IsNegative() || sellerAmount.IsNegative() {
		return ErrNegativeAmount
	}

	t.AdminFeeBalance = t.AdminFeeBalance.Add(adminFee)
	t.ShippingBalance = t.ShippingBalance.Add(shippingCost)
	t.SellerPendingBalance = t.SellerPendingBalance.Add(sellerAmount)

	t.TotalAdminFeeEarned = t.TotalAdminFeeEarned.Add(adminFee)
	t.TotalShippingCollected = t.TotalShippingCollected.Add(shippingCost)
	t.TotalOrdersProcessed++
	return nil
}

// ProcessPayout moves amount out of the seller pending pool.
func (t *Treasury) ProcessPayout(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	if amount.GreaterThan(t.SellerPendingBalance) {
		return fmt.Errorf("%w: requested %s, available %s", ErrInsufficientFunds, amount, t.SellerPendingBalance)
	}

	t.SellerPendingBalance = t.SellerPendingBalance.Sub(amount)
	t.TotalSellerPayouts = t.TotalSellerPayouts.Add(amount)
	return nil
}

// Held is the total the platform currently holds across all pools.
func (t *Treasury) Held() decimal.Decimal {
	return t.AdminFeeBalance.Add(t.ShippingBalance).Add(t.SellerPendingBalance)
}

// Clone returns an independent copy.
func (t *Treasury) Clone() *Treasury {
	c := *t
	return &c
}
