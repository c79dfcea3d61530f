package payout_models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeOrderPayment Type = "order_payment"
	TypeManualPayout Type = "manual_payout"
	TypeRefund       Type = "refund"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var ErrInvalidPayout = errors.New("payout: invalid payout")

// IsValidStatus reports whether s is a known payout status.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Breakdown records what an order payment was made of. It is kept for audit only and
// never used in balance math.
type Breakdown struct {
	ProductTotal decimal.Decimal `json:"product_total"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	AdminFee     decimal.Decimal `json:"admin_fee"`
}

// Payout is an audit-trail row: either a seller's earned-but-undisbursed amount for an
// order (pending order_payment) or a disbursement (completed).
type Payout struct {
	ID          uuid.UUID       `json:"id"`
	StoreID     uuid.UUID       `json:"store_id"`
	OrderID     *string         `json:"order_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Type        Type            `json:"type"`
	Status      Status          `json:"status"`
	ProcessedBy *uuid.UUID      `json:"processed_by,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	Notes       *string         `json:"notes,omitempty"`
	Breakdown   Breakdown       `json:"breakdown"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewOrderPayment builds the pending record created when an order is paid.
func NewOrderPayment(storeID uuid.UUID, orderID string, amount decimal.Decimal, breakdown Breakdown, now time.Time) (*Payout, error) {
	if storeID == uuid.Nil || orderID == "" {
		return nil, fmt.Errorf("%w: store and order are required", ErrInvalidPayout)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %s", ErrInvalidPayout, amount)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for payout: %w", err)
	}

	order := orderID
	return &Payout{
		ID:        id,
		StoreID:   storeID,
		OrderID:   &order,
		Amount:    amount,
		Type:      TypeOrderPayment,
		Status:    StatusPending,
		Breakdown: breakdown,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Clone returns a copy that shares no pointers with p.
func (p *Payout) Clone() *Payout {
	c := *p
	if p.OrderID != nil {
		v := *p.OrderID
		c.OrderID = &v
	}
	if p.ProcessedBy != nil {
		v := *p.ProcessedBy
		c.ProcessedBy = &v
	}
	if p.ProcessedAt != nil {
		v := *p.ProcessedAt
		c.ProcessedAt = &v
	}
	if p.Notes != nil {
		v := *p.Notes
		c.Notes = &v
	}
	return &c
}

// SumAmounts totals the amount of every payout.
func SumAmounts(payouts []*Payout) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payouts {
		total = total.Add(p.Amount)
	}
	return total
}
