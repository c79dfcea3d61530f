package payout_models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrSettlementExceedsPending = errors.New("payout: settlement amount exceeds pending total")

// SettlementKind says how a pending record takes part in a payout.
type SettlementKind int

const (
	// FullySettle completes the whole record.
	FullySettle SettlementKind = iota + 1
	// SplitSettle pays part of the record; the rest stays pending.
	SplitSettle
)

func (k SettlementKind) String() string {
	switch k {
	case FullySettle:
		return "fully_settle"
	case SplitSettle:
		return "split_settle"
	default:
		return fmt.Sprintf("SettlementKind(%d)", int(k))
	}
}

// SettlementStep is one pending record's share of a payout.
type SettlementStep struct {
	Kind   SettlementKind
	Payout *Payout
	// Amount is the portion of Payout.Amount being paid out.
	Amount decimal.Decimal
}

// PlanSettlement walks pending oldest-first and allocates amount across it. Whole records
// are settled while they fit; the first record larger than what is left is split, and the
// walk stops. pending must already be in settlement order. Nothing is modified.
func PlanSettlement(pending []*Payout, amount decimal.Decimal) ([]SettlementStep, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %s", ErrInvalidPayout, amount)
	}
	if total := SumAmounts(pending); amount.GreaterThan(total) {
		return nil, fmt.Errorf("%w: requested %s, pending %s", ErrSettlementExceedsPending, amount, total)
	}

	var steps []SettlementStep
	remaining := amount
	for _, p := range pending {
		if !remaining.IsPositive() {
			break
		}
		if p.Amount.LessThanOrEqual(remaining) {
			steps = append(steps, SettlementStep{Kind: FullySettle, Payout: p, Amount: p.Amount})
			remaining = remaining.Sub(p.Amount)
			continue
		}
		steps = append(steps, SettlementStep{Kind: SplitSettle, Payout: p, Amount: remaining})
		remaining = decimal.Zero
	}
	return steps, nil
}

// SettlementOutcome holds the records a plan produces: existing rows to update and new
// completed rows to insert.
type SettlementOutcome struct {
	Updated []*Payout
	Created []*Payout
}

// Settled returns every record that now represents paid-out money.
func (o SettlementOutcome) Settled() []*Payout {
	var out []*Payout
	for _, p := range o.Updated {
		if p.Status == StatusCompleted {
			out = append(out, p)
		}
	}
	return append(out, o.Created...)
}

// ApplySettlement turns a plan into record changes without touching the planned records.
// A split keeps the original pending with its amount reduced and adds a completed
// manual_payout for the settled portion, so the two always sum to the original amount.
func ApplySettlement(steps []SettlementStep, actor uuid.UUID, notes string, now time.Time) (SettlementOutcome, error) {
	var out SettlementOutcome
	for _, step := range steps {
		switch step.Kind {
		case FullySettle:
			p := step.Payout.Clone()
			p.Status = StatusCompleted
			p.ProcessedBy = &actor
			p.ProcessedAt = &now
			if notes != "" {
				n := notes
				p.Notes = &n
			}
			p.UpdatedAt = now
			out.Updated = append(out.Updated, p)

		case SplitSettle:
			reduced := step.Payout.Clone()
			reduced.Amount = reduced.Amount.Sub(step.Amount)
			reduced.UpdatedAt = now
			out.Updated = append(out.Updated, reduced)

			id, err := uuid.NewV7()
			if err != nil {
				return SettlementOutcome{}, fmt.Errorf("failed to generate UUID for payout: %w", err)
			}
			n := notes
			if n == "" {
				n = fmt.Sprintf("Partial payout of %s", step.Payout.ID)
			}
			var order *string
			if step.Payout.OrderID != nil {
				o := *step.Payout.OrderID
				order = &o
			}
			processedBy := actor
			processedAt := now
			out.Created = append(out.Created, &Payout{
				ID:          id,
				StoreID:     step.Payout.StoreID,
				OrderID:     order,
				Amount:      step.Amount,
				Type:        TypeManualPayout,
				Status:      StatusCompleted,
				ProcessedBy: &processedBy,
				ProcessedAt: &processedAt,
				Notes:       &n,
				Breakdown: Breakdown{
					ProductTotal: decimal.Zero,
					ShippingCost: decimal.Zero,
					AdminFee:     decimal.Zero,
				},
				CreatedAt: now,
				UpdatedAt: now,
			})

		default:
			return SettlementOutcome{}, fmt.Errorf("payout: unknown settlement kind %s", step.Kind)
		}
	}
	return out, nil
}
