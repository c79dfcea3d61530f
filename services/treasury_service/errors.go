package treasury_service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPayment         = errors.New("invalid payment event")
	ErrPaymentAlreadyRecorded = errors.New("payment already recorded for order")

	ErrActorRequired             = errors.New("payout actor is required")
	ErrInvalidAmount             = errors.New("payout amount has more than two decimal places")
	ErrStoreNotFound             = errors.New("store not found")
	ErrNothingToPay              = errors.New("nothing to pay out")
	ErrExceedsStoreAvailable     = errors.New("payout exceeds store pending amount")
	ErrInsufficientTreasuryFunds = errors.New("insufficient seller pending balance in treasury")
)

// CeilingError reports a payout above what may be paid. Kind is ErrExceedsStoreAvailable or
// ErrInsufficientTreasuryFunds, so errors.Is matches it against either sentinel.
type CeilingError struct {
	Kind      error
	Requested decimal.Decimal
	Ceiling   decimal.Decimal
}

func (e *CeilingError) Error() string {
	return fmt.Sprintf("%v: requested %s, available %s", e.Kind, e.Requested.StringFixed(2), e.Ceiling.StringFixed(2))
}

func (e *CeilingError) Unwrap() error {
	return e.Kind
}
