package store_models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrNegativeCredit = errors.New("store: credit must not be negative")

// Store is a seller's ledger account. The store catalogue itself lives elsewhere;
// this row only tracks money already disbursed to the seller.
type Store struct {
	ID           uuid.UUID       `json:"store_id"`
	Balance      decimal.Decimal `json:"balance"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	Version      int64           `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewStore returns an empty account for storeID.
func NewStore(storeID uuid.UUID) *Store {
	now := time.Now().UTC()
	return &Store{
		ID:           storeID,
		Balance:      decimal.Zero,
		TotalRevenue: decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Credit adds a settled payout to the balance and lifetime revenue.
func (s *Store) Credit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeCredit
	}
	s.Balance = s.Balance.Add(amount)
	s.TotalRevenue = s.TotalRevenue.Add(amount)
	return nil
}

func (s *Store) Clone() *Store {
	c := *s
	return &c
}
