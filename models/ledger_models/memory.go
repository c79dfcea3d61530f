package ledger_models

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/treasury/models/payout_models"
	"github.com/joy095/treasury/models/store_models"
	"github.com/joy095/treasury/models/treasury_models"
	"github.com/shopspring/decimal"
)

// Ensure MemoryLedger implements Ledger
var _ Ledger = (*MemoryLedger)(nil)

// MemoryLedger keeps the ledger in process memory. Transactions are serialized by a single
// writer lock and work on a copy of the state that replaces the live state on commit.
type MemoryLedger struct {
	mu     sync.RWMutex
	state  *memState
	closed bool
}

type memState struct {
	treasury      *treasury_models.Treasury
	stores        map[uuid.UUID]*store_models.Store
	payouts       map[uuid.UUID]*payout_models.Payout
	orderPayments map[string]uuid.UUID
	// seq breaks created_at ties in insertion order.
	seq     map[uuid.UUID]int64
	nextSeq int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{state: &memState{
		stores:        make(map[uuid.UUID]*store_models.Store),
		payouts:       make(map[uuid.UUID]*payout_models.Payout),
		orderPayments: make(map[string]uuid.UUID),
		seq:           make(map[uuid.UUID]int64),
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		stores:        make(map[uuid.UUID]*store_models.Store, len(s.stores)),
		payouts:       make(map[uuid.UUID]*payout_models.Payout, len(s.payouts)),
		orderPayments: make(map[string]uuid.UUID, len(s.orderPayments)),
		seq:           make(map[uuid.UUID]int64, len(s.seq)),
		nextSeq:       s.nextSeq,
	}
	if s.treasury != nil {
		c.treasury = s.treasury.Clone()
	}
	for k, v := range s.stores {
		c.stores[k] = v.Clone()
	}
	for k, v := range s.payouts {
		c.payouts[k] = v.Clone()
	}
	for k, v := range s.orderPayments {
		c.orderPayments[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	return c
}

// sorted returns clones of the payouts accepted by keep, oldest first.
func (s *memState) sorted(keep func(*payout_models.Payout) bool) []*payout_models.Payout {
	var out []*payout_models.Payout
	for _, p := range s.payouts {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return s.seq[out[i].ID] < s.seq[out[j].ID]
	})
	return out
}

func (l *MemoryLedger) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrStorageUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	work := l.state.clone()
	if err := fn(ctx, &memTx{s: work}); err != nil {
		return err
	}
	l.state = work
	return nil
}

func (l *MemoryLedger) GetTreasury(ctx context.Context) (*treasury_models.Treasury, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrStorageUnavailable
	}
	if l.state.treasury == nil {
		return nil, ErrNotFound
	}
	return l.state.treasury.Clone(), nil
}

func (l *MemoryLedger) GetStore(ctx context.Context, storeID uuid.UUID) (*store_models.Store, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrStorageUnavailable
	}
	s, ok := l.state.stores[storeID]
	if !ok {
		return nil, fmt.Errorf("store %s: %w", storeID, ErrNotFound)
	}
	return s.Clone(), nil
}

func (l *MemoryLedger) ListPayouts(ctx context.Context, filter PayoutFilter) ([]*payout_models.Payout, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrStorageUnavailable
	}

	out := l.state.sorted(func(p *payout_models.Payout) bool {
		if filter.StoreID != nil && p.StoreID != *filter.StoreID {
			return false
		}
		if filter.Status != nil && p.Status != *filter.Status {
			return false
		}
		return true
	})
	if !filter.Oldest {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (l *MemoryLedger) PendingTotalsByStore(ctx context.Context) ([]StorePendingTotal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrStorageUnavailable
	}

	byStore := make(map[uuid.UUID]*StorePendingTotal)
	for _, p := range l.state.payouts {
		if p.Status != payout_models.StatusPending {
			continue
		}
		t, ok := byStore[p.StoreID]
		if !ok {
			t = &StorePendingTotal{StoreID: p.StoreID, PendingAmount: decimal.Zero, OldestPendingAt: p.CreatedAt}
			byStore[p.StoreID] = t
		}
		t.PendingCount++
		t.PendingAmount = t.PendingAmount.Add(p.Amount)
		if p.CreatedAt.Before(t.OldestPendingAt) {
			t.OldestPendingAt = p.CreatedAt
		}
	}

	out := make([]StorePendingTotal, 0, len(byStore))
	for _, t := range byStore {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].PendingAmount.Cmp(out[j].PendingAmount); c != 0 {
			return c > 0
		}
		return out[i].StoreID.String() < out[j].StoreID.String()
	})
	return out, nil
}

func (l *MemoryLedger) Stats(ctx context.Context) (*Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrStorageUnavailable
	}

	st := newStats()
	for _, s := range l.state.stores {
		st.StoreCount++
		st.StoreBalanceTotal = st.StoreBalanceTotal.Add(s.Balance)
		st.StoreRevenueTotal = st.StoreRevenueTotal.Add(s.TotalRevenue)
	}
	for _, p := range l.state.payouts {
		t := st.Payouts[p.Status]
		t.Count++
		t.Amount = t.Amount.Add(p.Amount)
		st.Payouts[p.Status] = t
	}
	return st, nil
}

func (l *MemoryLedger) Ping(ctx context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrStorageUnavailable
	}
	return nil
}

func (l *MemoryLedger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}

type memTx struct {
	s *memState
}

func (t *memTx) GetOrCreateTreasury(ctx context.Context) (*treasury_models.Treasury, error) {
	if t.s.treasury == nil {
		tr, err := treasury_models.New()
		if err != nil {
			return nil, err
		}
		t.s.treasury = tr
	}
	return t.s.treasury.Clone(), nil
}

func (t *memTx) UpdateTreasury(ctx context.Context, tr *treasury_models.Treasury) error {
	cur := t.s.treasury
	if cur == nil {
		return fmt.Errorf("treasury: %w", ErrNotFound)
	}
	if cur.Version != tr.Version {
		return fmt.Errorf("treasury version %d, have %d: %w", cur.Version, tr.Version, ErrConcurrencyConflict)
	}
	tr.Version++
	tr.UpdatedAt = time.Now().UTC()
	t.s.treasury = tr.Clone()
	return nil
}

func (t *memTx) EnsureStore(ctx context.Context, storeID uuid.UUID) error {
	if _, ok := t.s.stores[storeID]; !ok {
		t.s.stores[storeID] = store_models.NewStore(storeID)
	}
	return nil
}

func (t *memTx) GetStoreForUpdate(ctx context.Context, storeID uuid.UUID) (*store_models.Store, error) {
	s, ok := t.s.stores[storeID]
	if !ok {
		return nil, fmt.Errorf("store %s: %w", storeID, ErrNotFound)
	}
	return s.Clone(), nil
}

func (t *memTx) UpdateStore(ctx context.Context, s *store_models.Store) error {
	cur, ok := t.s.stores[s.ID]
	if !ok {
		return fmt.Errorf("store %s: %w", s.ID, ErrNotFound)
	}
	if cur.Version != s.Version {
		return fmt.Errorf("store %s version %d, have %d: %w", s.ID, cur.Version, s.Version, ErrConcurrencyConflict)
	}
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	t.s.stores[s.ID] = s.Clone()
	return nil
}

func (t *memTx) GetOrderPayment(ctx context.Context, orderID string) (*payout_models.Payout, error) {
	id, ok := t.s.orderPayments[orderID]
	if !ok {
		return nil, fmt.Errorf("order payment %s: %w", orderID, ErrNotFound)
	}
	return t.s.payouts[id].Clone(), nil
}

func (t *memTx) ListPendingPayoutsForUpdate(ctx context.Context, storeID uuid.UUID) ([]*payout_models.Payout, error) {
	return t.s.sorted(func(p *payout_models.Payout) bool {
		return p.StoreID == storeID && p.Status == payout_models.StatusPending
	}), nil
}

func (t *memTx) InsertPayout(ctx context.Context, p *payout_models.Payout) error {
	if _, ok := t.s.stores[p.StoreID]; !ok {
		return fmt.Errorf("store %s: %w", p.StoreID, ErrNotFound)
	}
	if _, ok := t.s.payouts[p.ID]; ok {
		return fmt.Errorf("payout %s already exists", p.ID)
	}
	if p.Type == payout_models.TypeOrderPayment && p.OrderID != nil {
		if _, ok := t.s.orderPayments[*p.OrderID]; ok {
			return fmt.Errorf("order %s: %w", *p.OrderID, ErrDuplicateOrderPayment)
		}
		t.s.orderPayments[*p.OrderID] = p.ID
	}
	t.s.payouts[p.ID] = p.Clone()
	t.s.nextSeq++
	t.s.seq[p.ID] = t.s.nextSeq
	return nil
}

func (t *memTx) UpdatePayout(ctx context.Context, p *payout_models.Payout) error {
	cur, ok := t.s.payouts[p.ID]
	if !ok {
		return fmt.Errorf("payout %s: %w", p.ID, ErrNotFound)
	}
	next := p.Clone()
	updated := cur.Clone()
	updated.Amount = next.Amount
	updated.Status = next.Status
	updated.ProcessedBy = next.ProcessedBy
	updated.ProcessedAt = next.ProcessedAt
	updated.Notes = next.Notes
	updated.UpdatedAt = next.UpdatedAt
	t.s.payouts[p.ID] = updated
	return nil
}
