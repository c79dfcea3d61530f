package ledger_models

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joy095/treasury/logger"
	"github.com/joy095/treasury/models/payout_models"
	"github.com/joy095/treasury/models/store_models"
	"github.com/joy095/treasury/models/treasury_models"
	"github.com/shopspring/decimal"
)

// Ensure PostgresLedger implements Ledger
var _ Ledger = (*PostgresLedger)(nil)

const (
	treasuryColumns = `id, admin_fee_balance, shipping_balance, seller_pending_balance,
		total_admin_fee_earned, total_shipping_collected, total_seller_payouts, total_orders_processed,
		version, created_at, updated_at`

	storeColumns = `store_id, balance, total_revenue, version, created_at, updated_at`

	payoutColumns = `id, store_id, order_id, amount, type, status, processed_by, processed_at, notes,
		breakdown_product_total, breakdown_shipping_cost, breakdown_admin_fee, created_at, updated_at`

	orderPaymentIndex = "uq_payouts_order_payment"
)

// PostgresLedger stores the ledger in PostgreSQL. Rows read through a Tx are locked with
// FOR UPDATE and every update checks the row version it read.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// classifyError maps driver errors onto the ledger's sentinel errors, keeping the cause.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505" && pgErr.ConstraintName == orderPaymentIndex:
			return fmt.Errorf("%s: %w: %w", op, ErrDuplicateOrderPayment, err)
		case pgErr.Code == "40001" || pgErr.Code == "40P01":
			return fmt.Errorf("%s: %w: %w", op, ErrConcurrencyConflict, err)
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01", pgErr.Code == "53300":
			return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (l *PostgresLedger) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return classifyError("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyError("failed to commit transaction", err)
	}
	return nil
}

func (l *PostgresLedger) GetTreasury(ctx context.Context) (*treasury_models.Treasury, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+treasuryColumns+` FROM treasury WHERE singleton`)
	t, err := scanTreasury(row)
	if err != nil {
		return nil, classifyError("failed to load treasury", err)
	}
	return t, nil
}

func (l *PostgresLedger) GetStore(ctx context.Context, storeID uuid.UUID) (*store_models.Store, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+storeColumns+` FROM store_accounts WHERE store_id = $1`, storeID)
	s, err := scanStore(row)
	if err != nil {
		return nil, classifyError(fmt.Sprintf("failed to load store %s", storeID), err)
	}
	return s, nil
}

func (l *PostgresLedger) ListPayouts(ctx context.Context, filter PayoutFilter) ([]*payout_models.Payout, error) {
	var (
		where []string
		args  []any
	)
	if filter.StoreID != nil {
		args = append(args, *filter.StoreID)
		where = append(where, fmt.Sprintf("store_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + payoutColumns + ` FROM payouts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if filter.Oldest {
		query += ` ORDER BY created_at ASC, id ASC`
	} else {
		query += ` ORDER BY created_at DESC, id DESC`
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyError("failed to list payouts", err)
	}
	return collectPayouts(rows)
}

func (l *PostgresLedger) PendingTotalsByStore(ctx context.Context) ([]StorePendingTotal, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT store_id, COUNT(*), COALESCE(SUM(amount), 0), MIN(created_at)
		FROM payouts
		WHERE status = 'pending'
		GROUP BY store_id
		ORDER BY SUM(amount) DESC, store_id ASC`)
	if err != nil {
		return nil, classifyError("failed to total pending payouts", err)
	}
	defer rows.Close()

	var out []StorePendingTotal
	for rows.Next() {
		var t StorePendingTotal
		if err := rows.Scan(&t.StoreID, &t.PendingCount, &t.PendingAmount, &t.OldestPendingAt); err != nil {
			return nil, classifyError("failed to scan pending total", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError("failed to total pending payouts", err)
	}
	return out, nil
}

func (l *PostgresLedger) Stats(ctx context.Context) (*Stats, error) {
	st := newStats()

	err := l.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(balance), 0), COALESCE(SUM(total_revenue), 0)
		FROM store_accounts`).Scan(&st.StoreCount, &st.StoreBalanceTotal, &st.StoreRevenueTotal)
	if err != nil {
		return nil, classifyError("failed to total store accounts", err)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(amount), 0)
		FROM payouts
		GROUP BY status`)
	if err != nil {
		return nil, classifyError("failed to total payouts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			total  StatusTotal
		)
		if err := rows.Scan(&status, &total.Count, &total.Amount); err != nil {
			return nil, classifyError("failed to scan payout total", err)
		}
		st.Payouts[payout_models.Status(status)] = total
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError("failed to total payouts", err)
	}
	return st, nil
}

func (l *PostgresLedger) Ping(ctx context.Context) error {
	if err := l.pool.Ping(ctx); err != nil {
		logger.WarnLogger.Warnf("ledger ping failed: %v", err)
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

func (l *PostgresLedger) Close() {
	l.pool.Close()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetOrCreateTreasury(ctx context.Context) (*treasury_models.Treasury, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for treasury: %w", err)
	}

	_, err = t.tx.Exec(ctx, `INSERT INTO treasury (id) VALUES ($1) ON CONFLICT (singleton) DO NOTHING`, id)
	if err != nil {
		return nil, classifyError("failed to create treasury", err)
	}

	row := t.tx.QueryRow(ctx, `SELECT `+treasuryColumns+` FROM treasury WHERE singleton FOR UPDATE`)
	tr, err := scanTreasury(row)
	if err != nil {
		return nil, classifyError("failed to lock treasury", err)
	}
	return tr, nil
}

func (t *pgTx) UpdateTreasury(ctx context.Context, tr *treasury_models.Treasury) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE treasury SET
			admin_fee_balance = $2,
			shipping_balance = $3,
			seller_pending_balance = $4,
			total_admin_fee_earned = $5,
			total_shipping_collected = $6,
			total_seller_payouts = $7,
			total_orders_processed = $8,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $9
		RETURNING version, updated_at`,
		tr.ID,
		tr.AdminFeeBalance, tr.ShippingBalance, tr.SellerPendingBalance,
		tr.TotalAdminFeeEarned, tr.TotalShippingCollected, tr.TotalSellerPayouts, tr.TotalOrdersProcessed,
		tr.Version,
	).Scan(&tr.Version, &tr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("treasury version %d is stale: %w", tr.Version, ErrConcurrencyConflict)
	}
	if err != nil {
		return classifyError("failed to update treasury", err)
	}
	return nil
}

func (t *pgTx) EnsureStore(ctx context.Context, storeID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO store_accounts (store_id) VALUES ($1) ON CONFLICT (store_id) DO NOTHING`, storeID)
	if err != nil {
		return classifyError(fmt.Sprintf("failed to create store account %s", storeID), err)
	}
	return nil
}

func (t *pgTx) GetStoreForUpdate(ctx context.Context, storeID uuid.UUID) (*store_models.Store, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+storeColumns+` FROM store_accounts WHERE store_id = $1 FOR UPDATE`, storeID)
	s, err := scanStore(row)
	if err != nil {
		return nil, classifyError(fmt.Sprintf("failed to lock store %s", storeID), err)
	}
	return s, nil
}

func (t *pgTx) UpdateStore(ctx context.Context, s *store_models.Store) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE store_accounts SET
			balance = $2,
			total_revenue = $3,
			version = version + 1,
			updated_at = NOW()
		WHERE store_id = $1 AND version = $4
		RETURNING version, updated_at`,
		s.ID, s.Balance, s.TotalRevenue, s.Version,
	).Scan(&s.Version, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("store %s version %d is stale: %w", s.ID, s.Version, ErrConcurrencyConflict)
	}
	if err != nil {
		return classifyError(fmt.Sprintf("failed to update store %s", s.ID), err)
	}
	return nil
}

func (t *pgTx) GetOrderPayment(ctx context.Context, orderID string) (*payout_models.Payout, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE order_id = $1 AND type = 'order_payment'`, orderID)
	p, err := scanPayout(row)
	if err != nil {
		return nil, classifyError(fmt.Sprintf("failed to load order payment %s", orderID), err)
	}
	return p, nil
}

func (t *pgTx) ListPendingPayoutsForUpdate(ctx context.Context, storeID uuid.UUID) ([]*payout_models.Payout, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+payoutColumns+`
		FROM payouts
		WHERE store_id = $1 AND status = 'pending'
		ORDER BY created_at ASC, id ASC
		FOR UPDATE`, storeID)
	if err != nil {
		return nil, classifyError("failed to lock pending payouts", err)
	}
	return collectPayouts(rows)
}

func (t *pgTx) InsertPayout(ctx context.Context, p *payout_models.Payout) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payouts (`+payoutColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.StoreID, p.OrderID, p.Amount, string(p.Type), string(p.Status),
		p.ProcessedBy, p.ProcessedAt, p.Notes,
		p.Breakdown.ProductTotal, p.Breakdown.ShippingCost, p.Breakdown.AdminFee,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return classifyError(fmt.Sprintf("failed to insert payout %s", p.ID), err)
	}
	return nil
}

func (t *pgTx) UpdatePayout(ctx context.Context, p *payout_models.Payout) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE payouts SET
			amount = $2,
			status = $3,
			processed_by = $4,
			processed_at = $5,
			notes = $6,
			updated_at = $7
		WHERE id = $1`,
		p.ID, p.Amount, string(p.Status), p.ProcessedBy, p.ProcessedAt, p.Notes, p.UpdatedAt,
	)
	if err != nil {
		return classifyError(fmt.Sprintf("failed to update payout %s", p.ID), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payout %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func scanTreasury(row rowScanner) (*treasury_models.Treasury, error) {
	var t treasury_models.Treasury
	err := row.Scan(
		&t.ID,
		&t.AdminFeeBalance, &t.ShippingBalance, &t.SellerPendingBalance,
		&t.TotalAdminFeeEarned, &t.TotalShippingCollected, &t.TotalSellerPayouts, &t.TotalOrdersProcessed,
		&t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanStore(row rowScanner) (*store_models.Store, error) {
	var s store_models.Store
	if err := row.Scan(&s.ID, &s.Balance, &s.TotalRevenue, &s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanPayout(row rowScanner) (*payout_models.Payout, error) {
	var (
		p           payout_models.Payout
		typ, status string
		processedBy pgtype.UUID
		processedAt pgtype.Timestamptz
		orderID     pgtype.Text
		notes       pgtype.Text
		product     decimal.Decimal
		shipping    decimal.Decimal
		adminFee    decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &p.StoreID, &orderID, &p.Amount, &typ, &status,
		&processedBy, &processedAt, &notes,
		&product, &shipping, &adminFee,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Type = payout_models.Type(typ)
	p.Status = payout_models.Status(status)
	p.Breakdown = payout_models.Breakdown{ProductTotal: product, ShippingCost: shipping, AdminFee: adminFee}
	if orderID.Valid {
		p.OrderID = &orderID.String
	}
	if notes.Valid {
		p.Notes = &notes.String
	}
	if processedBy.Valid {
		id := uuid.UUID(processedBy.Bytes)
		p.ProcessedBy = &id
	}
	if processedAt.Valid {
		at := processedAt.Time.UTC()
		p.ProcessedAt = &at
	}
	return &p, nil
}

func collectPayouts(rows pgx.Rows) ([]*payout_models.Payout, error) {
	defer rows.Close()

	var out []*payout_models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, classifyError("failed to scan payout", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError("failed to read payouts", err)
	}
	return out, nil
}

