package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Kopoklesz/Szakdolgozat-sub000/pkg/database"
)

// BalanceRepository is the engine's only write path into the balance ledger.
// It credits; it never debits.
type BalanceRepository struct {
	pool database.TxQuerier
}

// NewBalanceRepository creates a new BalanceRepository with the given pool.
func NewBalanceRepository(pool *pgxpool.Pool) *BalanceRepository {
	return &BalanceRepository{pool: pool}
}

// NewBalanceRepositoryWithPool creates a BalanceRepository with a custom
// querier. This is primarily used for testing.
func NewBalanceRepositoryWithPool(pool database.TxQuerier) *BalanceRepository {
	return &BalanceRepository{pool: pool}
}

// Credit adds delta to the (user, shop) balance, creating the row at delta if
// absent. The upsert is a single atomic statement and must run inside the
// caller's transaction; no read-then-write of balances happens anywhere.
func (r *BalanceRepository) Credit(ctx context.Context, tx database.TxQuerier, userID, shopID int64, delta decimal.Decimal) error {
	query := `INSERT INTO balances (user_id, shop_id, amount) VALUES ($1, $2, $3)
	          ON CONFLICT (user_id, shop_id) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`

	_, err := tx.Exec(ctx, query, userID, shopID, delta)
	if err != nil {
		return fmt.Errorf("credit balance user %d shop %d: %w", userID, shopID, err)
	}
	return nil
}

// Get returns the current balance for a (user, shop) pair, zero if absent.
func (r *BalanceRepository) Get(ctx context.Context, userID, shopID int64) (decimal.Decimal, error) {
	query := `SELECT COALESCE((SELECT amount FROM balances WHERE user_id = $1 AND shop_id = $2), 0)`

	var amount decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, userID, shopID).Scan(&amount); err != nil {
		return decimal.Zero, fmt.Errorf("get balance user %d shop %d: %w", userID, shopID, err)
	}
	return amount, nil
}
