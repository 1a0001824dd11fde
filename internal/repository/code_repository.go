package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/model"
	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/service"
	"github.com/Kopoklesz/Szakdolgozat-sub000/pkg/database"
)

// CodeRepository provides data access for one-time codes using pgx.
type CodeRepository struct {
	pool database.TxQuerier
}

// NewCodeRepository creates a new CodeRepository with the given pool.
func NewCodeRepository(pool *pgxpool.Pool) *CodeRepository {
	return &CodeRepository{pool: pool}
}

// NewCodeRepositoryWithPool creates a CodeRepository with a custom querier.
// This is primarily used for testing.
func NewCodeRepositoryWithPool(pool database.TxQuerier) *CodeRepository {
	return &CodeRepository{pool: pool}
}

// Exists reports whether a code string is already persisted. Generation uses
// this to probe candidates inside the batch transaction; an insert racing a
// concurrent batch is still caught by the primary key.
func (r *CodeRepository) Exists(ctx context.Context, tx database.TxQuerier, code string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM codes WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check code existence: %w", err)
	}
	return exists, nil
}

// Insert writes one code row within the batch transaction.
// Returns service.ErrTransient when a concurrent batch won the same code
// string; the whole batch rolls back and is safe to retry.
func (r *CodeRepository) Insert(ctx context.Context, tx database.TxQuerier, c *model.Code) error {
	_, err := tx.Exec(ctx, `INSERT INTO codes (code, event_id) VALUES ($1, $2)`, c.Code, c.EventID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return service.ErrTransient
		}
		return fmt.Errorf("insert code: %w", err)
	}
	return nil
}

// LockForRedeem retrieves a code joined with its event under an exclusive row
// lock (SELECT FOR UPDATE OF the code row). The lock is taken atomically with
// the lookup, so concurrent redeemers of the same code serialize here and all
// but the first observe absence.
// Returns service.ErrCodeNotFound if no row matches - an already-redeemed
// code is indistinguishable from one that never existed.
func (r *CodeRepository) LockForRedeem(ctx context.Context, tx database.TxQuerier, code string) (*model.LockedCode, error) {
	query := `SELECT c.code, c.event_id, e.shop_id, e.unit_value, e.expires_on
	          FROM codes c
	          JOIN generation_events e ON e.id = c.event_id
	          WHERE c.code = $1
	          FOR UPDATE OF c`

	var lc model.LockedCode
	err := tx.QueryRow(ctx, query, code).Scan(&lc.Code, &lc.EventID, &lc.ShopID, &lc.UnitValue, &lc.ExpiresOn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrCodeNotFound
		}
		return nil, fmt.Errorf("lock code for redeem: %w", err)
	}
	return &lc, nil
}

// GetShop returns the owning shop of a live code.
// Returns service.ErrCodeNotFound if the code does not exist.
func (r *CodeRepository) GetShop(ctx context.Context, code string) (int64, error) {
	query := `SELECT e.shop_id FROM codes c JOIN generation_events e ON e.id = c.event_id WHERE c.code = $1`

	var shopID int64
	err := r.pool.QueryRow(ctx, query, code).Scan(&shopID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, service.ErrCodeNotFound
		}
		return 0, fmt.Errorf("get shop for code: %w", err)
	}
	return shopID, nil
}

// Delete removes a code row. Deletion is the consumed-state transition:
// a redeemed code and a never-issued code look the same afterwards.
func (r *CodeRepository) Delete(ctx context.Context, tx database.TxQuerier, code string) error {
	_, err := tx.Exec(ctx, `DELETE FROM codes WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	return nil
}

// DeleteByEvent removes all codes of an event, returning how many went.
func (r *CodeRepository) DeleteByEvent(ctx context.Context, tx database.TxQuerier, eventID uuid.UUID) (int64, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM codes WHERE event_id = $1`, eventID)
	if err != nil {
		return 0, fmt.Errorf("delete codes for event %s: %w", eventID, err)
	}
	return tag.RowsAffected(), nil
}
