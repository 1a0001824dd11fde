package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/model"
	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/service"
	"github.com/Kopoklesz/Szakdolgozat-sub000/pkg/database"
)

// QRRepository provides data access for QR vouchers and their activations.
type QRRepository struct {
	pool database.TxQuerier
}

// NewQRRepository creates a new QRRepository with the given pool.
func NewQRRepository(pool *pgxpool.Pool) *QRRepository {
	return &QRRepository{pool: pool}
}

// NewQRRepositoryWithPool creates a QRRepository with a custom querier.
// This is primarily used for testing.
func NewQRRepositoryWithPool(pool database.TxQuerier) *QRRepository {
	return &QRRepository{pool: pool}
}

// Insert writes a QR row within the generation transaction.
func (r *QRRepository) Insert(ctx context.Context, tx database.TxQuerier, qr *model.QR) error {
	query := `INSERT INTO qrs (id, event_id, token, max_activations, activation_count, is_active)
	          VALUES ($1, $2, $3, $4, 0, TRUE)`

	_, err := tx.Exec(ctx, query, qr.ID, qr.EventID, qr.Token, qr.MaxActivations)
	if err != nil {
		return fmt.Errorf("insert qr: %w", err)
	}
	return nil
}

// LockActiveByToken retrieves an active QR joined with its event under an
// exclusive row lock. The is_active filter and the lock together serialize
// the read-modify-write of the activation counter.
// Returns service.ErrQRNotFound if no active QR matches the token.
func (r *QRRepository) LockActiveByToken(ctx context.Context, tx database.TxQuerier, token string) (*model.LockedQR, error) {
	query := `SELECT q.id, q.event_id, e.shop_id, e.unit_value, e.expires_on, q.max_activations, q.activation_count
	          FROM qrs q
	          JOIN generation_events e ON e.id = q.event_id
	          WHERE q.token = $1 AND q.is_active
	          FOR UPDATE OF q`

	var lq model.LockedQR
	err := tx.QueryRow(ctx, query, token).Scan(
		&lq.ID, &lq.EventID, &lq.ShopID, &lq.UnitValue, &lq.ExpiresOn,
		&lq.MaxActivations, &lq.ActivationCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrQRNotFound
		}
		return nil, fmt.Errorf("lock qr for activation: %w", err)
	}
	return &lq, nil
}

// InsertActivation records that a user activated a QR.
// The UNIQUE(qr_id, user_id) constraint - not just the caller's pre-check -
// closes the concurrent double-activation race; a violation maps to
// service.ErrAlreadyRedeemed.
func (r *QRRepository) InsertActivation(ctx context.Context, tx database.TxQuerier, qrID uuid.UUID, userID int64, at time.Time) error {
	query := `INSERT INTO qr_activations (id, qr_id, user_id, activated_at) VALUES ($1, $2, $3, $4)`

	_, err := tx.Exec(ctx, query, uuid.New(), qrID, userID, at)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return service.ErrAlreadyRedeemed
		}
		return fmt.Errorf("insert qr activation: %w", err)
	}
	return nil
}

// IncrementActivations bumps the activation counter and flips is_active off
// in the same statement when the new count reaches the maximum. is_active
// never flips back: the row stays inert until expiry or explicit deletion.
// Must run inside the transaction that holds the QR's row lock.
func (r *QRRepository) IncrementActivations(ctx context.Context, tx database.TxQuerier, qrID uuid.UUID) error {
	query := `UPDATE qrs
	          SET activation_count = activation_count + 1,
	              is_active = (activation_count + 1 < max_activations)
	          WHERE id = $1`

	_, err := tx.Exec(ctx, query, qrID)
	if err != nil {
		return fmt.Errorf("increment qr activations: %w", err)
	}
	return nil
}

// GetByID returns a QR and its owning shop id.
// Returns service.ErrQRNotFound if the QR does not exist.
func (r *QRRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.QR, int64, error) {
	query := `SELECT q.id, q.event_id, q.max_activations, q.activation_count, q.is_active, e.shop_id
	          FROM qrs q
	          JOIN generation_events e ON e.id = q.event_id
	          WHERE q.id = $1`

	var qr model.QR
	var shopID int64
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&qr.ID, &qr.EventID, &qr.MaxActivations, &qr.ActivationCount, &qr.IsActive, &shopID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, service.ErrQRNotFound
		}
		return nil, 0, fmt.Errorf("get qr by id: %w", err)
	}
	return &qr, shopID, nil
}

// Delete removes a QR row; its activations cascade.
func (r *QRRepository) Delete(ctx context.Context, tx database.TxQuerier, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `DELETE FROM qrs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete qr %s: %w", id, err)
	}
	return nil
}

// DeleteByEvent removes all QRs of an event, returning how many went.
func (r *QRRepository) DeleteByEvent(ctx context.Context, tx database.TxQuerier, eventID uuid.UUID) (int64, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM qrs WHERE event_id = $1`, eventID)
	if err != nil {
		return 0, fmt.Errorf("delete qrs for event %s: %w", eventID, err)
	}
	return tag.RowsAffected(), nil
}
