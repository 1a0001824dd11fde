package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/model"
	"github.com/Kopoklesz/Szakdolgozat-sub000/pkg/database"
)

// EventRepository provides data access for generation events using pgx.
type EventRepository struct {
	pool database.TxQuerier
}

// NewEventRepository creates a new EventRepository with the given pool.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// NewEventRepositoryWithPool creates an EventRepository with a custom querier.
// This is primarily used for testing.
func NewEventRepositoryWithPool(pool database.TxQuerier) *EventRepository {
	return &EventRepository{pool: pool}
}

// Insert writes a generation event within a transaction.
func (r *EventRepository) Insert(ctx context.Context, tx database.TxQuerier, ev *model.GenerationEvent) error {
	query := `INSERT INTO generation_events (id, shop_id, teacher_id, kind, total_units, unit_value, expires_on, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		ev.ID, ev.ShopID, ev.TeacherID, ev.Kind, ev.TotalUnits, ev.UnitValue, ev.ExpiresOn, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert generation event: %w", err)
	}
	return nil
}

// ListCodeEvents returns code-kind events for a shop with how many of their
// codes are still unredeemed. Newest first.
func (r *EventRepository) ListCodeEvents(ctx context.Context, shopID int64) ([]model.CodeEventSummary, error) {
	query := `SELECT e.id, e.shop_id, e.teacher_id, e.kind, e.total_units, e.unit_value, e.expires_on, e.created_at,
	                 COUNT(c.code)
	          FROM generation_events e
	          LEFT JOIN codes c ON c.event_id = e.id
	          WHERE e.kind = 'code' AND e.shop_id = $1
	          GROUP BY e.id
	          ORDER BY e.created_at DESC`

	rows, err := r.pool.Query(ctx, query, shopID)
	if err != nil {
		return nil, fmt.Errorf("list code events for shop %d: %w", shopID, err)
	}
	defer rows.Close()

	summaries := []model.CodeEventSummary{}
	for rows.Next() {
		var s model.CodeEventSummary
		err := rows.Scan(
			&s.Event.ID, &s.Event.ShopID, &s.Event.TeacherID, &s.Event.Kind,
			&s.Event.TotalUnits, &s.Event.UnitValue, &s.Event.ExpiresOn, &s.Event.CreatedAt,
			&s.RemainingCodes,
		)
		if err != nil {
			return nil, fmt.Errorf("scan code event summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate code event rows: %w", err)
	}
	return summaries, nil
}

// ListQREvents returns qr-kind events for a shop joined with their QR's
// activation progress. Newest first. QR tokens are not selected.
func (r *EventRepository) ListQREvents(ctx context.Context, shopID int64) ([]model.QREventSummary, error) {
	query := `SELECT e.id, e.shop_id, e.teacher_id, e.kind, e.total_units, e.unit_value, e.expires_on, e.created_at,
	                 q.id, q.event_id, q.max_activations, q.activation_count, q.is_active
	          FROM generation_events e
	          JOIN qrs q ON q.event_id = e.id
	          WHERE e.shop_id = $1
	          ORDER BY e.created_at DESC`

	rows, err := r.pool.Query(ctx, query, shopID)
	if err != nil {
		return nil, fmt.Errorf("list qr events for shop %d: %w", shopID, err)
	}
	defer rows.Close()

	summaries := []model.QREventSummary{}
	for rows.Next() {
		var s model.QREventSummary
		err := rows.Scan(
			&s.Event.ID, &s.Event.ShopID, &s.Event.TeacherID, &s.Event.Kind,
			&s.Event.TotalUnits, &s.Event.UnitValue, &s.Event.ExpiresOn, &s.Event.CreatedAt,
			&s.QR.ID, &s.QR.EventID, &s.QR.MaxActivations, &s.QR.ActivationCount, &s.QR.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("scan qr event summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate qr event rows: %w", err)
	}
	return summaries, nil
}

// ListExpired returns ids of events whose expiry date is strictly before the
// given day. Used by the expiry sweep.
func (r *EventRepository) ListExpired(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	query := `SELECT id FROM generation_events WHERE expires_on < $1`

	rows, err := r.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("list expired events: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired event rows: %w", err)
	}
	return ids, nil
}

// Delete removes an event. Child codes, QRs and activations go with it via
// ON DELETE CASCADE; callers that need child counts delete them first.
func (r *EventRepository) Delete(ctx context.Context, tx database.TxQuerier, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `DELETE FROM generation_events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}
