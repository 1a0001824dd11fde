package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/model"
	"github.com/Kopoklesz/Szakdolgozat-sub000/pkg/database"
)

// ShopRepository reads the shop directory extract: ownership and partner
// lists for the authorization gate, display metadata for responses and
// artifacts. The engine never writes shops.
type ShopRepository struct {
	pool database.TxQuerier
}

// NewShopRepository creates a new ShopRepository with the given pool.
func NewShopRepository(pool *pgxpool.Pool) *ShopRepository {
	return &ShopRepository{pool: pool}
}

// NewShopRepositoryWithPool creates a ShopRepository with a custom querier.
// This is primarily used for testing.
func NewShopRepositoryWithPool(pool database.TxQuerier) *ShopRepository {
	return &ShopRepository{pool: pool}
}

// GetByID retrieves a shop with its partner teacher ids.
// Returns nil, nil if the shop is not found (service layer handles this).
func (r *ShopRepository) GetByID(ctx context.Context, id int64) (*model.Shop, error) {
	query := `SELECT id, owner_id, name, currency, accent_color FROM shops WHERE id = $1`

	var shop model.Shop
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&shop.ID, &shop.OwnerID, &shop.Name, &shop.Currency, &shop.AccentColor,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found - let service handle
		}
		return nil, fmt.Errorf("get shop by id %d: %w", id, err)
	}

	rows, err := r.pool.Query(ctx, `SELECT teacher_id FROM shop_partners WHERE shop_id = $1 ORDER BY teacher_id`, id)
	if err != nil {
		return nil, fmt.Errorf("get partners for shop %d: %w", id, err)
	}
	defer rows.Close()

	partners := []int64{}
	for rows.Next() {
		var teacherID int64
		if err := rows.Scan(&teacherID); err != nil {
			return nil, fmt.Errorf("scan shop partner: %w", err)
		}
		partners = append(partners, teacherID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shop partner rows: %w", err)
	}

	shop.PartnerIDs = partners
	return &shop, nil
}
