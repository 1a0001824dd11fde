package service

import (
	"context"
	"fmt"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/model"
)

// permitted reports whether the actor may manage vouchers for the shop:
// platform admins unconditionally, otherwise the recorded owner or a listed
// partner teacher. Redemption is self-service and never passes through here.
func permitted(actor model.Actor, shop *model.Shop) bool {
	if actor.IsAdmin() {
		return true
	}
	if actor.UserID == shop.OwnerID {
		return true
	}
	for _, partnerID := range shop.PartnerIDs {
		if actor.UserID == partnerID {
			return true
		}
	}
	return false
}

// authorizeShop loads the shop and runs the permission gate.
// Returns ErrShopNotFound or ErrForbidden; on success the shop is returned so
// callers can reuse its display metadata without a second lookup.
func (s *VoucherService) authorizeShop(ctx context.Context, actor model.Actor, shopID int64) (*model.Shop, error) {
	shop, err := s.shopRepo.GetByID(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("get shop: %w", err)
	}
	if shop == nil {
		return nil, ErrShopNotFound
	}
	if !permitted(actor, shop) {
		return nil, ErrForbidden
	}
	return shop, nil
}
