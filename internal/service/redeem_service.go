package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/model"
)

// RedeemService converts vouchers into balance credits: exactly once per
// code, at most once per (QR, user), at most max_activations per QR.
type RedeemService struct {
	pool        TxBeginner
	codeRepo    CodeRepositoryInterface
	qrRepo      QRRepositoryInterface
	balanceRepo BalanceRepositoryInterface
	shopRepo    ShopRepositoryInterface
	txTimeout   time.Duration
	now         func() time.Time
}

// NewRedeemService creates a new RedeemService with the given pool and
// repositories.
func NewRedeemService(pool *pgxpool.Pool, codeRepo CodeRepositoryInterface, qrRepo QRRepositoryInterface,
	balanceRepo BalanceRepositoryInterface, shopRepo ShopRepositoryInterface, txTimeout time.Duration) *RedeemService {
	return &RedeemService{
		pool:        pool,
		codeRepo:    codeRepo,
		qrRepo:      qrRepo,
		balanceRepo: balanceRepo,
		shopRepo:    shopRepo,
		txTimeout:   txTimeout,
		now:         time.Now,
	}
}

// NewRedeemServiceWithTxBeginner creates a RedeemService with a custom
// TxBeginner and clock. Primarily used for testing.
func NewRedeemServiceWithTxBeginner(pool TxBeginner, codeRepo CodeRepositoryInterface, qrRepo QRRepositoryInterface,
	balanceRepo BalanceRepositoryInterface, shopRepo ShopRepositoryInterface, txTimeout time.Duration, now func() time.Time) *RedeemService {
	if now == nil {
		now = time.Now
	}
	return &RedeemService{
		pool:        pool,
		codeRepo:    codeRepo,
		qrRepo:      qrRepo,
		balanceRepo: balanceRepo,
		shopRepo:    shopRepo,
		txTimeout:   txTimeout,
		now:         now,
	}
}

func (s *RedeemService) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.txTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.txTimeout)
}

// RedeemCode atomically consumes a single-use code and credits the user.
// The row lock is taken atomically with the lookup, so among concurrent
// redeemers of the same code exactly one observes the row; the rest get
// ErrCodeNotFound, identical to a code that never existed.
// Returns:
//   - ErrCodeNotFound if no code matches (or it was already used)
//   - ErrExpired if the event expired; the code row is deleted and that
//     deletion is committed even on this failure path
//   - ErrTransient on lock timeout / deadlock (safe to retry)
func (s *RedeemService) RedeemCode(ctx context.Context, userID int64, code string) (*model.RedeemResult, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, mutationTx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	// 1. Lock the code row together with its event (SELECT FOR UPDATE)
	locked, err := s.codeRepo.LockForRedeem(ctx, tx, code)
	if err != nil {
		return nil, classify(err)
	}

	// 2. Lazy expiry enforcement: purge the stale code and report it
	if locked.ExpiresOn.Before(startOfDay(s.now())) {
		if err := s.codeRepo.Delete(ctx, tx, code); err != nil {
			return nil, classify(err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit expired code purge: %w", classify(err))
		}
		return nil, ErrExpired
	}

	// 3. Credit the balance, then consume the code by deleting its row
	if err := s.balanceRepo.Credit(ctx, tx, userID, locked.ShopID, locked.UnitValue); err != nil {
		return nil, classify(err)
	}
	if err := s.codeRepo.Delete(ctx, tx, code); err != nil {
		return nil, classify(err)
	}

	shop, err := s.shopRepo.GetByID(ctx, locked.ShopID)
	if err != nil {
		return nil, fmt.Errorf("get shop: %w", err)
	}
	if shop == nil {
		return nil, ErrShopNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit code redemption: %w", classify(err))
	}

	return &model.RedeemResult{
		ValueCredited: locked.UnitValue,
		ShopName:      shop.Name,
		Currency:      shop.Currency,
	}, nil
}

// RedeemQR activates a QR voucher for a user and credits them once.
// The row lock serializes the counter's read-modify-write; the
// UNIQUE(qr_id, user_id) constraint backs up the duplicate pre-check.
// Returns:
//   - ErrQRNotFound if no active QR matches the token
//   - ErrExpired if the event expired (the QR row persists until the sweep)
//   - ErrCapacityReached if the counter is already at the maximum
//   - ErrAlreadyRedeemed if this user activated this QR before
//   - ErrTransient on retryable store conflicts
func (s *RedeemService) RedeemQR(ctx context.Context, userID int64, token string) (*model.RedeemResult, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, mutationTx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// 1. Lock the active QR row (SELECT FOR UPDATE, is_active filter)
	locked, err := s.qrRepo.LockActiveByToken(ctx, tx, token)
	if err != nil {
		return nil, classify(err)
	}

	// 2. Expiry check; unlike codes the row is left for the sweep
	if locked.ExpiresOn.Before(startOfDay(s.now())) {
		return nil, ErrExpired
	}

	// 3. Defensive capacity re-check behind the is_active filter
	if locked.ActivationCount >= locked.MaxActivations {
		return nil, ErrCapacityReached
	}

	// 4. Record the activation; the unique constraint closes the
	//    concurrent double-activation race
	if err := s.qrRepo.InsertActivation(ctx, tx, locked.ID, userID, s.now()); err != nil {
		return nil, classify(err)
	}

	// 5. Credit and bump the counter under the same lock
	if err := s.balanceRepo.Credit(ctx, tx, userID, locked.ShopID, locked.UnitValue); err != nil {
		return nil, classify(err)
	}
	if err := s.qrRepo.IncrementActivations(ctx, tx, locked.ID); err != nil {
		return nil, classify(err)
	}

	shop, err := s.shopRepo.GetByID(ctx, locked.ShopID)
	if err != nil {
		return nil, fmt.Errorf("get shop: %w", err)
	}
	if shop == nil {
		return nil, ErrShopNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit qr activation: %w", classify(err))
	}

	// remaining = max - count after this activation
	remaining := locked.MaxActivations - (locked.ActivationCount + 1)
	return &model.RedeemResult{
		ValueCredited: locked.UnitValue,
		ShopName:      shop.Name,
		Currency:      shop.Currency,
		Remaining:     &remaining,
	}, nil
}
