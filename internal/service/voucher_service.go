package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/model"
	"github.com/Kopoklesz/Szakdolgozat-sub000/pkg/database"
)

// EventRepositoryInterface defines the interface for generation event data access.
type EventRepositoryInterface interface {
	Insert(ctx context.Context, tx database.TxQuerier, ev *model.GenerationEvent) error
	ListCodeEvents(ctx context.Context, shopID int64) ([]model.CodeEventSummary, error)
	ListQREvents(ctx context.Context, shopID int64) ([]model.QREventSummary, error)
	ListExpired(ctx context.Context, before time.Time) ([]uuid.UUID, error)
	Delete(ctx context.Context, tx database.TxQuerier, id uuid.UUID) error
}

// CodeRepositoryInterface defines the interface for code data access.
type CodeRepositoryInterface interface {
	Exists(ctx context.Context, tx database.TxQuerier, code string) (bool, error)
	Insert(ctx context.Context, tx database.TxQuerier, c *model.Code) error
	LockForRedeem(ctx context.Context, tx database.TxQuerier, code string) (*model.LockedCode, error)
	GetShop(ctx context.Context, code string) (int64, error)
	Delete(ctx context.Context, tx database.TxQuerier, code string) error
	DeleteByEvent(ctx context.Context, tx database.TxQuerier, eventID uuid.UUID) (int64, error)
}

// QRRepositoryInterface defines the interface for QR and activation data access.
type QRRepositoryInterface interface {
	Insert(ctx context.Context, tx database.TxQuerier, qr *model.QR) error
	LockActiveByToken(ctx context.Context, tx database.TxQuerier, token string) (*model.LockedQR, error)
	InsertActivation(ctx context.Context, tx database.TxQuerier, qrID uuid.UUID, userID int64, at time.Time) error
	IncrementActivations(ctx context.Context, tx database.TxQuerier, qrID uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.QR, int64, error)
	Delete(ctx context.Context, tx database.TxQuerier, id uuid.UUID) error
	DeleteByEvent(ctx context.Context, tx database.TxQuerier, eventID uuid.UUID) (int64, error)
}

// BalanceRepositoryInterface defines the single atomic credit operation the
// engine is allowed to perform on the balance ledger.
type BalanceRepositoryInterface interface {
	Credit(ctx context.Context, tx database.TxQuerier, userID, shopID int64, delta decimal.Decimal) error
}

// ShopRepositoryInterface defines read access to the shop directory.
type ShopRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*model.Shop, error)
}

// ArtifactRenderer turns generation output into downloadable bytes.
// It is stateless: nothing it produces is persisted.
type ArtifactRenderer interface {
	CodeSheet(shop *model.Shop, codes []string, unitValue decimal.Decimal, expiresOn time.Time) (model.Artifact, error)
	QRImage(shop *model.Shop, token string) (model.Artifact, error)
}

// TxBeginner defines the interface for beginning transactions.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// VoucherService provides the issuance side of the engine: code batches, QR
// vouchers, direct distribution, listings, authorized deletion and the
// expiry sweep.
type VoucherService struct {
	pool        TxBeginner
	eventRepo   EventRepositoryInterface
	codeRepo    CodeRepositoryInterface
	qrRepo      QRRepositoryInterface
	balanceRepo BalanceRepositoryInterface
	shopRepo    ShopRepositoryInterface
	renderer    ArtifactRenderer
	txTimeout   time.Duration
	now         func() time.Time
}

// NewVoucherService creates a new VoucherService with the given pool,
// repositories and renderer.
func NewVoucherService(pool *pgxpool.Pool, eventRepo EventRepositoryInterface, codeRepo CodeRepositoryInterface,
	qrRepo QRRepositoryInterface, balanceRepo BalanceRepositoryInterface, shopRepo ShopRepositoryInterface,
	renderer ArtifactRenderer, txTimeout time.Duration) *VoucherService {
	return &VoucherService{
		pool:        pool,
		eventRepo:   eventRepo,
		codeRepo:    codeRepo,
		qrRepo:      qrRepo,
		balanceRepo: balanceRepo,
		shopRepo:    shopRepo,
		renderer:    renderer,
		txTimeout:   txTimeout,
		now:         time.Now,
	}
}

// NewVoucherServiceWithTxBeginner creates a VoucherService with a custom
// TxBeginner and clock. Primarily used for testing.
func NewVoucherServiceWithTxBeginner(pool TxBeginner, eventRepo EventRepositoryInterface, codeRepo CodeRepositoryInterface,
	qrRepo QRRepositoryInterface, balanceRepo BalanceRepositoryInterface, shopRepo ShopRepositoryInterface,
	renderer ArtifactRenderer, txTimeout time.Duration, now func() time.Time) *VoucherService {
	if now == nil {
		now = time.Now
	}
	return &VoucherService{
		pool:        pool,
		eventRepo:   eventRepo,
		codeRepo:    codeRepo,
		qrRepo:      qrRepo,
		balanceRepo: balanceRepo,
		shopRepo:    shopRepo,
		renderer:    renderer,
		txTimeout:   txTimeout,
		now:         now,
	}
}

// mutationTx are the options for every ledger-mutating transaction. Default
// isolation: ordering comes from the FOR UPDATE row locks, and a blocked
// locker re-reads the row after the holder commits instead of aborting.
var mutationTx = pgx.TxOptions{}

// startOfDay truncates t to midnight in its location. Expiry comparisons are
// date-granular: a voucher expiring "today" is still redeemable today.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// parseFutureDate parses an expiry in YYYY-MM-DD form and requires it to be
// strictly after today.
func parseFutureDate(s string, now time.Time) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, now.Location())
	if err != nil {
		return time.Time{}, ErrInvalidRequest
	}
	if !t.After(startOfDay(now)) {
		return time.Time{}, ErrInvalidRequest
	}
	return t, nil
}

// classify maps retryable store conflicts to ErrTransient and passes
// everything else through.
func classify(err error) error {
	if database.IsTransient(err) {
		return ErrTransient
	}
	return err
}

// opContext bounds a mutating operation so a stuck lock holder cannot block
// a voucher indefinitely.
func (s *VoucherService) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.txTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.txTimeout)
}

// GenerateCodes creates one generation event plus count single-use codes in
// a single transaction and renders the printable code sheet.
// Returns:
//   - ErrInvalidRequest for out-of-range count, non-positive value, or
//     non-future expiry (nothing written)
//   - ErrShopNotFound / ErrForbidden from the authorization gate
//   - ErrGenerationExhausted if the collision retry budget runs out (the
//     whole batch rolls back)
func (s *VoucherService) GenerateCodes(ctx context.Context, actor model.Actor, req *model.GenerateCodesRequest) (*model.GenerateCodesResponse, error) {
	if req == nil || req.Count < 1 || req.Count > 100 || !req.UnitValue.IsPositive() {
		return nil, ErrInvalidRequest
	}
	expiresOn, err := parseFutureDate(req.ExpiresOn, s.now())
	if err != nil {
		return nil, err
	}

	shop, err := s.authorizeShop(ctx, actor, req.ShopID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, mutationTx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	event := &model.GenerationEvent{
		ID:         uuid.New(),
		ShopID:     req.ShopID,
		TeacherID:  actor.UserID,
		Kind:       model.KindCode,
		TotalUnits: req.Count,
		UnitValue:  req.UnitValue,
		ExpiresOn:  expiresOn,
		CreatedAt:  s.now(),
	}
	if err := s.eventRepo.Insert(ctx, tx, event); err != nil {
		return nil, classify(err)
	}

	codes, err := s.mintCodes(ctx, tx, event.ID, req.Count)
	if err != nil {
		return nil, err
	}

	artifact, err := s.renderer.CodeSheet(shop, codes, req.UnitValue, expiresOn)
	if err != nil {
		return nil, fmt.Errorf("render code sheet: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit code batch: %w", classify(err))
	}

	return &model.GenerateCodesResponse{
		EventID:  event.ID,
		Codes:    codes,
		Artifact: artifact,
	}, nil
}

// mintCodes fills count slots with unique codes inside the batch
// transaction. Each slot retries against both the in-flight batch and
// persisted codes up to maxCodeAttempts before the batch fails.
func (s *VoucherService) mintCodes(ctx context.Context, tx pgx.Tx, eventID uuid.UUID, count int) ([]string, error) {
	codes := make([]string, 0, count)
	batch := make(map[string]struct{}, count)

	for slot := 0; slot < count; slot++ {
		var code string
		found := false
		for attempt := 0; attempt < maxCodeAttempts; attempt++ {
			candidate, err := newCode()
			if err != nil {
				return nil, fmt.Errorf("generate code: %w", err)
			}
			if _, dup := batch[candidate]; dup {
				continue
			}
			exists, err := s.codeRepo.Exists(ctx, tx, candidate)
			if err != nil {
				return nil, classify(err)
			}
			if exists {
				continue
			}
			code = candidate
			found = true
			break
		}
		if !found {
			return nil, ErrGenerationExhausted
		}
		if err := s.codeRepo.Insert(ctx, tx, &model.Code{Code: code, EventID: eventID}); err != nil {
			return nil, classify(err)
		}
		batch[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// GenerateQR creates one generation event plus one capacity-limited QR and
// renders the scannable image. The image embeds only the opaque token.
// Returns ErrInvalidRequest for max_activations outside [1,10000],
// non-positive value or non-future expiry; gate errors as in GenerateCodes.
func (s *VoucherService) GenerateQR(ctx context.Context, actor model.Actor, req *model.GenerateQRRequest) (*model.GenerateQRResponse, error) {
	if req == nil || req.MaxActivations < 1 || req.MaxActivations > 10000 || !req.UnitValue.IsPositive() {
		return nil, ErrInvalidRequest
	}
	expiresOn, err := parseFutureDate(req.ExpiresOn, s.now())
	if err != nil {
		return nil, err
	}

	shop, err := s.authorizeShop(ctx, actor, req.ShopID)
	if err != nil {
		return nil, err
	}

	token, err := newQRToken()
	if err != nil {
		return nil, fmt.Errorf("generate qr token: %w", err)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, mutationTx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	event := &model.GenerationEvent{
		ID:         uuid.New(),
		ShopID:     req.ShopID,
		TeacherID:  actor.UserID,
		Kind:       model.KindQR,
		TotalUnits: req.MaxActivations,
		UnitValue:  req.UnitValue,
		ExpiresOn:  expiresOn,
		CreatedAt:  s.now(),
	}
	if err := s.eventRepo.Insert(ctx, tx, event); err != nil {
		return nil, classify(err)
	}

	qr := &model.QR{
		ID:             uuid.New(),
		EventID:        event.ID,
		Token:          token,
		MaxActivations: req.MaxActivations,
		IsActive:       true,
	}
	if err := s.qrRepo.Insert(ctx, tx, qr); err != nil {
		return nil, classify(err)
	}

	artifact, err := s.renderer.QRImage(shop, token)
	if err != nil {
		return nil, fmt.Errorf("render qr image: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit qr generation: %w", classify(err))
	}

	return &model.GenerateQRResponse{
		EventID:  event.ID,
		QRID:     qr.ID,
		Token:    token,
		Artifact: artifact,
	}, nil
}

// Distribute credits every listed user in one all-or-nothing transaction and
// records a direct-kind event for audit. The event expires immediately: it is
// history, not a redeemable voucher.
func (s *VoucherService) Distribute(ctx context.Context, actor model.Actor, req *model.DistributeRequest) (*model.DistributeResult, error) {
	if req == nil || len(req.UserIDs) == 0 || !req.Amount.IsPositive() {
		return nil, ErrInvalidRequest
	}
	seen := make(map[int64]struct{}, len(req.UserIDs))
	for _, userID := range req.UserIDs {
		if userID <= 0 {
			return nil, ErrInvalidRequest
		}
		if _, dup := seen[userID]; dup {
			return nil, ErrInvalidRequest
		}
		seen[userID] = struct{}{}
	}

	if _, err := s.authorizeShop(ctx, actor, req.ShopID); err != nil {
		return nil, err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, mutationTx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	event := &model.GenerationEvent{
		ID:         uuid.New(),
		ShopID:     req.ShopID,
		TeacherID:  actor.UserID,
		Kind:       model.KindDirect,
		TotalUnits: len(req.UserIDs),
		UnitValue:  req.Amount,
		ExpiresOn:  startOfDay(s.now()),
		CreatedAt:  s.now(),
	}
	if err := s.eventRepo.Insert(ctx, tx, event); err != nil {
		return nil, classify(err)
	}

	for _, userID := range req.UserIDs {
		if err := s.balanceRepo.Credit(ctx, tx, userID, req.ShopID, req.Amount); err != nil {
			return nil, classify(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit distribution: %w", classify(err))
	}

	return &model.DistributeResult{AffectedCount: len(req.UserIDs)}, nil
}

// ListIssuedCodes returns the shop's code issuance history with per-event
// unredeemed counts. The authorization gate applies.
func (s *VoucherService) ListIssuedCodes(ctx context.Context, actor model.Actor, shopID int64) ([]model.CodeEventSummary, error) {
	if _, err := s.authorizeShop(ctx, actor, shopID); err != nil {
		return nil, err
	}
	return s.eventRepo.ListCodeEvents(ctx, shopID)
}

// ListIssuedQRs returns the shop's QR issuance history with activation
// progress. The authorization gate applies.
func (s *VoucherService) ListIssuedQRs(ctx context.Context, actor model.Actor, shopID int64) ([]model.QREventSummary, error) {
	if _, err := s.authorizeShop(ctx, actor, shopID); err != nil {
		return nil, err
	}
	return s.eventRepo.ListQREvents(ctx, shopID)
}

// DeleteCode removes an unredeemed code before its expiry.
// Returns ErrCodeNotFound if the code is absent (or already redeemed), and
// gate errors for the code's shop.
func (s *VoucherService) DeleteCode(ctx context.Context, actor model.Actor, code string) error {
	shopID, err := s.codeRepo.GetShop(ctx, code)
	if err != nil {
		return err
	}
	if _, err := s.authorizeShop(ctx, actor, shopID); err != nil {
		return err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, mutationTx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.codeRepo.Delete(ctx, tx, code); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit code deletion: %w", classify(err))
	}
	return nil
}

// DeleteQR removes a QR voucher (and its activation history via cascade).
// Returns ErrQRNotFound if absent, and gate errors for the QR's shop.
func (s *VoucherService) DeleteQR(ctx context.Context, actor model.Actor, qrID uuid.UUID) error {
	_, shopID, err := s.qrRepo.GetByID(ctx, qrID)
	if err != nil {
		return err
	}
	if _, err := s.authorizeShop(ctx, actor, shopID); err != nil {
		return err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, mutationTx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.qrRepo.Delete(ctx, tx, qrID); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit qr deletion: %w", classify(err))
	}
	return nil
}
