package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/model"
	"github.com/Kopoklesz/Szakdolgozat-sub000/pkg/database"
)

// testNow is the frozen clock used across service tests.
var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

// tomorrow/yesterday relative to testNow, in wire format.
const (
	futureDate = "2025-03-11"
	pastDate   = "2025-03-09"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// mockTx is a mock implementation of pgx.Tx for testing transactions.
type mockTx struct {
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error

	commits   int
	rollbacks int
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, pgx.ErrTxClosed
}

func (m *mockTx) Commit(ctx context.Context) error {
	m.commits++
	if m.commitFn != nil {
		return m.commitFn(ctx)
	}
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	m.rollbacks++
	if m.rollbackFn != nil {
		return m.rollbackFn(ctx)
	}
	return nil
}

func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (m *mockTx) LargeObjects() pgx.LargeObjects {
	return pgx.LargeObjects{}
}

func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (m *mockTx) Conn() *pgx.Conn {
	return nil
}

// mockTxBeginner is a mock implementation of TxBeginner.
type mockTxBeginner struct {
	beginTxFn func(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	begins    int
}

func (m *mockTxBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	m.begins++
	if m.beginTxFn != nil {
		return m.beginTxFn(ctx, opts)
	}
	return &mockTx{}, nil
}

// mockEventRepository is a mock implementation of EventRepositoryInterface.
type mockEventRepository struct {
	insertFn         func(ctx context.Context, tx database.TxQuerier, ev *model.GenerationEvent) error
	listCodeEventsFn func(ctx context.Context, shopID int64) ([]model.CodeEventSummary, error)
	listQREventsFn   func(ctx context.Context, shopID int64) ([]model.QREventSummary, error)
	listExpiredFn    func(ctx context.Context, before time.Time) ([]uuid.UUID, error)
	deleteFn         func(ctx context.Context, tx database.TxQuerier, id uuid.UUID) error
}

func (m *mockEventRepository) Insert(ctx context.Context, tx database.TxQuerier, ev *model.GenerationEvent) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, tx, ev)
	}
	return nil
}

func (m *mockEventRepository) ListCodeEvents(ctx context.Context, shopID int64) ([]model.CodeEventSummary, error) {
	if m.listCodeEventsFn != nil {
		return m.listCodeEventsFn(ctx, shopID)
	}
	return []model.CodeEventSummary{}, nil
}

func (m *mockEventRepository) ListQREvents(ctx context.Context, shopID int64) ([]model.QREventSummary, error) {
	if m.listQREventsFn != nil {
		return m.listQREventsFn(ctx, shopID)
	}
	return []model.QREventSummary{}, nil
}

func (m *mockEventRepository) ListExpired(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	if m.listExpiredFn != nil {
		return m.listExpiredFn(ctx, before)
	}
	return nil, nil
}

func (m *mockEventRepository) Delete(ctx context.Context, tx database.TxQuerier, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, tx, id)
	}
	return nil
}

// mockCodeRepository is a mock implementation of CodeRepositoryInterface.
type mockCodeRepository struct {
	existsFn        func(ctx context.Context, tx database.TxQuerier, code string) (bool, error)
	insertFn        func(ctx context.Context, tx database.TxQuerier, c *model.Code) error
	lockForRedeemFn func(ctx context.Context, tx database.TxQuerier, code string) (*model.LockedCode, error)
	getShopFn       func(ctx context.Context, code string) (int64, error)
	deleteFn        func(ctx context.Context, tx database.TxQuerier, code string) error
	deleteByEventFn func(ctx context.Context, tx database.TxQuerier, eventID uuid.UUID) (int64, error)
}

func (m *mockCodeRepository) Exists(ctx context.Context, tx database.TxQuerier, code string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, tx, code)
	}
	return false, nil
}

func (m *mockCodeRepository) Insert(ctx context.Context, tx database.TxQuerier, c *model.Code) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, tx, c)
	}
	return nil
}

func (m *mockCodeRepository) LockForRedeem(ctx context.Context, tx database.TxQuerier, code string) (*model.LockedCode, error) {
	if m.lockForRedeemFn != nil {
		return m.lockForRedeemFn(ctx, tx, code)
	}
	return nil, ErrCodeNotFound
}

func (m *mockCodeRepository) GetShop(ctx context.Context, code string) (int64, error) {
	if m.getShopFn != nil {
		return m.getShopFn(ctx, code)
	}
	return 0, ErrCodeNotFound
}

func (m *mockCodeRepository) Delete(ctx context.Context, tx database.TxQuerier, code string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, tx, code)
	}
	return nil
}

func (m *mockCodeRepository) DeleteByEvent(ctx context.Context, tx database.TxQuerier, eventID uuid.UUID) (int64, error) {
	if m.deleteByEventFn != nil {
		return m.deleteByEventFn(ctx, tx, eventID)
	}
	return 0, nil
}

// mockQRRepository is a mock implementation of QRRepositoryInterface.
type mockQRRepository struct {
	insertFn               func(ctx context.Context, tx database.TxQuerier, qr *model.QR) error
	lockActiveByTokenFn    func(ctx context.Context, tx database.TxQuerier, token string) (*model.LockedQR, error)
	insertActivationFn     func(ctx context.Context, tx database.TxQuerier, qrID uuid.UUID, userID int64, at time.Time) error
	incrementActivationsFn func(ctx context.Context, tx database.TxQuerier, qrID uuid.UUID) error
	getByIDFn              func(ctx context.Context, id uuid.UUID) (*model.QR, int64, error)
	deleteFn               func(ctx context.Context, tx database.TxQuerier, id uuid.UUID) error
	deleteByEventFn        func(ctx context.Context, tx database.TxQuerier, eventID uuid.UUID) (int64, error)
}

func (m *mockQRRepository) Insert(ctx context.Context, tx database.TxQuerier, qr *model.QR) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, tx, qr)
	}
	return nil
}

func (m *mockQRRepository) LockActiveByToken(ctx context.Context, tx database.TxQuerier, token string) (*model.LockedQR, error) {
	if m.lockActiveByTokenFn != nil {
		return m.lockActiveByTokenFn(ctx, tx, token)
	}
	return nil, ErrQRNotFound
}

func (m *mockQRRepository) InsertActivation(ctx context.Context, tx database.TxQuerier, qrID uuid.UUID, userID int64, at time.Time) error {
	if m.insertActivationFn != nil {
		return m.insertActivationFn(ctx, tx, qrID, userID, at)
	}
	return nil
}

func (m *mockQRRepository) IncrementActivations(ctx context.Context, tx database.TxQuerier, qrID uuid.UUID) error {
	if m.incrementActivationsFn != nil {
		return m.incrementActivationsFn(ctx, tx, qrID)
	}
	return nil
}

func (m *mockQRRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.QR, int64, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, 0, ErrQRNotFound
}

func (m *mockQRRepository) Delete(ctx context.Context, tx database.TxQuerier, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, tx, id)
	}
	return nil
}

func (m *mockQRRepository) DeleteByEvent(ctx context.Context, tx database.TxQuerier, eventID uuid.UUID) (int64, error) {
	if m.deleteByEventFn != nil {
		return m.deleteByEventFn(ctx, tx, eventID)
	}
	return 0, nil
}

// mockBalanceRepository is a mock implementation of BalanceRepositoryInterface.
type mockBalanceRepository struct {
	creditFn func(ctx context.Context, tx database.TxQuerier, userID, shopID int64, delta decimal.Decimal) error
	credits  int
}

func (m *mockBalanceRepository) Credit(ctx context.Context, tx database.TxQuerier, userID, shopID int64, delta decimal.Decimal) error {
	m.credits++
	if m.creditFn != nil {
		return m.creditFn(ctx, tx, userID, shopID, delta)
	}
	return nil
}

// mockShopRepository is a mock implementation of ShopRepositoryInterface.
type mockShopRepository struct {
	getByIDFn func(ctx context.Context, id int64) (*model.Shop, error)
}

func (m *mockShopRepository) GetByID(ctx context.Context, id int64) (*model.Shop, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

// mockRenderer is a mock implementation of ArtifactRenderer.
type mockRenderer struct {
	codeSheetFn func(shop *model.Shop, codes []string, unitValue decimal.Decimal, expiresOn time.Time) (model.Artifact, error)
	qrImageFn   func(shop *model.Shop, token string) (model.Artifact, error)
}

func (m *mockRenderer) CodeSheet(shop *model.Shop, codes []string, unitValue decimal.Decimal, expiresOn time.Time) (model.Artifact, error) {
	if m.codeSheetFn != nil {
		return m.codeSheetFn(shop, codes, unitValue, expiresOn)
	}
	return model.Artifact{ContentType: "text/plain; charset=utf-8", Data: []byte("sheet")}, nil
}

func (m *mockRenderer) QRImage(shop *model.Shop, token string) (model.Artifact, error) {
	if m.qrImageFn != nil {
		return m.qrImageFn(shop, token)
	}
	return model.Artifact{ContentType: "image/png", Data: []byte("png")}, nil
}

// testShop returns a shop owned by teacher 10 with partner 11.
func testShop() *model.Shop {
	return &model.Shop{
		ID:          1,
		OwnerID:     10,
		Name:        "Algebra Credit Shop",
		Currency:    "CR",
		AccentColor: "#336699",
		PartnerIDs:  []int64{11},
	}
}

// shopRepoReturning wires a shop repo that serves testShop for id 1.
func shopRepoReturning(shop *model.Shop) *mockShopRepository {
	return &mockShopRepository{
		getByIDFn: func(ctx context.Context, id int64) (*model.Shop, error) {
			if shop != nil && id == shop.ID {
				return shop, nil
			}
			return nil, nil
		},
	}
}

func newTestVoucherService(pool TxBeginner, events *mockEventRepository, codes *mockCodeRepository,
	qrs *mockQRRepository, balances *mockBalanceRepository, shops *mockShopRepository, renderer ArtifactRenderer) *VoucherService {
	if pool == nil {
		pool = &mockTxBeginner{}
	}
	if events == nil {
		events = &mockEventRepository{}
	}
	if codes == nil {
		codes = &mockCodeRepository{}
	}
	if qrs == nil {
		qrs = &mockQRRepository{}
	}
	if balances == nil {
		balances = &mockBalanceRepository{}
	}
	if shops == nil {
		shops = shopRepoReturning(testShop())
	}
	if renderer == nil {
		renderer = &mockRenderer{}
	}
	return NewVoucherServiceWithTxBeginner(pool, events, codes, qrs, balances, shops, renderer, 0, fixedNow)
}

func newTestRedeemService(pool TxBeginner, codes *mockCodeRepository, qrs *mockQRRepository,
	balances *mockBalanceRepository, shops *mockShopRepository) *RedeemService {
	if pool == nil {
		pool = &mockTxBeginner{}
	}
	if codes == nil {
		codes = &mockCodeRepository{}
	}
	if qrs == nil {
		qrs = &mockQRRepository{}
	}
	if balances == nil {
		balances = &mockBalanceRepository{}
	}
	if shops == nil {
		shops = shopRepoReturning(testShop())
	}
	return NewRedeemServiceWithTxBeginner(pool, codes, qrs, balances, shops, 0, fixedNow)
}
