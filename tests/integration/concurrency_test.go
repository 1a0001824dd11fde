//go:build integration

package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/repository"
	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/service"
)

func newRedeemService() *service.RedeemService {
	codeRepo := repository.NewCodeRepository(testPool)
	qrRepo := repository.NewQRRepository(testPool)
	balanceRepo := repository.NewBalanceRepository(testPool)
	shopRepo := repository.NewShopRepository(testPool)
	return service.NewRedeemService(testPool, codeRepo, qrRepo, balanceRepo, shopRepo, 10*time.Second)
}

// insertCodeEvent seeds one event with a single code directly in the database.
func insertCodeEvent(t *testing.T, shopID int64, code string, unitValue decimal.Decimal) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	eventID := uuid.New()
	_, err := testPool.Exec(ctx,
		`INSERT INTO generation_events (id, shop_id, teacher_id, kind, total_units, unit_value, expires_on, created_at)
		 VALUES ($1, $2, 10, 'code', 1, $3, CURRENT_DATE + 7, NOW())`,
		eventID, shopID, unitValue)
	require.NoError(t, err)

	_, err = testPool.Exec(ctx, "INSERT INTO codes (code, event_id) VALUES ($1, $2)", code, eventID)
	require.NoError(t, err)
}

// insertQREvent seeds one event with a QR of the given capacity.
func insertQREvent(t *testing.T, shopID int64, token string, maxActivations int, unitValue decimal.Decimal) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	eventID := uuid.New()
	_, err := testPool.Exec(ctx,
		`INSERT INTO generation_events (id, shop_id, teacher_id, kind, total_units, unit_value, expires_on, created_at)
		 VALUES ($1, $2, 10, 'qr', $3, $4, CURRENT_DATE + 7, NOW())`,
		eventID, shopID, maxActivations, unitValue)
	require.NoError(t, err)

	_, err = testPool.Exec(ctx,
		`INSERT INTO qrs (id, event_id, token, max_activations, activation_count, is_active)
		 VALUES ($1, $2, $3, $4, 0, TRUE)`,
		uuid.New(), eventID, token, maxActivations)
	require.NoError(t, err)
}

// TestConcurrentCodeRedemption_ExactlyOnce races many users for the same
// single-use code. Exactly one wins; every loser blocks on the row lock,
// re-reads once the winner commits and sees the code as absent, exactly as
// if it never existed. The total credited value is exactly one unit.
func TestConcurrentCodeRedemption_ExactlyOnce(t *testing.T) {
	cleanupTables(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shopID := createTestShop(t, 10, "Race Shop")
	insertCodeEvent(t, shopID, "RACEME01", decimal.RequireFromString("25.00"))

	svc := newRedeemService()

	const redeemers = 10
	var wg sync.WaitGroup
	results := make(chan error, redeemers)

	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := svc.RedeemCode(ctx, userID, "RACEME01")
			results <- err
		}(int64(1000 + i))
	}

	wg.Wait()
	close(results)

	var successes, notFounds, otherErrors int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, service.ErrCodeNotFound):
			notFounds++
		default:
			otherErrors++
			t.Logf("Unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes, "Exactly one redemption should succeed")
	assert.Equal(t, redeemers-1, notFounds, "Every loser must see the code as absent, never a retryable abort")
	assert.Equal(t, 0, otherErrors, "No other errors should occur")

	// The code row is gone
	var liveCodes int
	err := testPool.QueryRow(ctx, "SELECT COUNT(*) FROM codes WHERE code = $1", "RACEME01").Scan(&liveCodes)
	require.NoError(t, err)
	assert.Equal(t, 0, liveCodes)

	// Exactly one unit was credited across all racers
	var total decimal.Decimal
	err = testPool.QueryRow(ctx, "SELECT COALESCE(SUM(amount), 0) FROM balances WHERE shop_id = $1", shopID).Scan(&total)
	require.NoError(t, err)
	assert.Equal(t, "25", total.String(), "Exactly one unit value credited in total")
}

// TestConcurrentQRActivation_CapacityNeverExceeded races more users than the
// QR has capacity for. Successes must equal the capacity exactly and the
// counter must land on the maximum, never above.
func TestConcurrentQRActivation_CapacityNeverExceeded(t *testing.T) {
	cleanupTables(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const capacity = 5
	const activators = 20

	shopID := createTestShop(t, 10, "Capacity Shop")
	insertQREvent(t, shopID, "captoken", capacity, decimal.RequireFromString("10.00"))

	svc := newRedeemService()

	var wg sync.WaitGroup
	results := make(chan error, activators)

	for i := 0; i < activators; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := svc.RedeemQR(ctx, userID, "captoken")
			results <- err
		}(int64(2000 + i))
	}

	wg.Wait()
	close(results)

	var successes, rejected, otherErrors int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, service.ErrQRNotFound),
			errors.Is(err, service.ErrCapacityReached):
			rejected++
		default:
			otherErrors++
			t.Logf("Unexpected error: %v", err)
		}
	}

	assert.Equal(t, capacity, successes, "Successes must equal the capacity exactly")
	assert.Equal(t, activators-capacity, rejected, "Every loser must see the QR full or inactive, never a retryable abort")
	assert.Equal(t, 0, otherErrors, "No other errors should occur")

	var count int
	var isActive bool
	err := testPool.QueryRow(ctx,
		"SELECT activation_count, is_active FROM qrs WHERE token = $1", "captoken").Scan(&count, &isActive)
	require.NoError(t, err)
	assert.Equal(t, capacity, count, "Counter must land exactly on the maximum")
	assert.False(t, isActive, "A full QR must be deactivated")

	var activations int
	err = testPool.QueryRow(ctx, "SELECT COUNT(*) FROM qr_activations").Scan(&activations)
	require.NoError(t, err)
	assert.Equal(t, capacity, activations)
}

// TestConcurrentQRActivation_SameUserOnlyOnce races the same user against a
// roomy QR. The unique activation constraint must hold under concurrency.
func TestConcurrentQRActivation_SameUserOnlyOnce(t *testing.T) {
	cleanupTables(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shopID := createTestShop(t, 10, "Double Dip Shop")
	insertQREvent(t, shopID, "diptoken", 100, decimal.RequireFromString("10.00"))

	svc := newRedeemService()

	const attempts = 10
	const userID = int64(3000)
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RedeemQR(ctx, userID, "diptoken")
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	var successes, duplicates, otherErrors int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, service.ErrAlreadyRedeemed):
			duplicates++
		default:
			otherErrors++
			t.Logf("Unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes, "The user must activate exactly once")
	assert.Equal(t, attempts-1, duplicates, "Every repeat attempt must report the existing activation")
	assert.Equal(t, 0, otherErrors, "No other errors should occur")

	assert.Equal(t, "10", getBalanceFromDB(t, userID, shopID).String(), "Exactly one credit applied")
}

// TestConcurrentBatchGeneration exercises parallel code batch generation for
// the same shop: all batches must land with unique codes across batches.
func TestConcurrentBatchGeneration(t *testing.T) {
	cleanupTables(t)

	const ownerID = int64(10)
	shopID := createTestShop(t, ownerID, "Parallel Batches Shop")
	expiry := time.Now().AddDate(0, 0, 7).Format("2006-01-02")

	const batches = 5
	const perBatch = 20

	var wg sync.WaitGroup
	statuses := make(chan int, batches)

	for i := 0; i < batches; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := postJSONAs(formatURL("/api/vouchers/codes"), ownerID, "teacher", map[string]any{
				"shop_id":    shopID,
				"count":      perBatch,
				"unit_value": 5,
				"expires_on": expiry,
			})
			if err != nil {
				statuses <- -1
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}

	wg.Wait()
	close(statuses)

	created := 0
	for status := range statuses {
		// 503 is acceptable when two batches mint the same random code and
		// the unique constraint aborts one; anything else besides success
		// is a failure.
		switch status {
		case 201:
			created++
		case 503:
		default:
			t.Errorf("unexpected status %d", status)
		}
	}
	require.Positive(t, created, "at least one batch must land")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var total, distinct int
	err := testPool.QueryRow(ctx,
		`SELECT COUNT(code), COUNT(DISTINCT code) FROM codes c
		 JOIN generation_events e ON e.id = c.event_id WHERE e.shop_id = $1`, shopID).Scan(&total, &distinct)
	require.NoError(t, err)
	assert.Equal(t, created*perBatch, total, "each committed batch lands in full")
	assert.Equal(t, total, distinct, "codes must be globally unique")
}
