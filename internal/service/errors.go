package service

import "errors"

var (
	// ErrInvalidRequest is returned when request data is invalid or incomplete
	ErrInvalidRequest = errors.New("invalid request")

	// ErrForbidden is returned when the acting teacher is neither the shop's
	// owner, a listed partner, nor a platform admin
	ErrForbidden = errors.New("insufficient permission for shop")

	// ErrShopNotFound is returned when the target shop does not exist
	ErrShopNotFound = errors.New("shop not found")

	// ErrCodeNotFound is returned when a code does not exist or was already
	// redeemed; the two states are deliberately indistinguishable
	ErrCodeNotFound = errors.New("code invalid or already used")

	// ErrQRNotFound is returned when no active QR matches the token
	ErrQRNotFound = errors.New("qr invalid or inactive")

	// ErrExpired is returned when a voucher's event expiry has passed
	ErrExpired = errors.New("voucher expired")

	// ErrCapacityReached is returned when a QR has no activations left
	ErrCapacityReached = errors.New("qr activation capacity reached")

	// ErrAlreadyRedeemed is returned when a user attempts to activate a QR
	// they already activated
	ErrAlreadyRedeemed = errors.New("qr already redeemed by user")

	// ErrGenerationExhausted is returned when the code uniqueness retry
	// budget runs out during bulk generation; the whole batch rolls back
	ErrGenerationExhausted = errors.New("code generation retry budget exhausted")

	// ErrTransient is returned for lock timeouts, deadlocks and
	// serialization failures; nothing committed, the caller may retry
	ErrTransient = errors.New("transient store conflict, retry")
)
