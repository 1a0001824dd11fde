package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventKind distinguishes the three issuance flavours recorded in
// generation_events.
type EventKind string

const (
	KindCode   EventKind = "code"
	KindQR     EventKind = "qr"
	KindDirect EventKind = "direct"
)

// GenerationEvent records one issuance action (a code batch, a QR, or a
// direct distribution) together with its value and expiry.
type GenerationEvent struct {
	ID         uuid.UUID       `json:"id"`
	ShopID     int64           `json:"shop_id"`
	TeacherID  int64           `json:"teacher_id"`
	Kind       EventKind       `json:"kind"`
	TotalUnits int             `json:"total_units"`
	UnitValue  decimal.Decimal `json:"unit_value"`
	ExpiresOn  time.Time       `json:"expires_on"` // date precision, midnight local
	CreatedAt  time.Time       `json:"created_at"`
}

// Code is a single-use voucher. Row presence means redeemable; redemption
// deletes the row, so "used" and "never existed" are the same observable state.
type Code struct {
	Code    string    `json:"code"`
	EventID uuid.UUID `json:"event_id"`
}

// QR is a capacity-limited voucher identified by an opaque token.
type QR struct {
	ID              uuid.UUID `json:"id"`
	EventID         uuid.UUID `json:"event_id"`
	Token           string    `json:"-"` // never exposed in listings
	MaxActivations  int       `json:"max_activations"`
	ActivationCount int       `json:"activation_count"`
	IsActive        bool      `json:"is_active"`
}

// Shop is the read-only catalog extract the engine needs: ownership for the
// authorization gate, display metadata for redemption responses and artifacts.
type Shop struct {
	ID          int64
	OwnerID     int64
	Name        string
	Currency    string
	AccentColor string
	PartnerIDs  []int64
}

// Actor is the authenticated caller as reported by the gateway.
type Actor struct {
	UserID int64
	Role   string
}

const (
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// IsAdmin reports whether the actor holds the platform admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// GenerateCodesRequest is the DTO for creating a batch of one-time codes.
type GenerateCodesRequest struct {
	ShopID    int64           `json:"shop_id" validate:"required,gt=0"`
	Count     int             `json:"count" validate:"required,gte=1,lte=100"`
	UnitValue decimal.Decimal `json:"unit_value" validate:"-"`
	ExpiresOn string          `json:"expires_on" validate:"required,futuredate"`
}

// GenerateQRRequest is the DTO for creating a capacity-limited QR voucher.
type GenerateQRRequest struct {
	ShopID         int64           `json:"shop_id" validate:"required,gt=0"`
	MaxActivations int             `json:"max_activations" validate:"required,gte=1,lte=10000"`
	UnitValue      decimal.Decimal `json:"unit_value" validate:"-"`
	ExpiresOn      string          `json:"expires_on" validate:"required,futuredate"`
}

// DistributeRequest is the DTO for crediting an explicit recipient list.
type DistributeRequest struct {
	ShopID  int64           `json:"shop_id" validate:"required,gt=0"`
	UserIDs []int64         `json:"user_ids" validate:"required,min=1,dive,gt=0"`
	Amount  decimal.Decimal `json:"amount" validate:"-"`
}

// RedeemCodeRequest is the DTO for redeeming a one-time code.
type RedeemCodeRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Code   string `json:"code" validate:"required,len=8"`
}

// RedeemQRRequest is the DTO for activating a QR voucher.
type RedeemQRRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Token  string `json:"token" validate:"required,notblank"`
}

// Artifact is the rendered, downloadable form of a generation result.
// It carries bytes only; nothing about it is persisted.
type Artifact struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"` // base64 in JSON
}

// GenerateCodesResponse returns the batch plus its printable artifact.
// The plaintext code list exists only in this response.
type GenerateCodesResponse struct {
	EventID  uuid.UUID `json:"event_id"`
	Codes    []string  `json:"codes"`
	Artifact Artifact  `json:"artifact"`
}

// GenerateQRResponse returns the QR voucher plus its scannable image.
type GenerateQRResponse struct {
	EventID  uuid.UUID `json:"event_id"`
	QRID     uuid.UUID `json:"qr_id"`
	Token    string    `json:"token"`
	Artifact Artifact  `json:"artifact"`
}

// RedeemResult is returned to the redeeming user for client display.
// Remaining is set only for QR redemptions: max activations minus the count
// after this activation. It stays nil for code redemptions.
type RedeemResult struct {
	ValueCredited decimal.Decimal `json:"value_credited"`
	ShopName      string          `json:"shop_name"`
	Currency      string          `json:"currency"`
	Remaining     *int            `json:"remaining,omitempty"`
}

// DistributeResult reports how many balances a direct distribution touched.
type DistributeResult struct {
	AffectedCount int `json:"affected_count"`
}

// CodeEventSummary is one row of the issued-codes listing: the event plus how
// many of its codes are still unredeemed.
type CodeEventSummary struct {
	Event          GenerationEvent `json:"event"`
	RemainingCodes int             `json:"remaining_codes"`
}

// QREventSummary is one row of the issued-QRs listing.
type QREventSummary struct {
	Event GenerationEvent `json:"event"`
	QR    QR              `json:"qr"`
}

// LockedCode is the projection returned by the FOR UPDATE lookup during code
// redemption: the code row joined with the event fields redemption needs.
type LockedCode struct {
	Code      string
	EventID   uuid.UUID
	ShopID    int64
	UnitValue decimal.Decimal
	ExpiresOn time.Time
}

// LockedQR is the projection returned by the FOR UPDATE lookup during QR
// activation.
type LockedQR struct {
	ID              uuid.UUID
	EventID         uuid.UUID
	ShopID          int64
	UnitValue       decimal.Decimal
	ExpiresOn       time.Time
	MaxActivations  int
	ActivationCount int
}

// SweepResult reports what one expiry sweep removed.
type SweepResult struct {
	DeletedEvents int `json:"deleted_events"`
	DeletedCodes  int `json:"deleted_codes"`
	DeletedQRs    int `json:"deleted_qrs"`
}
