package handler

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/model"
)

// RedeemServiceInterface defines the interface for redemption business logic.
type RedeemServiceInterface interface {
	RedeemCode(ctx context.Context, userID int64, code string) (*model.RedeemResult, error)
	RedeemQR(ctx context.Context, userID int64, token string) (*model.RedeemResult, error)
}

// RedeemHandler handles HTTP requests for voucher redemption.
// Redemption is self-service: no authorization gate, the redeeming user acts
// for themselves.
type RedeemHandler struct {
	service   RedeemServiceInterface
	validator *validator.Validate
}

// NewRedeemHandler creates a new RedeemHandler with the given service and validator.
func NewRedeemHandler(svc RedeemServiceInterface, v *validator.Validate) *RedeemHandler {
	return &RedeemHandler{service: svc, validator: v}
}

// RedeemCode handles POST /api/redeem/code requests.
func (h *RedeemHandler) RedeemCode(c *fiber.Ctx) error {
	var req model.RedeemCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	// Codes are stored uppercase; accept whatever case the user typed.
	code := strings.ToUpper(req.Code)

	result, err := h.service.RedeemCode(c.Context(), req.UserID, code)
	if err != nil {
		return respondServiceError(c, err)
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Int64("user_id", req.UserID).
		Str("shop", result.ShopName).
		Str("value", result.ValueCredited.String()).
		Msg("code redeemed")

	return c.JSON(result)
}

// RedeemQR handles POST /api/redeem/qr requests.
func (h *RedeemHandler) RedeemQR(c *fiber.Ctx) error {
	var req model.RedeemQRRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	result, err := h.service.RedeemQR(c.Context(), req.UserID, req.Token)
	if err != nil {
		return respondServiceError(c, err)
	}

	remaining := -1
	if result.Remaining != nil {
		remaining = *result.Remaining
	}
	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Int64("user_id", req.UserID).
		Str("shop", result.ShopName).
		Str("value", result.ValueCredited.String()).
		Int("remaining", remaining).
		Msg("qr activated")

	return c.JSON(result)
}
