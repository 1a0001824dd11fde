package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/service"
)

// fieldNames maps struct field names to their JSON wire names for validation
// error messages.
var fieldNames = map[string]string{
	"ShopID":         "shop_id",
	"Count":          "count",
	"UnitValue":      "unit_value",
	"ExpiresOn":      "expires_on",
	"MaxActivations": "max_activations",
	"UserID":         "user_id",
	"UserIDs":        "user_ids",
	"Amount":         "amount",
	"Code":           "code",
	"Token":          "token",
}

// formatValidationError converts validator errors to short, specific
// user-facing messages.
func formatValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fieldNames[fe.Field()]
			if field == "" {
				field = fe.Field()
			}

			switch fe.Tag() {
			case "required":
				return "invalid request: " + field + " is required"
			case "notblank":
				return "invalid request: " + field + " cannot be blank"
			case "futuredate":
				return "invalid request: " + field + " must be a future date (YYYY-MM-DD)"
			case "gte", "lte", "gt", "min", "len":
				return "invalid request: " + field + " is out of range"
			default:
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}

// respondServiceError maps engine sentinels onto HTTP statuses. Unknown
// errors are logged with detail and surfaced as a generic failure.
func respondServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	case errors.Is(err, service.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "insufficient permission for shop"})
	case errors.Is(err, service.ErrShopNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "shop not found"})
	case errors.Is(err, service.ErrCodeNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "code invalid or already used"})
	case errors.Is(err, service.ErrQRNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "qr invalid or inactive"})
	case errors.Is(err, service.ErrExpired):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "voucher expired"})
	case errors.Is(err, service.ErrCapacityReached):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "qr activation capacity reached"})
	case errors.Is(err, service.ErrAlreadyRedeemed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "qr already redeemed by user"})
	case errors.Is(err, service.ErrTransient):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "temporary conflict, please retry"})
	}

	log.Error().
		Err(err).
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Msg("voucher operation failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}
