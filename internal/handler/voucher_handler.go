package handler

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/model"
)

// VoucherServiceInterface defines the interface for issuance business logic.
type VoucherServiceInterface interface {
	GenerateCodes(ctx context.Context, actor model.Actor, req *model.GenerateCodesRequest) (*model.GenerateCodesResponse, error)
	GenerateQR(ctx context.Context, actor model.Actor, req *model.GenerateQRRequest) (*model.GenerateQRResponse, error)
	Distribute(ctx context.Context, actor model.Actor, req *model.DistributeRequest) (*model.DistributeResult, error)
	ListIssuedCodes(ctx context.Context, actor model.Actor, shopID int64) ([]model.CodeEventSummary, error)
	ListIssuedQRs(ctx context.Context, actor model.Actor, shopID int64) ([]model.QREventSummary, error)
	DeleteCode(ctx context.Context, actor model.Actor, code string) error
	DeleteQR(ctx context.Context, actor model.Actor, qrID uuid.UUID) error
	RunExpirySweep(ctx context.Context) (*model.SweepResult, error)
}

// VoucherHandler handles HTTP requests for voucher issuance and management.
type VoucherHandler struct {
	service   VoucherServiceInterface
	validator *validator.Validate
}

// NewVoucherHandler creates a new VoucherHandler with the given service and validator.
func NewVoucherHandler(svc VoucherServiceInterface, v *validator.Validate) *VoucherHandler {
	return &VoucherHandler{service: svc, validator: v}
}

// GenerateCodes handles POST /api/vouchers/codes requests.
func (h *VoucherHandler) GenerateCodes(c *fiber.Ctx) error {
	actor, ok := actorFromRequest(c)
	if !ok {
		return unauthorized(c)
	}

	var req model.GenerateCodesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}
	if !req.UnitValue.IsPositive() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: unit_value must be positive"})
	}

	resp, err := h.service.GenerateCodes(c.Context(), actor, &req)
	if err != nil {
		return respondServiceError(c, err)
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Int64("teacher_id", actor.UserID).
		Int64("shop_id", req.ShopID).
		Str("event_id", resp.EventID.String()).
		Int("count", req.Count).
		Msg("code batch generated")

	return c.Status(fiber.StatusCreated).JSON(resp)
}

// GenerateQR handles POST /api/vouchers/qr requests.
func (h *VoucherHandler) GenerateQR(c *fiber.Ctx) error {
	actor, ok := actorFromRequest(c)
	if !ok {
		return unauthorized(c)
	}

	var req model.GenerateQRRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}
	if !req.UnitValue.IsPositive() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: unit_value must be positive"})
	}

	resp, err := h.service.GenerateQR(c.Context(), actor, &req)
	if err != nil {
		return respondServiceError(c, err)
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Int64("teacher_id", actor.UserID).
		Int64("shop_id", req.ShopID).
		Str("event_id", resp.EventID.String()).
		Int("max_activations", req.MaxActivations).
		Msg("qr voucher generated")

	return c.Status(fiber.StatusCreated).JSON(resp)
}

// Distribute handles POST /api/vouchers/distribute requests.
func (h *VoucherHandler) Distribute(c *fiber.Ctx) error {
	actor, ok := actorFromRequest(c)
	if !ok {
		return unauthorized(c)
	}

	var req model.DistributeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}
	if !req.Amount.IsPositive() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: amount must be positive"})
	}

	resp, err := h.service.Distribute(c.Context(), actor, &req)
	if err != nil {
		return respondServiceError(c, err)
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Int64("teacher_id", actor.UserID).
		Int64("shop_id", req.ShopID).
		Int("recipients", resp.AffectedCount).
		Msg("direct distribution applied")

	return c.JSON(resp)
}

// ListCodes handles GET /api/vouchers/codes?shop_id= requests.
func (h *VoucherHandler) ListCodes(c *fiber.Ctx) error {
	actor, ok := actorFromRequest(c)
	if !ok {
		return unauthorized(c)
	}

	shopID := c.QueryInt("shop_id")
	if shopID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: shop_id is required"})
	}

	summaries, err := h.service.ListIssuedCodes(c.Context(), actor, int64(shopID))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(summaries)
}

// ListQRs handles GET /api/vouchers/qrs?shop_id= requests.
func (h *VoucherHandler) ListQRs(c *fiber.Ctx) error {
	actor, ok := actorFromRequest(c)
	if !ok {
		return unauthorized(c)
	}

	shopID := c.QueryInt("shop_id")
	if shopID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: shop_id is required"})
	}

	summaries, err := h.service.ListIssuedQRs(c.Context(), actor, int64(shopID))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(summaries)
}

// DeleteCode handles DELETE /api/vouchers/codes/:code requests.
func (h *VoucherHandler) DeleteCode(c *fiber.Ctx) error {
	actor, ok := actorFromRequest(c)
	if !ok {
		return unauthorized(c)
	}

	// Codes are stored uppercase; accept lowercase input like redemption does
	code := strings.ToUpper(c.Params("code"))
	if len(code) != 8 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: code is out of range"})
	}

	if err := h.service.DeleteCode(c.Context(), actor, code); err != nil {
		return respondServiceError(c, err)
	}

	log.Info().
		Int64("teacher_id", actor.UserID).
		Msg("code deleted before redemption")
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteQR handles DELETE /api/vouchers/qrs/:id requests.
func (h *VoucherHandler) DeleteQR(c *fiber.Ctx) error {
	actor, ok := actorFromRequest(c)
	if !ok {
		return unauthorized(c)
	}

	qrID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: id is invalid"})
	}

	if err := h.service.DeleteQR(c.Context(), actor, qrID); err != nil {
		return respondServiceError(c, err)
	}

	log.Info().
		Int64("teacher_id", actor.UserID).
		Str("qr_id", qrID.String()).
		Msg("qr deleted")
	return c.SendStatus(fiber.StatusNoContent)
}

// RunSweep handles POST /api/admin/expiry-sweep requests (admin only).
func (h *VoucherHandler) RunSweep(c *fiber.Ctx) error {
	actor, ok := actorFromRequest(c)
	if !ok {
		return unauthorized(c)
	}
	if !actor.IsAdmin() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin role required"})
	}

	result, err := h.service.RunExpirySweep(c.Context())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(result)
}
