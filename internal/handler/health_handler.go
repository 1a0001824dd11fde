package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Pinger is an interface for health check ping operations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SweepReporter exposes when the expiry reaper last completed a sweep.
type SweepReporter interface {
	LastSweep() (time.Time, bool)
}

// HealthHandler reports liveness of the voucher store and the expiry reaper.
type HealthHandler struct {
	pool   Pinger
	reaper SweepReporter
}

// NewHealthHandler creates a new HealthHandler. reaper may be nil when the
// background sweep is disabled.
func NewHealthHandler(pool Pinger, reaper SweepReporter) *HealthHandler {
	return &HealthHandler{pool: pool, reaper: reaper}
}

// Check performs a health check. Only store reachability gates the status;
// the reaper block is informational.
// Returns 200 OK with {"status": "healthy", "reaper": {...}} when the store
// is reachable, 503 Service Unavailable otherwise.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	if err := h.pool.Ping(c.Context()); err != nil {
		log.Error().Err(err).Msg("health check failed: database unreachable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  "database connection failed",
		})
	}
	return c.JSON(fiber.Map{
		"status": "healthy",
		"reaper": h.reaperStatus(),
	})
}

func (h *HealthHandler) reaperStatus() fiber.Map {
	if h.reaper == nil {
		return fiber.Map{"state": "disabled"}
	}
	at, ok := h.reaper.LastSweep()
	if !ok {
		return fiber.Map{"state": "running"}
	}
	return fiber.Map{
		"state":      "running",
		"last_sweep": at.UTC().Format(time.RFC3339),
	}
}
