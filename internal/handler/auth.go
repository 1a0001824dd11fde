package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/model"
)

// Gateway identity headers. The platform's auth layer terminates sessions
// upstream and forwards the verified identity; the engine trusts these
// headers the same way it trusts the user_id in redemption bodies.
const (
	headerUserID = "X-User-ID"
	headerRole   = "X-User-Role"
)

// actorFromRequest decodes the acting teacher/admin from gateway headers.
// Returns false when the identity is missing or malformed.
func actorFromRequest(c *fiber.Ctx) (model.Actor, bool) {
	userID, err := strconv.ParseInt(c.Get(headerUserID), 10, 64)
	if err != nil || userID <= 0 {
		return model.Actor{}, false
	}
	role := c.Get(headerRole)
	if role != model.RoleTeacher && role != model.RoleAdmin {
		return model.Actor{}, false
	}
	return model.Actor{UserID: userID, Role: role}, true
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing or invalid identity"})
}
