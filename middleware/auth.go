// middleware/auth.go
package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	localUserID    = "user_id"
	localUserRoles = "user_roles"

	// RoleAdmin may schedule and cancel matches and submit for any slot.
	RoleAdmin = "admin"
)

// UserContextMiddleware extracts the user identity and roles the gateway sets.
// Requests without X-User-ID are rejected.
func UserContextMiddleware(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			logger.Warn("user context missing", "path", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals(localUserID, userID)
		c.Locals(localUserRoles, roles)
		return c.Next()
	}
}

// RequireAdmin rejects callers without the admin role. It must run after
// UserContextMiddleware.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IsAdmin(c) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "admin role required",
			})
		}
		return c.Next()
	}
}

// UserID returns the caller set by UserContextMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

func Roles(c *fiber.Ctx) []string {
	roles, _ := c.Locals(localUserRoles).([]string)
	return roles
}

func IsAdmin(c *fiber.Ctx) bool {
	for _, r := range Roles(c) {
		if strings.EqualFold(r, RoleAdmin) {
			return true
		}
	}
	return false
}
