package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/greengoods/api/pkg/response"
)

// GatewayAuthMiddleware reads user identity from X-User-* headers
// set by Traefik ForwardAuth and populates Fiber context locals.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		address := c.Get("X-User-Address")
		if address == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		c.Locals("userAddress", strings.ToLower(address))
		c.Locals("authMode", normalizeAuthMode(c.Get("X-Auth-Mode")))

		return c.Next()
	}
}
