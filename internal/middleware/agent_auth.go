package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/greengoods/api/pkg/response"
)

// AgentAuthMiddleware guards the conversational agent channel with a
// static service token. The agent authenticates itself, not the gardener;
// the gardener's address travels in the request body.
func AgentAuthMiddleware(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return response.Unauthorized(c, "Agent channel not configured")
		}

		authHeader := c.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
			return response.Unauthorized(c, "Invalid agent token")
		}

		return c.Next()
	}
}
