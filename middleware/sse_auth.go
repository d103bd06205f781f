package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SSEAuth is RequireSession for EventSource clients, which cannot set headers: the
// session token may also arrive as the `token` query parameter.
//
// Usage:
//
//	parties.Get("/:id/stream", middleware.SSEAuth(auth), streamParty)
func SSEAuth(sessions SessionParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			token = sessionToken(c)
		}
		return authenticate(c, sessions, token)
	}
}
