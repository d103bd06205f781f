package middleware

import (
	"crypto/subtle"
	"strings"

	"gatecrawl-backend/apperrors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// MetricsAuth guards the metrics endpoint with a static Bearer token. An empty token
// leaves the endpoint open.
func MetricsAuth(expected string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if expected == "" {
			return c.Next()
		}

		authHeader := c.Get(fiber.HeaderAuthorization)
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			log.Warn("🚫 [METRICS_AUTH] rejected scrape", zap.String("ip", c.IP()))
			return apperrors.New(apperrors.CodeUnauthorized, "invalid metrics token")
		}
		return c.Next()
	}
}
