package middleware

import (
	"errors"
	"time"

	"gatecrawl-backend/apperrors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request after the handler chain has run.
func RequestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			// the error handler has not written the response yet
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = apperrors.From(err).Code.HTTPStatus()
			}
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
		}
		if w := Wallet(c); w != "" {
			fields = append(fields, zap.String("wallet", w))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		log.Info("[HTTP] request", fields...)
		return err
	}
}
