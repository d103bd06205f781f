package handlers

import (
	"encoding/json"
	"errors"

	"gatecrawl-backend/apperrors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type envelope struct {
	OK    bool             `json:"ok"`
	Data  any              `json:"data,omitempty"`
	Error *apperrors.Error `json:"error,omitempty"`
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(envelope{OK: true, Data: data})
}

func created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(envelope{OK: true, Data: data})
}

// okRaw wraps already-encoded JSON in the success envelope without re-encoding it.
func okRaw(c *fiber.Ctx, payload json.RawMessage) error {
	body := make([]byte, 0, len(payload)+20)
	body = append(body, `{"ok":true,"data":`...)
	body = append(body, payload...)
	body = append(body, '}')
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// fiberCode maps framework errors (unknown routes, oversized bodies) onto the API codes.
func fiberCode(status int) apperrors.Code {
	switch {
	case status == fiber.StatusRequestEntityTooLarge:
		return apperrors.CodePayloadTooLarge
	case status == fiber.StatusUnauthorized:
		return apperrors.CodeUnauthorized
	case status == fiber.StatusForbidden:
		return apperrors.CodeForbidden
	case status >= 400 && status < 500:
		return apperrors.CodeValidation
	default:
		return apperrors.CodeInternal
	}
}

// ErrorHandler renders every error returned by a handler as the error envelope.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(envelope{
				Error: apperrors.New(fiberCode(fe.Code), fe.Message),
			})
		}

		appErr := apperrors.From(err)
		status := appErr.Code.HTTPStatus()
		if status >= fiber.StatusInternalServerError {
			log.Error("❌ [HTTP] request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("code", string(appErr.Code)),
				zap.Error(err),
			)
		}
		return c.Status(status).JSON(envelope{Error: appErr})
	}
}
