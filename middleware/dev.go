package middleware

import (
	"gatecrawl-backend/apperrors"

	"github.com/gofiber/fiber/v2"
)

// DevWallet is the only wallet allowed to call the dev simulation endpoints.
const DevWallet = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"

// DevOnly rejects every request in production and any caller other than DevWallet.
// It must run after RequireSession.
func DevOnly(production bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if production {
			return apperrors.New(apperrors.CodeForbidden, "dev endpoints are disabled")
		}
		if Wallet(c) != DevWallet {
			return apperrors.New(apperrors.CodeForbidden, "dev endpoints are restricted to the dev wallet")
		}
		return c.Next()
	}
}
