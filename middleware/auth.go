package middleware

import (
	"strings"

	"gatecrawl-backend/apperrors"

	"github.com/gofiber/fiber/v2"
)

// SessionCookie carries the signed session token.
const SessionCookie = "session"

const walletLocal = "wallet"

// SessionParser turns a session token into the wallet it was issued to.
type SessionParser interface {
	ParseSession(token string) (string, error)
}

// RequireSession authenticates the caller from the session cookie or a Bearer
// Authorization header and stores the wallet in the request context.
func RequireSession(sessions SessionParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return authenticate(c, sessions, sessionToken(c))
	}
}

func authenticate(c *fiber.Ctx, sessions SessionParser, token string) error {
	if token == "" {
		return apperrors.New(apperrors.CodeUnauthorized, "authentication required")
	}
	wallet, err := sessions.ParseSession(token)
	if err != nil {
		return err
	}
	c.Locals(walletLocal, wallet)
	return c.Next()
}

func sessionToken(c *fiber.Ctx) string {
	if tok := strings.TrimSpace(c.Cookies(SessionCookie)); tok != "" {
		return tok
	}
	if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// Wallet returns the authenticated wallet, or "" on public routes.
func Wallet(c *fiber.Ctx) string {
	w, _ := c.Locals(walletLocal).(string)
	return w
}
