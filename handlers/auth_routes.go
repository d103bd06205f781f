package handlers

import (
	"time"

	"gatecrawl-backend/apperrors"
	"gatecrawl-backend/config"
	"gatecrawl-backend/middleware"
	"gatecrawl-backend/models"
	"gatecrawl-backend/services"

	"github.com/gofiber/fiber/v2"
)

type nonceRequest struct {
	Wallet string `json:"wallet" validate:"required"`
}

type verifyRequest struct {
	Wallet    string `json:"wallet" validate:"required"`
	Nonce     string `json:"nonce" validate:"required"`
	Signature string `json:"signature" validate:"required,startswith=0x"`
}

type sessionResponse struct {
	Wallet    string    `json:"wallet"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type meResponse struct {
	Wallet  string          `json:"wallet"`
	Profile *models.Profile `json:"profile"`
}

func SetupAuthRoutes(api fiber.Router, auth *services.AuthService, profiles *services.ProfileService, cfg *config.Config) {
	g := api.Group("/auth")

	g.Post("/nonce", func(c *fiber.Ctx) error {
		var req nonceRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		wallet, err := services.NormalizeWallet(req.Wallet)
		if err != nil {
			return err
		}
		challenge, err := auth.IssueNonce(c.UserContext(), wallet)
		if err != nil {
			return err
		}
		return ok(c, challenge)
	})

	g.Post("/verify", func(c *fiber.Ctx) error {
		var req verifyRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		wallet, err := services.NormalizeWallet(req.Wallet)
		if err != nil {
			return err
		}
		session, err := auth.Verify(c.UserContext(), wallet, req.Nonce, req.Signature)
		if err != nil {
			return err
		}

		c.Cookie(&fiber.Cookie{
			Name:     middleware.SessionCookie,
			Value:    session.Token,
			Path:     "/",
			Expires:  session.ExpiresAt,
			HTTPOnly: true,
			Secure:   cfg.IsProduction(),
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		// the token is also returned for EventSource clients (?token=)
		return ok(c, sessionResponse{Wallet: session.Wallet, Token: session.Token, ExpiresAt: session.ExpiresAt})
	})

	g.Post("/logout", func(c *fiber.Ctx) error {
		c.Cookie(&fiber.Cookie{
			Name:     middleware.SessionCookie,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			HTTPOnly: true,
			Secure:   cfg.IsProduction(),
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		return ok(c, fiber.Map{"loggedOut": true})
	})

	g.Get("/me", middleware.RequireSession(auth), func(c *fiber.Ctx) error {
		wallet := middleware.Wallet(c)
		prof, err := profiles.Get(c.UserContext(), wallet)
		if err != nil && !apperrors.Is(err, apperrors.CodeProfileNotFound) {
			return err
		}
		return ok(c, meResponse{Wallet: wallet, Profile: prof})
	})
}
