package handlers

import (
	"gatecrawl-backend/middleware"
	"gatecrawl-backend/services"

	"github.com/gofiber/fiber/v2"
)

type createProfileRequest struct {
	DisplayName string `json:"displayName" validate:"required"`
	AvatarID    int    `json:"avatarId" validate:"gte=0"`
}

func SetupProfileRoutes(api fiber.Router, profiles *services.ProfileService, requireSession fiber.Handler) {
	g := api.Group("/profiles")

	g.Post("/", requireSession, func(c *fiber.Ctx) error {
		var req createProfileRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		prof, err := profiles.Create(c.UserContext(), middleware.Wallet(c), req.DisplayName, req.AvatarID)
		if err != nil {
			return err
		}
		return created(c, prof)
	})

	g.Get("/me", requireSession, func(c *fiber.Ctx) error {
		prof, err := profiles.Get(c.UserContext(), middleware.Wallet(c))
		if err != nil {
			return err
		}
		return ok(c, prof)
	})

	g.Patch("/me", requireSession, func(c *fiber.Ctx) error {
		var patch services.ProfilePatch
		if err := parseBody(c, &patch); err != nil {
			return err
		}
		prof, err := profiles.Update(c.UserContext(), middleware.Wallet(c), patch)
		if err != nil {
			return err
		}
		return ok(c, prof)
	})

	g.Delete("/me", requireSession, func(c *fiber.Ctx) error {
		if err := profiles.Delete(c.UserContext(), middleware.Wallet(c)); err != nil {
			return err
		}
		return ok(c, fiber.Map{"deleted": true})
	})

	g.Get("/search", func(c *fiber.Ctx) error {
		found, err := profiles.Search(c.UserContext(), c.Query("q"), c.QueryInt("limit"))
		if err != nil {
			return err
		}
		return ok(c, found)
	})

	g.Get("/:wallet", func(c *fiber.Ctx) error {
		wallet, err := services.NormalizeWallet(c.Params("wallet"))
		if err != nil {
			return err
		}
		prof, err := profiles.Get(c.UserContext(), wallet)
		if err != nil {
			return err
		}
		return ok(c, prof)
	})
}
