package handlers

import (
	"gatecrawl-backend/middleware"
	"gatecrawl-backend/services"

	"github.com/gofiber/fiber/v2"
)

type equipRequest struct {
	TokenIDs []string `json:"tokenIds" validate:"max=3,dive,required"`
}

func SetupInventoryRoutes(api fiber.Router, inventory *services.InventoryService, requireSession fiber.Handler) {
	g := api.Group("/inventory", requireSession)

	g.Get("/", func(c *fiber.Ctx) error {
		items, err := inventory.List(c.UserContext(), middleware.Wallet(c))
		if err != nil {
			return err
		}
		return ok(c, items)
	})

	g.Post("/sync", func(c *fiber.Ctx) error {
		res, err := inventory.Sync(c.UserContext(), middleware.Wallet(c))
		if err != nil {
			return err
		}
		return ok(c, res)
	})

	g.Post("/equip", func(c *fiber.Ctx) error {
		var req equipRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		items, err := inventory.Equip(c.UserContext(), middleware.Wallet(c), req.TokenIDs)
		if err != nil {
			return err
		}
		return ok(c, items)
	})
}
