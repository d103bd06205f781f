package handlers

import (
	"gatecrawl-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGateRoutes(api fiber.Router, gates *services.GateService) {
	api.Get("/gates", func(c *fiber.Ctx) error {
		list, err := gates.List(c.UserContext())
		if err != nil {
			return err
		}
		return ok(c, list)
	})

	api.Get("/gates/:id", func(c *fiber.Ctx) error {
		gate, err := gates.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, gate)
	})
}
