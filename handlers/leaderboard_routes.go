package handlers

import (
	"gatecrawl-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLeaderboardRoutes(api fiber.Router, boards *services.LeaderboardService) {
	g := api.Group("/leaderboards")

	g.Get("/weekly", func(c *fiber.Ctx) error {
		entries, err := boards.Weekly(c.UserContext(), c.QueryInt("limit"))
		if err != nil {
			return err
		}
		return ok(c, entries)
	})

	g.Get("/boss/:bossId", func(c *fiber.Ctx) error {
		entries, err := boards.Boss(c.UserContext(), c.Params("bossId"), c.QueryInt("limit"))
		if err != nil {
			return err
		}
		return ok(c, entries)
	})

	g.Get("/all-time", func(c *fiber.Ctx) error {
		entries, err := boards.AllTime(c.UserContext(), c.QueryInt("limit"))
		if err != nil {
			return err
		}
		return ok(c, entries)
	})
}
