package handlers

import (
	"encoding/json"
	"math/rand/v2"

	"gatecrawl-backend/middleware"
	"gatecrawl-backend/models"
	"gatecrawl-backend/services"

	"github.com/gofiber/fiber/v2"
)

type simulateRequest struct {
	GateID string `json:"gateId" validate:"required"`
}

type grantRelicRequest struct {
	RelicType string `json:"relicType" validate:"omitempty,oneof=blade aegis sigil totem crown"`
}

type simulateResponse struct {
	Run    *models.Run     `json:"run"`
	Result json.RawMessage `json:"result"`
}

func SetupDevRoutes(api fiber.Router, runs *services.RunService, inventory *services.InventoryService, requireSession fiber.Handler, production bool) {
	g := api.Group("/dev", requireSession, middleware.DevOnly(production))

	g.Post("/simulate-run", func(c *fiber.Ctx) error {
		var req simulateRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		run, resp, err := runs.SimulateRun(c.UserContext(), middleware.Wallet(c), req.GateID)
		if err != nil {
			return err
		}
		if run, err = runs.GetResults(c.UserContext(), run.ID); err != nil {
			return err
		}
		return ok(c, simulateResponse{Run: run, Result: resp.Payload})
	})

	g.Post("/grant-relic", func(c *fiber.Ctx) error {
		var req grantRelicRequest
		if len(c.Body()) > 0 {
			if err := parseBody(c, &req); err != nil {
				return err
			}
		}
		rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		relic, err := inventory.GrantRandom(c.UserContext(), middleware.Wallet(c), req.RelicType, rng)
		if err != nil {
			return err
		}
		return created(c, relic)
	})
}
