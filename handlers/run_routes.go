package handlers

import (
	"strings"

	"gatecrawl-backend/apperrors"
	"gatecrawl-backend/middleware"
	"gatecrawl-backend/services"

	"github.com/gofiber/fiber/v2"
)

const idempotencyHeader = "Idempotency-Key"

func SetupRunRoutes(api fiber.Router, runs *services.RunService, requireSession fiber.Handler) {
	g := api.Group("/runs", requireSession)

	g.Post("/:id/finish", func(c *fiber.Ctx) error {
		var req services.FinishRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		runID := c.Params("id")

		run, err := runs.GetResults(c.UserContext(), runID)
		if err != nil {
			return err
		}
		if !run.HasParticipant(middleware.Wallet(c)) {
			return apperrors.New(apperrors.CodeNotAMember, "not a participant of this run")
		}

		key := strings.TrimSpace(c.Get(idempotencyHeader))
		resp, err := runs.FinishRun(c.UserContext(), runID, req, key)
		if err != nil {
			return err
		}
		if resp.Replayed {
			c.Set("Idempotent-Replayed", "true")
		}
		return okRaw(c, resp.Payload)
	})

	g.Get("/:id/results", func(c *fiber.Ctx) error {
		run, err := runs.GetResults(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, run)
	})
}
