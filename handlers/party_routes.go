package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gatecrawl-backend/apperrors"
	"gatecrawl-backend/middleware"
	"gatecrawl-backend/models"
	"gatecrawl-backend/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const sseKeepalive = 15 * time.Second

type createPartyRequest struct {
	GateID string `json:"gateId" validate:"required"`
}

type readyRequest struct {
	IsReady *bool `json:"isReady" validate:"required"`
}

type lockRequest struct {
	IsLocked         *bool     `json:"isLocked" validate:"required"`
	EquippedRelicIDs *[]string `json:"equippedRelicIds" validate:"omitempty,max=3,dive,required"`
}

type startResponse struct {
	Party *models.Party `json:"party"`
	RunID string        `json:"runId"`
}

func SetupPartyRoutes(api fiber.Router, parties *services.PartyService, requireSession, sseAuth fiber.Handler, log *zap.Logger) {
	// stream goes first: EventSource clients authenticate with ?token=
	api.Get("/parties/:id/stream", sseAuth, streamParty(parties, log))

	g := api.Group("/parties", requireSession)

	g.Post("/", func(c *fiber.Ctx) error {
		var req createPartyRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		party, err := parties.Create(c.UserContext(), middleware.Wallet(c), req.GateID)
		if err != nil {
			return err
		}
		return created(c, party)
	})

	g.Get("/:id", func(c *fiber.Ctx) error {
		party, err := parties.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, party)
	})

	g.Post("/:id/join", func(c *fiber.Ctx) error {
		party, err := parties.Join(c.UserContext(), middleware.Wallet(c), c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, party)
	})

	g.Post("/:id/leave", func(c *fiber.Ctx) error {
		party, err := parties.Leave(c.UserContext(), middleware.Wallet(c), c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, party)
	})

	g.Post("/:id/ready", func(c *fiber.Ctx) error {
		var req readyRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		party, err := parties.UpdateMemberState(c.UserContext(), middleware.Wallet(c), c.Params("id"),
			services.MemberPatch{IsReady: req.IsReady})
		if err != nil {
			return err
		}
		return ok(c, party)
	})

	g.Post("/:id/lock", func(c *fiber.Ctx) error {
		var req lockRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		party, err := parties.UpdateMemberState(c.UserContext(), middleware.Wallet(c), c.Params("id"),
			services.MemberPatch{IsLocked: req.IsLocked, EquippedRelicIDs: req.EquippedRelicIDs})
		if err != nil {
			return err
		}
		return ok(c, party)
	})

	g.Post("/:id/start", func(c *fiber.Ctx) error {
		party, run, err := parties.Start(c.UserContext(), middleware.Wallet(c), c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, startResponse{Party: party, RunID: run.ID})
	})

	g.Get("/:id/start-payload", func(c *fiber.Ctx) error {
		payload, err := parties.StartPayload(c.UserContext(), middleware.Wallet(c), c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, payload)
	})
}

func writeEvent(w *bufio.Writer, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	return w.Flush()
}

// streamParty pushes a snapshot followed by live party events as server-sent events.
func streamParty(parties *services.PartyService, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		wallet := middleware.Wallet(c)
		partyID := c.Params("id")

		party, err := parties.Get(c.UserContext(), partyID)
		if err != nil {
			return err
		}
		if party.Member(wallet) == nil {
			return apperrors.New(apperrors.CodeNotAMember, "not a member of this party")
		}
		if party.State == models.PartyClosed {
			return apperrors.New(apperrors.CodePartyClosed, "party is closed")
		}

		// the fiber context is recycled once the handler returns
		ctx, cancel := context.WithCancel(context.Background())
		events, unsubscribe := parties.Subscribe(ctx, partyID)

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no") // nginx

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer cancel()
			defer unsubscribe()

			ticker := time.NewTicker(sseKeepalive)
			defer ticker.Stop()

			if err := writeEvent(w, "snapshot", party); err != nil {
				return
			}
			log.Debug("[SSE] party stream opened", zap.String("party", partyID), zap.String("wallet", wallet))

			for {
				select {
				case ev, open := <-events:
					if !open {
						return
					}
					if err := writeEvent(w, string(ev.Type), ev); err != nil {
						log.Debug("[SSE] client gone", zap.String("party", partyID), zap.Error(err))
						return
					}
					if ev.Type == models.EventClosed {
						return
					}
				case <-ticker.C:
					w.WriteString(":\n\n")
					if err := w.Flush(); err != nil {
						return
					}
				}
			}
		})
		return nil
	}
}
