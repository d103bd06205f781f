package handlers

import (
	"math/big"

	"gatecrawl-backend/apperrors"

	"github.com/ethereum/go-ethereum/params"
	"github.com/gofiber/fiber/v2"
)

type gasPriceResponse struct {
	Wei  string `json:"wei"`
	Gwei string `json:"gwei"`
}

func chainErr(err error) error {
	return apperrors.Wrap(err, apperrors.CodeChain, "chain unavailable")
}

func SetupChainRoutes(api fiber.Router, reader ChainReader) {
	g := api.Group("/chain")

	g.Get("/status", func(c *fiber.Ctx) error {
		st, err := reader.Status(c.UserContext())
		if err != nil {
			return chainErr(err)
		}
		return ok(c, st)
	})

	g.Get("/gas-price", func(c *fiber.Ctx) error {
		wei, err := reader.GasPrice(c.UserContext())
		if err != nil {
			return chainErr(err)
		}
		gwei := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.GWei))
		return ok(c, gasPriceResponse{Wei: wei.String(), Gwei: gwei.Text('f', 3)})
	})

	g.Get("/network", func(c *fiber.Ctx) error {
		info, err := reader.Network(c.UserContext())
		if err != nil {
			return chainErr(err)
		}
		return ok(c, info)
	})
}
