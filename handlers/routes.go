package handlers

import (
	"context"
	"math/big"
	"strings"

	"gatecrawl-backend/chain"
	"gatecrawl-backend/config"
	"gatecrawl-backend/middleware"
	"gatecrawl-backend/services"
	"gatecrawl-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ChainReader exposes read-only chain state to the status endpoints.
type ChainReader interface {
	Status(ctx context.Context) (*chain.Status, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	Network(ctx context.Context) (*chain.NetworkInfo, error)
}

type Deps struct {
	Config       *config.Config
	Log          *zap.Logger
	Auth         *services.AuthService
	Gates        *services.GateService
	Parties      *services.PartyService
	Runs         *services.RunService
	Profiles     *services.ProfileService
	Inventory    *services.InventoryService
	Leaderboards *services.LeaderboardService
	Media        *services.MediaService
	Chain        ChainReader
}

// NewApp builds the fiber app with the global middleware stack and every route mounted.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "gatecrawl-backend",
		BodyLimit:    services.MaxUploadBytes + 1<<20, // multipart overhead
		ErrorHandler: ErrorHandler(d.Log),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	origins := joinOrigins(d.Config.AllowedOrigins)
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Idempotency-Key, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID, Idempotent-Replayed",
		AllowCredentials: origins != "*", // fiber rejects credentials with a wildcard origin
		MaxAge:           86400,
	}))
	app.Use(middleware.RequestLogger(d.Log))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return ok(c, fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", middleware.MetricsAuth(d.Config.MetricsToken, d.Log), adaptor.HTTPHandler(promhttp.Handler()))

	app.Static("/uploads", "./"+utils.UploadDir)

	api := app.Group("/api/v1")
	requireSession := middleware.RequireSession(d.Auth)

	SetupAuthRoutes(api, d.Auth, d.Profiles, d.Config)
	SetupGateRoutes(api, d.Gates)
	SetupPartyRoutes(api, d.Parties, requireSession, middleware.SSEAuth(d.Auth), d.Log)
	SetupRunRoutes(api, d.Runs, requireSession)
	SetupInventoryRoutes(api, d.Inventory, requireSession)
	SetupLeaderboardRoutes(api, d.Leaderboards)
	SetupProfileRoutes(api, d.Profiles, requireSession)
	SetupMediaRoutes(api, d.Media, requireSession)
	SetupChainRoutes(api, d.Chain)
	SetupDevRoutes(api, d.Runs, d.Inventory, requireSession, d.Config.IsProduction())

	return app
}

func joinOrigins(origins []string) string {
	cleaned := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			cleaned = append(cleaned, o)
		}
	}
	return strings.Join(cleaned, ",")
}
