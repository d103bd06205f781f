package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gatecrawl-backend/chain"
	"gatecrawl-backend/config"
	"gatecrawl-backend/handlers"
	"gatecrawl-backend/logger"
	"gatecrawl-backend/models"
	"gatecrawl-backend/services"
	"gatecrawl-backend/utils"
	"gatecrawl-backend/workers"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	root := &cobra.Command{
		Use:          "gatecrawl",
		Short:        "Gatecrawl game backend",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.AddCommand(
		&cobra.Command{Use: "serve", Short: "Run the HTTP API (default)", RunE: runServe},
		&cobra.Command{Use: "migrate", Short: "Apply database migrations and exit", RunE: runMigrate},
		&cobra.Command{Use: "seed-gates", Short: "Load the gate catalog into the database and exit", RunE: runSeedGates},
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type runtime struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

func bootstrap() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &runtime{cfg: cfg, log: zl, db: db}, nil
}

// openDB connects to PostgreSQL, or to a local SQLite file outside production when
// DATABASE_URL is unset.
func openDB(cfg *config.Config) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}
	if cfg.DatabaseURL == "" {
		log.Println("⚠️  DATABASE_URL not set, using local sqlite gatecrawl.db")
		return gorm.Open(sqlite.Open("gatecrawl.db"), gcfg)
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func seedGates(ctx context.Context, rt *runtime) error {
	gates, err := services.LoadCatalog(rt.cfg.GatesFile)
	if err != nil {
		return err
	}
	return services.NewGateService(rt.db, rt.log).Seed(ctx, gates)
}

func runMigrate(*cobra.Command, []string) error {
	rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer rt.log.Sync()
	rt.log.Info("✅ migrations applied")
	return nil
}

func runSeedGates(cmd *cobra.Command, _ []string) error {
	rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer rt.log.Sync()
	if err := seedGates(cmd.Context(), rt); err != nil {
		return err
	}
	rt.log.Info("✅ gate catalog seeded", zap.String("file", rt.cfg.GatesFile))
	return nil
}

func objectStore(ctx context.Context, cfg *config.Config, zl *zap.Logger) (utils.ObjectStore, error) {
	if cfg.R2.Enabled() {
		zl.Info("[MEDIA] using R2 object storage", zap.String("bucket", cfg.R2.Bucket))
		return utils.NewR2Store(ctx, cfg.R2)
	}
	if err := utils.EnsureUploadDir(); err != nil {
		return nil, fmt.Errorf("failed to ensure upload dir: %w", err)
	}
	zl.Warn("[MEDIA] R2 not configured, storing uploads on disk", zap.String("dir", utils.UploadDir))
	return utils.NewDiskStore(utils.UploadDir, "/uploads"), nil
}

func partyEvents(ctx context.Context, cfg *config.Config, zl *zap.Logger) (services.PartyEvents, func(), error) {
	if cfg.RedisURL == "" {
		return services.NewMemoryBroker(zl), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	zl.Info("[EVENTS] party events over redis pub/sub")
	return services.NewRedisBroker(rdb, zl), func() { _ = rdb.Close() }, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer rt.log.Sync()
	cfg, zl, db := rt.cfg, rt.log, rt.db

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedGates(ctx, rt); err != nil {
		return fmt.Errorf("failed to seed gates: %w", err)
	}

	store, err := objectStore(ctx, cfg, zl)
	if err != nil {
		return err
	}
	settlement, closeChain, err := chain.NewFromConfig(ctx, cfg.Chain, store, zl)
	if err != nil {
		return err
	}
	defer closeChain()

	events, closeEvents, err := partyEvents(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer closeEvents()

	auth := services.NewAuthService(db, cfg.SessionSecret, cfg.SessionTTL, cfg.NonceTTL, zl)
	gates := services.NewGateService(db, zl)
	profiles := services.NewProfileService(db, zl)
	inventory := services.NewInventoryService(db, settlement, zl)
	parties := services.NewPartyService(db, events, gates, inventory, cfg.PartyTTL, zl)
	runs := services.NewRunService(db, settlement, parties, profiles, inventory, zl)

	sched, err := services.StartMaintenanceScheduler(parties, auth, zl)
	if err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() { _ = sched.Shutdown() }()

	workers.NewInventorySyncWorker(inventory, cfg.InventorySyncInterval, zl).Start(ctx)

	app := handlers.NewApp(handlers.Deps{
		Config:       cfg,
		Log:          zl,
		Auth:         auth,
		Gates:        gates,
		Parties:      parties,
		Runs:         runs,
		Profiles:     profiles,
		Inventory:    inventory,
		Leaderboards: services.NewLeaderboardService(db, zl),
		Media:        services.NewMediaService(store, profiles, zl),
		Chain:        settlement,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			zl.Error("server error", zap.Error(err))
			stop()
		}
	}()

	zl.Info("✅ Server running",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("env", cfg.AppEnv),
		zap.Bool("chain_mock", settlement.MockMode()),
		zap.Strings("cors_origins", cfg.AllowedOrigins),
	)

	<-ctx.Done()
	zl.Info("Shutting down server...")
	return app.ShutdownWithTimeout(shutdownTimeout)
}
