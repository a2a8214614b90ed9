package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/canopy-ledger/canopy_ledger/internal/auth"
	"github.com/canopy-ledger/canopy_ledger/internal/config"
	"github.com/canopy-ledger/canopy_ledger/internal/events"
	"github.com/canopy-ledger/canopy_ledger/internal/issuance"
	"github.com/canopy-ledger/canopy_ledger/internal/ledger"
	"github.com/canopy-ledger/canopy_ledger/internal/middleware"
	"github.com/canopy-ledger/canopy_ledger/internal/transfer"
	"github.com/canopy-ledger/canopy_ledger/internal/trust"
	"github.com/canopy-ledger/canopy_ledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Storage backends: Postgres when a pool is present, in-memory otherwise.
	var (
		trustRepo     trust.Repository
		walletRepo    wallet.Repository
		ledgerBackend ledger.Ledger
	)
	if d.DB != nil {
		trustRepo = trust.NewPostgresRepository(d.DB)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
	} else {
		trustRepo = trust.NewMemoryRepository()
		walletRepo = wallet.NewMemoryRepository()
		ledgerBackend = ledger.NewInMemory()
	}

	var recorder events.Recorder
	if d.Cache != nil {
		recorder = events.NewRedisRecorder(d.Cache, "")
	} else {
		recorder = events.NewLoggerRecorder(d.Logger)
	}

	// Services. The wallet directory breaks the wallet/trust construction
	// cycle: trust needs wallet lookups, wallet needs the trust hierarchy.
	dir := wallet.NewDirectory(walletRepo)
	trustSvc := trust.NewService(trustRepo, dir, recorder)
	walletSvc := wallet.NewService(walletRepo, trustSvc)
	transferSvc := transfer.NewService(ledgerBackend, walletSvc, trustSvc, recorder)
	issuanceSvc, err := issuance.NewService(ledgerBackend, walletSvc, nil)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(d.Cfg, walletSvc)

	walletHandler := wallet.NewHandler(walletSvc, ledgerBackend)
	trustHandler := trust.NewHandler(trustSvc)
	transferHandler := transfer.NewHandler(transferSvc)
	issuanceHandler := issuance.NewHandler(issuanceSvc)
	authHandler := auth.NewHandler(authSvc, walletSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	api.Post("/wallets", walletHandler.Create)
	rateLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterAuthRoutes(api, authHandler, rateLimiter)

	// Protected routes
	jwtmw := middleware.JWTAuth(d.Cfg, walletRepo)
	protected := api.Group("", jwtmw)
	RegisterWalletRoutes(protected, walletHandler)
	RegisterTrustRoutes(protected, trustHandler)
	RegisterTransferRoutes(protected, transferHandler)
	RegisterIssuanceRoutes(protected, issuanceHandler)

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
