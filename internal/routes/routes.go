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

	"github.com/kasai-pay/kasai_pay/internal/config"
	"github.com/kasai-pay/kasai_pay/internal/event"
	"github.com/kasai-pay/kasai_pay/internal/history"
	"github.com/kasai-pay/kasai_pay/internal/middleware"
	"github.com/kasai-pay/kasai_pay/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// SetupWalletAPI configures middlewares and the wallet service routes.
func SetupWalletAPI(app *fiber.App, d Deps) error {
	if d.Cache == nil {
		return fmt.Errorf("redis is required for event publishing")
	}
	if !isDev(d.Cfg.AppEnv) && d.DB == nil {
		return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	useMiddleware(app, d)

	var walletRepo wallet.Repository
	if d.DB != nil {
		walletRepo = wallet.NewPostgresRepository(d.DB)
	} else {
		walletRepo = wallet.NewMemoryRepository()
	}

	publisher := event.NewStreamPublisher(d.Cache, d.Cfg.EventStream, d.Cfg.StreamPartitions,
		d.Cfg.PublishTimeout, d.Logger)
	walletSvc := wallet.NewService(walletRepo, publisher, d.Logger)
	walletHandler := wallet.NewHandler(walletSvc)

	api := app.Group("/api/v1", middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	RegisterWalletRoutes(api, walletHandler)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	return nil
}

// SetupHistoryAPI configures the projector's read-only routes. The healthy
// callback reflects the consumer loop's progress on /health.
func SetupHistoryAPI(app *fiber.App, d Deps, repo history.Repository, healthy func() bool) error {
	useMiddleware(app, d)

	historyHandler := history.NewHandler(repo)
	api := app.Group("/api/v1")
	RegisterHistoryRoutes(api, historyHandler)

	app.Get("/health", func(c *fiber.Ctx) error {
		if healthy != nil && !healthy() {
			return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	return nil
}

func useMiddleware(app *fiber.App, d Deps) {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	app.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
