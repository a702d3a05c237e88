package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/ledgerd/internal/account"
	"github.com/congo-pay/ledgerd/internal/auth"
	"github.com/congo-pay/ledgerd/internal/config"
	"github.com/congo-pay/ledgerd/internal/identity"
	"github.com/congo-pay/ledgerd/internal/infra"
	"github.com/congo-pay/ledgerd/internal/ledger"
	"github.com/congo-pay/ledgerd/internal/metrics"
	"github.com/congo-pay/ledgerd/internal/middleware"
	"github.com/congo-pay/ledgerd/internal/notification"
)

// Deps aggregates shared dependencies required to wire routes. DB, Cache and
// Broker are optional in development: without DB the ledger and users live in
// memory, without Cache idempotency replay and login throttling are off, and
// without Broker transaction events go to the log. A nil Metrics records
// nothing.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Broker  *infra.Broker
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, " + middleware.IdempotencyKeyHeader,
		ExposeHeaders: "X-Request-ID, Idempotent-Replayed",
	}))
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(d.Metrics.Middleware())

	RegisterHealthRoutes(app, d)

	var (
		store    ledger.Store
		runner   infra.TxRunner
		userRepo identity.Repository
	)
	if d.DB != nil {
		pgRunner := infra.NewPgTxRunner(d.DB, d.Cfg.LockTimeout)
		store = ledger.NewPostgresStore(d.DB, pgRunner)
		userRepo = identity.NewPostgresRepository(d.DB)
		runner = pgRunner
	} else {
		d.Logger.Warn("no database configured, using in-memory ledger")
		store = ledger.NewInMemory()
		userRepo = identity.NewMemoryRepository()
		runner = infra.NoopTxRunner{}
	}

	var notifier notification.Notifier
	if d.Broker != nil {
		notifier = notification.NewAMQPNotifier(d.Broker.Channel, d.Logger)
	} else {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	engine := ledger.NewEngine(store)
	accountSvc := account.NewService(engine, notifier, d.Logger, account.WithObserver(d.Metrics))
	identitySvc := identity.NewService(userRepo, runner, accountSvc, d.Logger)
	authSvc := auth.NewService(d.Cfg, identitySvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(app.Group("/wallet"), WalletHandlers{
		Auth:     auth.NewHandler(authSvc),
		Identity: identity.NewHandler(identitySvc),
		Account:  account.NewHandler(accountSvc),
	}, WalletMiddleware{
		Authenticate: middleware.JWTAuth(authSvc),
		LoginLimit:   middleware.LoginRateLimit(d.Cache, d.Cfg.LoginAttempts, d.Logger),
		Idempotency:  middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
	})

	return nil
}
