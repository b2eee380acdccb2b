package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sudo-init-do/relicmarket/internal/auth"
	"github.com/sudo-init-do/relicmarket/internal/config"
	"github.com/sudo-init-do/relicmarket/internal/db"
	"github.com/sudo-init-do/relicmarket/internal/events"
	"github.com/sudo-init-do/relicmarket/internal/handler"
	"github.com/sudo-init-do/relicmarket/internal/ledger"
	applog "github.com/sudo-init-do/relicmarket/internal/log"
	"github.com/sudo-init-do/relicmarket/internal/market"
	mware "github.com/sudo-init-do/relicmarket/internal/middleware"
)

// custodianAccount is the identity that holds listed assets while they are
// in marketplace custody.
const custodianAccount = "marketplace-custody"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := applog.NewLogger(cfg.Debug)
	defer logger.Sync()

	ctx := context.Background()
	if err := db.Init(ctx, cfg.DSN()); err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}

	// Event sink: RabbitMQ when configured, structured log otherwise.
	var sink events.Sink = events.NewLogSink(logger)
	if cfg.RabbitURL != "" {
		rabbit, err := events.NewRabbitSink(cfg.RabbitURL, logger)
		if err != nil {
			logger.Fatal("rabbitmq init failed", zap.Error(err))
		}
		defer rabbit.Close()
		sink = rabbit
	}

	// Core engine over the Postgres-backed adapters.
	registry := market.NewRegistry()
	operator, feeBps, provisioned, err := db.LoadMarketConfig(ctx)
	if err != nil {
		logger.Fatal("market config load failed", zap.Error(err))
	}
	if provisioned {
		if err := registry.Init(operator, feeBps); err != nil {
			logger.Fatal("registry init failed", zap.Error(err))
		}
		logger.Info("market provisioned", zap.String("operator", operator), zap.Int64("fee_bps", feeBps))
	} else {
		logger.Warn("market not provisioned; run adminutil init_market first")
	}

	engine := market.NewEngine(
		registry,
		ledger.NewPostgresCustody(db.Conn, custodianAccount),
		ledger.NewPostgresLedger(db.Conn, cfg.Currency),
		sink,
		market.WithIDSource(db.NextListingID),
		market.WithLogger(logger),
	)
	h := handler.New(engine)
	wallet := &handler.WalletHandler{Currency: cfg.Currency}

	// Optional redis-backed rate limiting on the hot marketplace routes.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, rate limiting disabled", zap.Error(err))
			rdb = nil
		}
		cancel()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	// Health
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "service": "relicmarket"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := db.Conn.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	// Public routes
	authGroup := e.Group("/auth")
	authGroup.Use(echomw.RateLimiter(echomw.NewRateLimiterMemoryStore(20)))
	authGroup.POST("/signup", auth.Signup)
	authGroup.POST("/login", auth.Login)

	e.GET("/marketplace/listings", h.GetListings)
	e.GET("/marketplace/listings/:asset_id", h.GetListing)
	e.GET("/marketplace/config", h.MarketInfo)
	e.GET("/assets/:id", handler.GetAsset)

	// Protected routes
	api := e.Group("")
	api.Use(mware.JWTMiddleware)

	api.GET("/auth/me", auth.Me)

	api.GET("/wallet/balance", wallet.Balance)
	api.POST("/wallet/topup", wallet.Topup)
	api.GET("/wallet/transactions", wallet.Transactions)

	api.POST("/assets", handler.MintAsset)
	api.GET("/assets/me", handler.MyAssets)

	api.POST("/marketplace/listings", h.CreateListing)
	api.POST("/marketplace/listings/:asset_id/cancel", h.CancelListing)
	api.POST("/marketplace/listings/:asset_id/price", h.SetPrice)
	api.POST("/marketplace/listings/:asset_id/bids", h.PlaceBid,
		mware.RateLimit(rdb, 30, time.Minute))
	api.POST("/marketplace/listings/:asset_id/buy", h.BuyFixedPrice,
		mware.RateLimit(rdb, 30, time.Minute))
	api.POST("/marketplace/listings/:asset_id/claim", h.SettleAuction)

	// Admin routes
	admin := e.Group("/admin")
	admin.Use(mware.JWTMiddleware)
	admin.Use(mware.AdminGuard)
	admin.GET("/wallets", handler.AdminListWallets)
	admin.GET("/transactions", handler.AdminListTransactions)

	if err := e.Start(":" + cfg.Port); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
