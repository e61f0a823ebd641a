package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-settlement/api/controllers"
	"github.com/angelmondragon/storefront-settlement/api/routes"
	"github.com/angelmondragon/storefront-settlement/internal/cart"
	"github.com/angelmondragon/storefront-settlement/internal/catalog"
	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	"github.com/angelmondragon/storefront-settlement/internal/orders"
	"github.com/angelmondragon/storefront-settlement/internal/payments"
	"github.com/angelmondragon/storefront-settlement/internal/returns"
	"github.com/angelmondragon/storefront-settlement/internal/settlement"
	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/env"
	"github.com/angelmondragon/storefront-settlement/pkg/instance"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/metrics"
	"github.com/angelmondragon/storefront-settlement/pkg/migrate"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := dbClient.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "db pool metrics not registered")
	}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	handler, err := buildRouter(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to wire api", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID("api"),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}
}

func buildRouter(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (http.Handler, error) {
	conn := dbClient.DB()
	policy := db.RetryPolicy{MaxAttempts: cfg.Settlement.MaxAttempts, BaseBackoff: cfg.Settlement.BaseBackoff}
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)
	replayer, err := outbox.NewReplayer(dbClient, outboxRepo, outbox.NewDLQRepository(conn), logg)
	if err != nil {
		return nil, err
	}
	products := catalog.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	ordersRepo := orders.NewRepository(conn)

	tokens, err := cart.NewSessionTokens(cfg.JWT)
	if err != nil {
		return nil, err
	}
	cartService, err := cart.NewService(cartRepo, dbClient, products)
	if err != nil {
		return nil, err
	}
	resolver, err := cart.NewResolver(cartRepo, products)
	if err != nil {
		return nil, err
	}
	ledgerStore, err := ledger.NewStore(ledger.NewRepository(conn), dbClient, emitter, policy, logg)
	if err != nil {
		return nil, err
	}
	ordersService, err := orders.NewService(ordersRepo, dbClient, emitter, ledgerStore, policy, logg)
	if err != nil {
		return nil, err
	}
	coordinator, err := settlement.NewCoordinator(settlement.Deps{
		Tx:       dbClient,
		Resolver: resolver,
		Carts:    cartService,
		Ledger:   ledgerStore,
		Orders:   ordersRepo,
		Outbox:   emitter,
		Pricing:  settlement.PricingFromConfig(cfg.Settlement),
		Policy:   policy,
		Metrics:  metrics.NewSettlementMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
	})
	if err != nil {
		return nil, err
	}
	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:    payments.NewRepository(conn),
		Orders:  ordersRepo,
		Payer:   ordersService,
		Gateway: payments.NewMockGateway(),
		Tx:      dbClient,
		Outbox:  emitter,
		Policy:  policy,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}
	returnsService, err := returns.NewService(returns.ServiceParams{
		Repo:   returns.NewRepository(conn),
		Orders: ordersRepo,
		Ledger: ledgerStore,
		Tx:     dbClient,
		Outbox: emitter,
		Policy: policy,
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}

	return routes.NewRouter(routes.Params{
		Config: cfg,
		Logger: logg,
		Readiness: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
		Idempotency: redisClient,
		RateLimiter: redisClient,
		CartTokens:  tokens,
		Carts:       cartService,
		Checkout:    coordinator,
		Orders:      ordersService,
		Payments:    paymentsService,
		Returns:     returnsService,
		Wallet:      ledgerStore,
		DeadLetters: replayer,
		HTTPMetrics: metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
	})
}
