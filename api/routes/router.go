package routes

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-settlement/api/controllers"
	"github.com/angelmondragon/storefront-settlement/api/middleware"
	"github.com/angelmondragon/storefront-settlement/internal/cart"
	"github.com/angelmondragon/storefront-settlement/internal/orders"
	"github.com/angelmondragon/storefront-settlement/internal/payments"
	"github.com/angelmondragon/storefront-settlement/internal/returns"
	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/metrics"
	pkgredis "github.com/angelmondragon/storefront-settlement/pkg/redis"
)

// CartTokens verifies presented cart tokens and issues new ones.
type CartTokens interface {
	Parse(token string) (string, error)
	controllers.SessionIssuer
}

// Params collects everything the HTTP surface is built from.
type Params struct {
	Config      *config.Config
	Logger      *logger.Logger
	Readiness   map[string]controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	// RateLimiter throttles checkout, payment confirmation and wallet debits. Nil disables it.
	RateLimiter pkgredis.RateLimiter
	CartTokens  CartTokens
	Carts       cart.Service
	Checkout    controllers.Settler
	Orders      orders.Service
	Payments    payments.Service
	Returns     returns.Service
	Wallet      controllers.Wallet
	// DeadLetters mounts the outbox DLQ admin routes when set.
	DeadLetters controllers.DeadLetters
	// Metrics serves /metrics. Defaults to the global prometheus registry.
	Metrics http.Handler
	// HTTPMetrics records per-route request counts and latency. Nil disables it.
	HTTPMetrics *metrics.HTTPMetrics
}

func (p Params) validate() error {
	switch {
	case p.Config == nil:
		return errors.New("config required")
	case p.Idempotency == nil:
		return errors.New("idempotency store required")
	case p.CartTokens == nil:
		return errors.New("cart tokens required")
	case p.Carts == nil:
		return errors.New("cart service required")
	case p.Checkout == nil:
		return errors.New("checkout required")
	case p.Orders == nil:
		return errors.New("orders service required")
	case p.Payments == nil:
		return errors.New("payments service required")
	case p.Returns == nil:
		return errors.New("returns service required")
	case p.Wallet == nil:
		return errors.New("wallet required")
	}
	return nil
}

func NewRouter(p Params) (http.Handler, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	cfg, logg := p.Config, p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	metricsHandler := p.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.Readiness, logg))
	})
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	idempotency := middleware.Idempotency(p.Idempotency, cfg.Idempotency, logg)
	limits := cfg.RateLimit
	spendLimit := middleware.RateLimit(middleware.NewRateLimitPolicy("spend", limits.Window, limits.IPLimit, limits.CallerLimit), p.RateLimiter, logg)
	confirmLimit := middleware.RateLimit(middleware.NewRateLimitPolicy("confirm", limits.ConfirmWindow, limits.IPLimit, limits.ConfirmLimit), p.RateLimiter, logg)

	r.Route("/api/v1", func(r chi.Router) {
		// Shopper routes accept guests holding a cart token unless anonymous carts are off.
		r.Group(func(r chi.Router) {
			if cfg.FeatureFlags.AllowAnonCart {
				r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			} else {
				r.Use(middleware.Auth(cfg.JWT, logg))
			}
			r.Use(middleware.CartSession(p.CartTokens, logg))
			r.Use(idempotency)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(p.Carts, logg))
				r.Put("/lines", controllers.CartUpsertLine(p.Carts, p.CartTokens, cfg.FeatureFlags.AllowAnonCart, logg))
				r.Delete("/lines/{productId}", controllers.CartRemoveLine(p.Carts, logg))
			})
			r.With(spendLimit).Post("/checkout", controllers.Checkout(p.Checkout, logg))
			r.Get("/orders/{orderId}", controllers.OrderDetail(p.Orders, logg))
			r.Post("/orders/{orderId}/payment-intents", controllers.PaymentIntentCreate(p.Payments, logg))
			r.Get("/payment-intents/{intentId}", controllers.PaymentIntentDetail(p.Payments, logg))
			r.With(confirmLimit).Post("/payment-intents/{intentId}/confirm", controllers.PaymentIntentConfirm(p.Payments, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(idempotency)

			r.Get("/orders", controllers.OrderList(p.Orders, logg))
			r.Post("/orders/{orderId}/cancel", controllers.OrderCancel(p.Orders, logg))
			r.Post("/orders/{orderId}/returns", controllers.ReturnCreate(p.Returns, logg))
			r.Get("/returns/{returnId}", controllers.ReturnDetail(p.Returns, logg))
			r.Get("/wallet", controllers.WalletStatement(p.Wallet, logg))
			r.With(spendLimit).Post("/wallet/debit", controllers.WalletDebit(p.Wallet, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
			r.Use(idempotency)

			r.Route("/orders/{orderId}", func(r chi.Router) {
				r.Post("/ship", controllers.AdminOrderShip(p.Orders, logg))
				r.Post("/deliver", controllers.AdminOrderDeliver(p.Orders, logg))
				r.Post("/reverse", controllers.AdminOrderReverse(p.Returns, logg))
			})
			r.Route("/returns/{returnId}", func(r chi.Router) {
				r.Post("/approve", controllers.AdminReturnApprove(p.Returns, logg))
				r.Post("/reject", controllers.AdminReturnReject(p.Returns, logg))
				r.Post("/complete", controllers.AdminReturnComplete(p.Returns, logg))
			})
			if p.DeadLetters != nil {
				r.Get("/outbox/dlq", controllers.AdminDeadLetterList(p.DeadLetters, logg))
				r.Post("/outbox/dlq/{eventId}/requeue", controllers.AdminDeadLetterRequeue(p.DeadLetters, logg))
			}
		})
	})

	return r, nil
}
