package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/api/controllers"
	"github.com/angelmondragon/storefront-settlement/api/middleware"
	"github.com/angelmondragon/storefront-settlement/internal/cart"
	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	"github.com/angelmondragon/storefront-settlement/internal/orders"
	"github.com/angelmondragon/storefront-settlement/internal/payments"
	"github.com/angelmondragon/storefront-settlement/internal/returns"
	"github.com/angelmondragon/storefront-settlement/internal/settlement"
	pkgAuth "github.com/angelmondragon/storefront-settlement/pkg/auth"
	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-settlement/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type memoryStore struct{ values map[string]string }

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", pkgredis.ErrNotFound
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.values[key] = value.(string)
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (m *memoryStore) Hit(_ context.Context, key string, window time.Duration) (pkgredis.Window, error) {
	m.values[key] += "x"
	return pkgredis.Window{Count: int64(len(m.values[key])), ResetIn: window}, nil
}

func (m *memoryStore) RateLimitKey(scope string) string { return "rl:" + scope }

type stubCarts struct{ cart.Service }

func (stubCarts) Get(context.Context, cart.Identity) (*models.Cart, error) {
	return &models.Cart{ID: uuid.New()}, nil
}

func (stubCarts) UpsertLine(_ context.Context, _ cart.Identity, in cart.LineInput) (*models.Cart, error) {
	return &models.Cart{ID: uuid.New(), Lines: []models.CartLine{{ProductID: in.ProductID, Qty: in.Qty}}}, nil
}

func (stubCarts) ClearTx(context.Context, *gorm.DB, uuid.UUID) error { return nil }

type countingSettler struct{ calls int }

func (s *countingSettler) Settle(context.Context, settlement.SettleInput) (*models.Order, error) {
	s.calls++
	return &models.Order{ID: uuid.New(), Status: enums.OrderStatusPending, Total: decimal.RequireFromString("10")}, nil
}

type stubOrders struct{ orders.Service }

func (stubOrders) Ship(_ context.Context, id uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: id, Status: enums.OrderStatusShipped}, nil
}

type stubPayments struct{ payments.Service }

type stubReturns struct{ returns.Service }

type stubWallet struct{}

func (stubWallet) Statement(_ context.Context, _ uuid.UUID, kind enums.LedgerAccountKind, _ int) (*ledger.Statement, error) {
	return &ledger.Statement{Kind: kind}, nil
}

func (stubWallet) DebitWallet(context.Context, ledger.DebitInput) (*models.LedgerEntry, error) {
	return &models.LedgerEntry{ID: uuid.New()}, nil
}

var routerJWT = config.JWTConfig{Secret: "router-secret", Issuer: "storefront", AccessTokenTTL: time.Hour, CartTokenTTL: time.Hour}

func newTestRouter(t *testing.T, allowAnon bool) (http.Handler, *countingSettler) {
	t.Helper()
	tokens, err := cart.NewSessionTokens(routerJWT)
	if err != nil {
		t.Fatalf("session tokens: %v", err)
	}
	cfg := &config.Config{
		App:          config.AppConfig{Env: "test", CORSOrigins: []string{"http://localhost:3000"}},
		JWT:          routerJWT,
		FeatureFlags: config.FeatureFlagsConfig{AllowAnonCart: allowAnon},
		Idempotency:  config.IdempotencyConfig{DefaultTTL: time.Hour, CriticalTTL: time.Hour, InFlightTTL: time.Minute},
		RateLimit:    config.RateLimitConfig{Window: time.Minute, CallerLimit: 2, ConfirmWindow: time.Minute, ConfirmLimit: 2},
	}
	store := &memoryStore{values: map[string]string{}}
	settler := &countingSettler{}
	handler, err := NewRouter(Params{
		Config:      cfg,
		Logger:      logger.Nop(),
		Readiness:   map[string]controllers.Pinger{"db": stubPinger{}},
		Idempotency: store,
		RateLimiter: store,
		CartTokens:  tokens,
		Carts:       stubCarts{},
		Checkout:    settler,
		Orders:      stubOrders{},
		Payments:    stubPayments{},
		Returns:     stubReturns{},
		Wallet:      stubWallet{},
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return handler, settler
}

func bearer(t *testing.T, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(routerJWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	h, _ := newTestRouter(t, true)
	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		if rec := serve(h, httptest.NewRequest(http.MethodGet, path, nil)); rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, rec.Code)
		}
	}
}

func TestAnonymousCartRoundTrip(t *testing.T) {
	h, _ := newTestRouter(t, true)

	body := `{"product_id":"` + uuid.NewString() + `","qty":1}`
	rec := serve(h, httptest.NewRequest(http.MethodPut, "/api/v1/cart/lines", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	token := rec.Header().Get(middleware.CartTokenHeader)
	if token == "" {
		t.Fatal("expected a cart token for the anonymous shopper")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(middleware.CartTokenHeader, token)
	if rec := serve(h, req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 reading cart got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(middleware.CartTokenHeader, "forged")
	if rec := serve(h, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected forged token to be rejected, got %d", rec.Code)
	}
}

func TestAnonymousCartDisabledRequiresAuth(t *testing.T) {
	h, _ := newTestRouter(t, false)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestCheckoutReplaysWithIdempotencyKey(t *testing.T) {
	h, settler := newTestRouter(t, true)
	auth := bearer(t, enums.UserRoleCustomer)

	missing := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	missing.Header.Set("Authorization", auth)
	if rec := serve(h, missing); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key, got %d", rec.Code)
	}

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
		req.Header.Set("Authorization", auth)
		req.Header.Set(middleware.IdempotencyKeyHeader, "checkout-1")
		if rec := serve(h, req); rec.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d: %s", i, rec.Code, rec.Body.String())
		}
	}
	if settler.calls != 1 {
		t.Fatalf("expected one settlement, got %d", settler.calls)
	}
}

func TestCustomerRoutesRequireAuth(t *testing.T) {
	h, _ := newTestRouter(t, true)
	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req.Header.Set("Authorization", bearer(t, enums.UserRoleCustomer))
	if rec := serve(h, req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestWalletDebitIsRateLimitedPerCaller(t *testing.T) {
	h, _ := newTestRouter(t, true)
	auth := bearer(t, enums.UserRoleCustomer)

	for i, want := range []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/debit", strings.NewReader(`{"amount":"5.00"}`))
		req.Header.Set("Authorization", auth)
		req.Header.Set(middleware.IdempotencyKeyHeader, "debit-"+uuid.NewString())
		rec := serve(h, req)
		if rec.Code != want {
			t.Fatalf("attempt %d: expected %d got %d: %s", i, want, rec.Code, rec.Body.String())
		}
		if want == http.StatusTooManyRequests && !strings.Contains(rec.Body.String(), "RATE_LIMITED") {
			t.Fatalf("expected RATE_LIMITED envelope, got %s", rec.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/debit", strings.NewReader(`{"amount":"5.00"}`))
	req.Header.Set("Authorization", bearer(t, enums.UserRoleCustomer))
	req.Header.Set(middleware.IdempotencyKeyHeader, "debit-other")
	if rec := serve(h, req); rec.Code != http.StatusCreated {
		t.Fatalf("another caller should not be throttled, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	h, _ := newTestRouter(t, true)
	path := "/api/v1/admin/orders/" + uuid.NewString() + "/ship"

	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("Authorization", bearer(t, enums.UserRoleCustomer))
	req.Header.Set(middleware.IdempotencyKeyHeader, "ship-1")
	if rec := serve(h, req); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("Authorization", bearer(t, enums.UserRoleAdmin))
	req.Header.Set(middleware.IdempotencyKeyHeader, "ship-1")
	if rec := serve(h, req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewRouterRequiresCollaborators(t *testing.T) {
	if _, err := NewRouter(Params{}); err == nil {
		t.Fatal("expected error for empty params")
	}
}
