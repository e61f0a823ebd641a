package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgAuth "github.com/angelmondragon/storefront-settlement/pkg/auth"
	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "storefront", AccessTokenTTL: time.Hour}

func mint(t *testing.T, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(testJWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return token
}

func identityEcho(seenUser, seenRole *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seenUser = UserIDFromContext(r.Context())
		*seenRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthSeedsIdentity(t *testing.T) {
	userID := uuid.New()
	var user, role string
	handler := Auth(testJWT, logger.Nop())(identityEcho(&user, &role))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+mint(t, userID, enums.UserRoleCustomer))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if user != userID.String() || role != "customer" {
		t.Fatalf("unexpected identity %s/%s", user, role)
	}
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	var user, role string
	handler := Auth(testJWT, logger.Nop())(identityEcho(&user, &role))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assertErrorCode(t, rec, pkgerrors.CodeUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestOptionalAuthAllowsGuests(t *testing.T) {
	var user, role string
	handler := OptionalAuth(testJWT, logger.Nop())(identityEcho(&user, &role))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil))
	if rec.Code != http.StatusNoContent || user != "" {
		t.Fatalf("expected anonymous passthrough, got %d user=%q", rec.Code, user)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token must still be rejected, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	var user, role string
	handler := Auth(testJWT, logger.Nop())(RequireRole(enums.UserRoleAdmin, logger.Nop())(identityEcho(&user, &role)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/x/ship", nil)
	req.Header.Set("Authorization", "Bearer "+mint(t, uuid.New(), enums.UserRoleCustomer))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assertErrorCode(t, rec, pkgerrors.CodeForbidden)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/x/ship", nil)
	req.Header.Set("Authorization", "Bearer "+mint(t, uuid.New(), enums.UserRoleAdmin))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || role != "admin" {
		t.Fatalf("expected admin through, got %d role=%s", rec.Code, role)
	}
}

type stubTokens struct{}

func (stubTokens) Parse(token string) (string, error) {
	if token == "good" {
		return "session-1", nil
	}
	return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid cart token")
}

func TestCartSession(t *testing.T) {
	var seen string
	handler := CartSession(stubTokens{}, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CartSessionFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(CartTokenHeader, "good")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "session-1" {
		t.Fatalf("expected session, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(CartTokenHeader, "bad")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assertErrorCode(t, rec, pkgerrors.CodeUnauthorized)
}

func TestRecovererWritesInternalError(t *testing.T) {
	handler := Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assertErrorCode(t, rec, pkgerrors.CodeInternal)
}

func TestRequestIDEchoesOrMints(t *testing.T) {
	handler := RequestID(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get(requestIDHeader) != "abc-123" {
		t.Fatalf("expected echo, got %q", rec.Header().Get(requestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "bad id with spaces")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if _, err := uuid.Parse(rec.Header().Get(requestIDHeader)); err != nil {
		t.Fatalf("expected minted uuid, got %q", rec.Header().Get(requestIDHeader))
	}
}
