package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-settlement/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

var testIdemConfig = config.IdempotencyConfig{DefaultTTL: time.Hour, CriticalTTL: 48 * time.Hour, InFlightTTL: time.Second}

func TestRouteClassSelection(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   ttlClass
		ok     bool
	}{
		{"checkout", http.MethodPost, "/api/v1/checkout", ttlCritical, true},
		{"order cancel", http.MethodPost, "/api/v1/orders/456/cancel", ttlCritical, true},
		{"payment confirm", http.MethodPost, "/api/v1/payment-intents/abc/confirm", ttlCritical, true},
		{"returns", http.MethodPost, "/api/v1/orders/456/returns", ttlDefault, true},
		{"admin action", http.MethodPost, "/api/v1/admin/orders/abc/ship", ttlDefault, true},
		{"read", http.MethodGet, "/api/v1/orders/456", 0, false},
		{"cart edit", http.MethodPut, "/api/v1/cart/lines", 0, false},
	}

	for _, tt := range tests {
		class, ok := routeClass(tt.method, tt.path)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && class != tt.want {
			t.Fatalf("%s: expected class=%v got %v", tt.name, tt.want, class)
		}
	}
}

func countingHandler(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"call":%d}`, *calls)
	})
}

func postCheckout(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	req.Header.Set(IdempotencyKeyHeader, key)
	return req.WithContext(WithIdentity(req.Context(), "user-1", "customer"))
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, testIdemConfig, logger.Nop())(countingHandler(&calls, http.StatusCreated))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, postCheckout(`{"coupon_code":"SAVE10"}`, "abc"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, postCheckout(`{"coupon_code":"SAVE10"}`, "abc"))

	if calls != 1 {
		t.Fatalf("expected handler once, got %d", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("replay mismatch: %d %q vs %q", second.Code, second.Body.String(), first.Body.String())
	}
	if second.Header().Get(replayedHeader) != "true" {
		t.Fatal("expected replay header")
	}
	key := store.IdempotencyKey("user-1|POST|/api/v1/checkout", "abc")
	if store.ttls[key] != testIdemConfig.CriticalTTL {
		t.Fatalf("expected critical ttl, got %s", store.ttls[key])
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, testIdemConfig, logger.Nop())(countingHandler(&calls, http.StatusCreated))

	handler.ServeHTTP(httptest.NewRecorder(), postCheckout(`{"a":1}`, "abc"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postCheckout(`{"a":2}`, "abc"))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	assertErrorCode(t, rec, pkgerrors.CodeIdempotency)
}

func TestIdempotencyReportsInFlightDuplicate(t *testing.T) {
	store := newFakeStore()
	key := store.IdempotencyKey("user-1|POST|/api/v1/checkout", "abc")
	store.data[key] = inFlightMarker

	calls := 0
	handler := Idempotency(store, testIdemConfig, logger.Nop())(countingHandler(&calls, http.StatusCreated))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postCheckout(`{}`, "abc"))

	if calls != 0 {
		t.Fatal("handler must not run while another request holds the key")
	}
	assertErrorCode(t, rec, pkgerrors.CodeConflict)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, testIdemConfig, logger.Nop())(countingHandler(&calls, http.StatusServiceUnavailable))

	handler.ServeHTTP(httptest.NewRecorder(), postCheckout(`{}`, "abc"))
	handler.ServeHTTP(httptest.NewRecorder(), postCheckout(`{}`, "abc"))
	if calls != 2 {
		t.Fatalf("expected retry after 5xx to run again, got %d calls", calls)
	}
}

func TestIdempotencyRequiresHeaderOnlyOnListedRoutes(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, testIdemConfig, logger.Nop())(countingHandler(&calls, http.StatusOK))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postCheckout(`{}`, ""))
	assertErrorCode(t, rec, pkgerrors.CodeValidation)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if rec.Code != http.StatusOK || calls != 1 {
		t.Fatalf("expected passthrough, got %d calls=%d", rec.Code, calls)
	}
}

func TestIdempotencyScopesKeysPerCaller(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, testIdemConfig, logger.Nop())(countingHandler(&calls, http.StatusCreated))

	handler.ServeHTTP(httptest.NewRecorder(), postCheckout(`{}`, "abc"))
	other := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	other.Header.Set(IdempotencyKeyHeader, "abc")
	other = other.WithContext(WithCartSession(other.Context(), "guest-session"))
	handler.ServeHTTP(httptest.NewRecorder(), other)

	if calls != 2 {
		t.Fatalf("expected separate callers to run independently, got %d", calls)
	}
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, code pkgerrors.Code) {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Code != string(code) {
		t.Fatalf("expected code %s, got %s", code, body.Error.Code)
	}
}
