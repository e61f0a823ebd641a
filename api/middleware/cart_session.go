package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-settlement/api/responses"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

// CartTokenHeader carries the signed anonymous cart session.
const CartTokenHeader = "X-Cart-Token"

const ctxCartSession contextKey = "cart_session"

type cartTokenParser interface {
	Parse(token string) (string, error)
}

// CartSession verifies an X-Cart-Token when one is sent and exposes its session key.
// Authenticated callers skip it; their cart is keyed by user id.
func CartSession(tokens cartTokenParser, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(CartTokenHeader))
			if raw == "" || UserIDFromContext(r.Context()) != "" {
				next.ServeHTTP(w, r)
				return
			}
			session, err := tokens.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ctx := WithCartSession(r.Context(), session)
			if logg != nil {
				ctx = logg.WithCartSession(ctx, session)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithCartSession stores the anonymous cart session key on the context.
func WithCartSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, ctxCartSession, session)
}

// CartSessionFromContext returns the verified anonymous session key, if any.
func CartSessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxCartSession).(string); ok {
		return v
	}
	return ""
}
