package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-settlement/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-settlement/pkg/redis"
)

// RateLimitPolicy bounds hits per client IP and per caller inside a fixed window.
type RateLimitPolicy struct {
	name        string
	window      time.Duration
	ipLimit     int
	callerLimit int
}

func NewRateLimitPolicy(name string, window time.Duration, ipLimit, callerLimit int) RateLimitPolicy {
	return RateLimitPolicy{
		name:        strings.ToLower(strings.TrimSpace(name)),
		window:      window,
		ipLimit:     ipLimit,
		callerLimit: callerLimit,
	}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.callerLimit > 0)
}

func (p RateLimitPolicy) scope(kind, value string) string {
	name := p.name
	if name == "" {
		name = "default"
	}
	return name + ":" + kind + ":" + value
}

// RateLimit rejects requests over the policy with RATE_LIMITED. The caller is the
// authenticated user, else the cart session; anonymous callers without a cart are only
// counted by IP. Run it after Auth and CartSession.
func RateLimit(policy RateLimitPolicy, store pkgredis.RateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if policy.ipLimit > 0 {
				if ip := clientIP(r); ip != "" {
					if !checkLimit(ctx, w, logg, store, policy, "ip", ip, policy.ipLimit) {
						return
					}
				}
			}
			if policy.callerLimit > 0 {
				if caller := callerKey(ctx); caller != "" {
					if !checkLimit(ctx, w, logg, store, policy, "caller", caller, policy.callerLimit) {
						return
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkLimit(ctx context.Context, w http.ResponseWriter, logg *logger.Logger, store pkgredis.RateLimiter, policy RateLimitPolicy, kind, value string, limit int) bool {
	win, err := store.Hit(ctx, store.RateLimitKey(policy.scope(kind, value)), policy.window)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting unavailable"))
		return false
	}
	if win.Count <= int64(limit) {
		return true
	}
	retryAfter := retryAfterSeconds(win.ResetIn, policy.window)
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":      policy.name,
			"scope":       kind,
			"attempts":    win.Count,
			"limit":       limit,
			"retry_after": retryAfter,
		}), "rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests, slow down"))
	return false
}

// retryAfterSeconds rounds the remaining window up to whole seconds, never below one.
func retryAfterSeconds(resetIn, window time.Duration) int {
	if resetIn <= 0 {
		resetIn = window
	}
	secs := int((resetIn + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func callerKey(ctx context.Context) string {
	if userID := UserIDFromContext(ctx); userID != "" {
		return "user:" + userID
	}
	if session := CartSessionFromContext(ctx); session != "" {
		sum := sha256.Sum256([]byte(session))
		return "cart:" + hex.EncodeToString(sum[:8])
	}
	return ""
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
