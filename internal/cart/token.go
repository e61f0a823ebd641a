package cart

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-settlement/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
)

const cartTokenAudience = "cart"

var cartTokenSigningMethod = jwt.SigningMethodHS256

// SessionTokens mints and verifies the X-Cart-Token carried by anonymous shoppers. The
// token subject is the session key stored on the cart row.
type SessionTokens struct {
	cfg config.JWTConfig
	now func() time.Time
}

// NewSessionTokens builds a token helper that signs with the shared JWT secret.
func NewSessionTokens(cfg config.JWTConfig) (*SessionTokens, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("jwt secret required for cart session tokens")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, fmt.Errorf("jwt issuer required for cart session tokens")
	}
	if cfg.CartTokenTTL <= 0 {
		cfg.CartTokenTTL = 30 * 24 * time.Hour
	}
	return &SessionTokens{cfg: cfg, now: time.Now}, nil
}

// Issue mints a token for a fresh anonymous session and returns it with the session key.
func (t *SessionTokens) Issue() (string, string, error) {
	key := uuid.NewString()
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   key,
		Issuer:    t.cfg.Issuer,
		Audience:  jwt.ClaimStrings{cartTokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.CartTokenTTL)),
	}
	signed, err := jwt.NewWithClaims(cartTokenSigningMethod, claims).SignedString([]byte(t.cfg.Secret))
	if err != nil {
		return "", "", fmt.Errorf("sign cart token: %w", err)
	}
	return signed, key, nil
}

// Parse verifies the token and returns its session key.
func (t *SessionTokens) Parse(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "cart token required")
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != cartTokenSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(t.cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{cartTokenSigningMethod.Alg()}),
		jwt.WithIssuer(t.cfg.Issuer),
		jwt.WithAudience(cartTokenAudience),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid cart token")
	}
	if claims.Subject == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "cart token missing session")
	}
	return claims.Subject, nil
}
