package cart

import (
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
)

// Identity names the owner of a cart: a signed-in user or an anonymous session.
type Identity struct {
	UserID       *uuid.UUID
	SessionToken string
}

// ForUser builds an identity for an authenticated shopper.
func ForUser(userID uuid.UUID) Identity {
	return Identity{UserID: &userID}
}

// ForSession builds an identity for an anonymous cart.
func ForSession(token string) Identity {
	return Identity{SessionToken: strings.TrimSpace(token)}
}

// Anonymous reports whether the cart has no owning user.
func (i Identity) Anonymous() bool {
	return i.UserID == nil
}

// Validate requires exactly one owner.
func (i Identity) Validate() error {
	hasUser := i.UserID != nil && *i.UserID != uuid.Nil
	hasSession := strings.TrimSpace(i.SessionToken) != ""
	switch {
	case hasUser && hasSession:
		return pkgerrors.New(pkgerrors.CodeValidation, "cart identity must be a user or a session, not both")
	case !hasUser && !hasSession:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "cart identity required")
	}
	return nil
}
