package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-settlement/api/middleware"
	"github.com/angelmondragon/storefront-settlement/api/validators"
	"github.com/angelmondragon/storefront-settlement/internal/cart"
	"github.com/angelmondragon/storefront-settlement/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
)

func requireUser(r *http.Request) (uuid.UUID, error) {
	userID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return userID, nil
}

// cartIdentity resolves the cart owner: the signed-in user, else the verified cart session.
// ok is false when the caller has neither.
func cartIdentity(r *http.Request) (cart.Identity, bool) {
	if userID, ok := middleware.UserUUIDFromContext(r.Context()); ok {
		return cart.ForUser(userID), true
	}
	if session := middleware.CartSessionFromContext(r.Context()); session != "" {
		return cart.ForSession(session), true
	}
	return cart.Identity{}, false
}

// orderActor maps the caller onto an order actor. Anonymous callers act as guests, who
// can only reach unowned orders.
func orderActor(r *http.Request) orders.Actor {
	if userID, ok := middleware.UserUUIDFromContext(r.Context()); ok {
		return orders.Customer(userID)
	}
	return orders.Guest()
}

func customerActor(userID uuid.UUID) orders.Actor {
	return orders.Customer(userID)
}

// decodeOptionalBody decodes a JSON body when one was sent.
func decodeOptionalBody(r *http.Request, dest any) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	return validators.DecodeJSONBody(r, dest)
}
