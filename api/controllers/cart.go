package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-settlement/api/middleware"
	"github.com/angelmondragon/storefront-settlement/api/responses"
	"github.com/angelmondragon/storefront-settlement/api/validators"
	cartsvc "github.com/angelmondragon/storefront-settlement/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

// SessionIssuer mints anonymous cart tokens.
type SessionIssuer interface {
	Issue() (token string, session string, err error)
}

// CartFetch returns the caller's cart. Callers with no cart yet get an empty one.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := cartIdentity(r)
		if !ok {
			responses.WriteSuccess(w, newCartResponse(nil))
			return
		}
		cart, err := svc.Get(r.Context(), identity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

type cartLineRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Qty       int       `json:"qty" validate:"gte=1"`
}

// CartUpsertLine sets a line quantity. Anonymous callers without a cart
// token are issued one through the X-Cart-Token response header.
func CartUpsertLine(svc cartsvc.Service, sessions SessionIssuer, allowAnonymous bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload cartLineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		identity, ok := cartIdentity(r)
		if !ok {
			if !allowAnonymous {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to use a cart"))
				return
			}
			token, session, err := sessions.Issue()
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue cart token"))
				return
			}
			w.Header().Set(middleware.CartTokenHeader, token)
			identity = cartsvc.ForSession(session)
		}

		cart, err := svc.UpsertLine(r.Context(), identity, cartsvc.LineInput{ProductID: payload.ProductID, Qty: payload.Qty})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

func CartRemoveLine(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		identity, ok := cartIdentity(r)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found"))
			return
		}
		cart, err := svc.RemoveLine(r.Context(), identity, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}
