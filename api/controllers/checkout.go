package controllers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-settlement/api/responses"
	"github.com/angelmondragon/storefront-settlement/api/validators"
	"github.com/angelmondragon/storefront-settlement/internal/settlement"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

// Settler turns the caller's cart into a PENDING order.
type Settler interface {
	Settle(ctx context.Context, input settlement.SettleInput) (*models.Order, error)
}

type checkoutRequest struct {
	CouponCode    string          `json:"coupon_code,omitempty" validate:"max=64"`
	GiftCardCode  string          `json:"gift_card_code,omitempty" validate:"max=64"`
	WalletAmount  decimal.Decimal `json:"wallet_amount" validate:"gte=0,cents"`
	LoyaltyPoints int64           `json:"loyalty_points" validate:"gte=0"`
}

// Checkout settles the caller's cart into an order.
func Checkout(svc Settler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := cartIdentity(r)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty"))
			return
		}

		var payload checkoutRequest
		if err := decodeOptionalBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Settle(r.Context(), settlement.SettleInput{
			Identity:      identity,
			CouponCode:    validators.NormalizeCode(payload.CouponCode, 64),
			GiftCardCode:  validators.NormalizeCode(payload.GiftCardCode, 64),
			WalletAmount:  payload.WalletAmount,
			LoyaltyPoints: payload.LoyaltyPoints,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}
