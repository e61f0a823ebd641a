package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-settlement/api/responses"
	"github.com/angelmondragon/storefront-settlement/api/validators"
	"github.com/angelmondragon/storefront-settlement/internal/returns"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

type returnItemRequest struct {
	OrderLineID uuid.UUID `json:"order_line_id" validate:"required"`
	Qty         int       `json:"qty" validate:"gte=1"`
}

type returnRequest struct {
	Items        []returnItemRequest `json:"items" validate:"required,min=1,dive"`
	RefundAmount decimal.Decimal     `json:"refund_amount" validate:"gt=0,cents"`
	Reason       string              `json:"reason,omitempty" validate:"max=500"`
}

// ReturnCreate files a return against a delivered order owned by the caller.
func ReturnCreate(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload returnRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]returns.ItemInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, returns.ItemInput{OrderLineID: item.OrderLineID, Qty: item.Qty})
		}
		req, err := svc.RequestReturn(r.Context(), customerActor(userID), returns.RequestInput{
			OrderID:      orderID,
			Items:        items,
			RefundAmount: payload.RefundAmount,
			Reason:       validators.SanitizeString(payload.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newReturnResponse(req))
	}
}

func ReturnDetail(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		returnID, err := validators.ParseUUIDParam(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := svc.Get(r.Context(), customerActor(userID), returnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newReturnResponse(req))
	}
}
