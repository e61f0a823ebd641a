package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-settlement/api/responses"
	"github.com/angelmondragon/storefront-settlement/api/validators"
	internalorders "github.com/angelmondragon/storefront-settlement/internal/orders"
	"github.com/angelmondragon/storefront-settlement/internal/returns"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

type orderTransition func(ctx context.Context, orderID uuid.UUID) (*models.Order, error)

type returnTransition func(ctx context.Context, returnID uuid.UUID) (*models.ReturnRequest, error)

// AdminOrderShip moves a PAID order to SHIPPED.
func AdminOrderShip(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return adminOrderAction(svc.Ship, logg)
}

// AdminOrderDeliver moves a SHIPPED order to DELIVERED.
func AdminOrderDeliver(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return adminOrderAction(svc.Deliver, logg)
}

func adminOrderAction(transition orderTransition, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := transition(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

type reversalResponse struct {
	Order   orderResponse         `json:"order"`
	Entries []ledgerEntryResponse `json:"entries"`
}

// AdminOrderReverse gives back the instruments a cancelled order consumed.
func AdminOrderReverse(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reversal, err := svc.ReverseCancelledOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := reversalResponse{
			Order:   newOrderResponse(reversal.Order),
			Entries: make([]ledgerEntryResponse, 0, len(reversal.Entries)),
		}
		for _, e := range reversal.Entries {
			resp.Entries = append(resp.Entries, newLedgerEntryResponse(e))
		}
		responses.WriteSuccess(w, resp)
	}
}

func AdminReturnApprove(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return adminReturnAction(svc.Approve, logg)
}

func AdminReturnReject(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return adminReturnAction(svc.Reject, logg)
}

// AdminReturnComplete restocks the returned items and refunds the buyer's wallet.
func AdminReturnComplete(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return adminReturnAction(svc.Complete, logg)
}

func adminReturnAction(transition returnTransition, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnID, err := validators.ParseUUIDParam(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := transition(r.Context(), returnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newReturnResponse(req))
	}
}
