package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

type cartLineResponse struct {
	ProductID         uuid.UUID       `json:"product_id"`
	Qty               int             `json:"qty"`
	UnitPriceSnapshot decimal.Decimal `json:"unit_price_snapshot"`
}

type cartResponse struct {
	ID    *uuid.UUID         `json:"id,omitempty"`
	Lines []cartLineResponse `json:"lines"`
}

func newCartResponse(c *models.Cart) cartResponse {
	resp := cartResponse{Lines: []cartLineResponse{}}
	if c == nil {
		return resp
	}
	if c.ID != uuid.Nil {
		id := c.ID
		resp.ID = &id
	}
	for _, line := range c.Lines {
		resp.Lines = append(resp.Lines, cartLineResponse{
			ProductID:         line.ProductID,
			Qty:               line.Qty,
			UnitPriceSnapshot: line.UnitPriceSnapshot,
		})
	}
	return resp
}

type orderLineResponse struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Qty       int             `json:"qty"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type orderResponse struct {
	ID                    uuid.UUID           `json:"id"`
	UserID                *uuid.UUID          `json:"user_id,omitempty"`
	Status                enums.OrderStatus   `json:"status"`
	Subtotal              decimal.Decimal     `json:"subtotal"`
	Tax                   decimal.Decimal     `json:"tax"`
	Shipping              decimal.Decimal     `json:"shipping"`
	CouponCode            *string             `json:"coupon_code,omitempty"`
	CouponDiscount        decimal.Decimal     `json:"coupon_discount"`
	GiftCardAmount        decimal.Decimal     `json:"gift_card_amount"`
	WalletAmount          decimal.Decimal     `json:"wallet_amount"`
	LoyaltyAmount         decimal.Decimal     `json:"loyalty_amount"`
	LoyaltyPointsRedeemed int64               `json:"loyalty_points_redeemed"`
	LoyaltyPointsEarned   int64               `json:"loyalty_points_earned"`
	DiscountTotal         decimal.Decimal     `json:"discount_total"`
	Total                 decimal.Decimal     `json:"total"`
	Lines                 []orderLineResponse `json:"lines"`
	PaidAt                *time.Time          `json:"paid_at,omitempty"`
	ShippedAt             *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt           *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt           *time.Time          `json:"cancelled_at,omitempty"`
	ReversedAt            *time.Time          `json:"reversed_at,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
}

func newOrderResponse(o *models.Order) orderResponse {
	resp := orderResponse{
		ID:                    o.ID,
		UserID:                o.UserID,
		Status:                o.Status,
		Subtotal:              o.Subtotal,
		Tax:                   o.Tax,
		Shipping:              o.Shipping,
		CouponCode:            o.CouponCode,
		CouponDiscount:        o.CouponDiscount,
		GiftCardAmount:        o.GiftCardAmount,
		WalletAmount:          o.WalletAmount,
		LoyaltyAmount:         o.LoyaltyAmount,
		LoyaltyPointsRedeemed: o.LoyaltyPointsRedeemed,
		LoyaltyPointsEarned:   o.LoyaltyPointsEarned,
		DiscountTotal:         o.DiscountTotal,
		Total:                 o.Total,
		Lines:                 make([]orderLineResponse, 0, len(o.Lines)),
		PaidAt:                o.PaidAt,
		ShippedAt:             o.ShippedAt,
		DeliveredAt:           o.DeliveredAt,
		CancelledAt:           o.CancelledAt,
		ReversedAt:            o.ReversedAt,
		CreatedAt:             o.CreatedAt,
	}
	for _, line := range o.Lines {
		resp.Lines = append(resp.Lines, orderLineResponse{
			ID:        line.ID,
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Qty:       line.Qty,
			LineTotal: line.LineTotal,
		})
	}
	return resp
}

type paymentIntentResponse struct {
	ID               uuid.UUID                 `json:"id"`
	OrderID          uuid.UUID                 `json:"order_id"`
	Amount           decimal.Decimal           `json:"amount"`
	Status           enums.PaymentIntentStatus `json:"status"`
	GatewayReference *string                   `json:"gateway_reference,omitempty"`
	FailureReason    *string                   `json:"failure_reason,omitempty"`
	ConfirmedAt      *time.Time                `json:"confirmed_at,omitempty"`
	CreatedAt        time.Time                 `json:"created_at"`
}

func newPaymentIntentResponse(p *models.PaymentIntent) paymentIntentResponse {
	return paymentIntentResponse{
		ID:               p.ID,
		OrderID:          p.OrderID,
		Amount:           p.Amount,
		Status:           p.Status,
		GatewayReference: p.GatewayReference,
		FailureReason:    p.FailureReason,
		ConfirmedAt:      p.ConfirmedAt,
		CreatedAt:        p.CreatedAt,
	}
}

type returnItemResponse struct {
	OrderLineID uuid.UUID `json:"order_line_id"`
	ProductID   uuid.UUID `json:"product_id"`
	Qty         int       `json:"qty"`
}

type returnResponse struct {
	ID           uuid.UUID            `json:"id"`
	OrderID      uuid.UUID            `json:"order_id"`
	Status       enums.ReturnStatus   `json:"status"`
	RefundAmount decimal.Decimal      `json:"refund_amount"`
	Reason       *string              `json:"reason,omitempty"`
	Items        []returnItemResponse `json:"items"`
	ResolvedAt   *time.Time           `json:"resolved_at,omitempty"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

func newReturnResponse(req *models.ReturnRequest) returnResponse {
	resp := returnResponse{
		ID:           req.ID,
		OrderID:      req.OrderID,
		Status:       req.Status,
		RefundAmount: req.RefundAmount,
		Reason:       req.Reason,
		Items:        make([]returnItemResponse, 0, len(req.Items)),
		ResolvedAt:   req.ResolvedAt,
		CompletedAt:  req.CompletedAt,
		CreatedAt:    req.CreatedAt,
	}
	for _, item := range req.Items {
		resp.Items = append(resp.Items, returnItemResponse{OrderLineID: item.OrderLineID, ProductID: item.ProductID, Qty: item.Qty})
	}
	return resp
}

type ledgerEntryResponse struct {
	ID           uuid.UUID             `json:"id"`
	EntryType    enums.LedgerEntryType `json:"entry_type"`
	Amount       decimal.Decimal       `json:"amount"`
	BalanceAfter decimal.Decimal       `json:"balance_after"`
	OrderID      *uuid.UUID            `json:"order_id,omitempty"`
	ReferenceID  uuid.UUID             `json:"reference_id"`
	Purpose      enums.LedgerPurpose   `json:"purpose"`
	CreatedAt    time.Time             `json:"created_at"`
}

func newLedgerEntryResponse(e models.LedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:           e.ID,
		EntryType:    e.EntryType,
		Amount:       e.Amount,
		BalanceAfter: e.BalanceAfter,
		OrderID:      e.OrderID,
		ReferenceID:  e.ReferenceID,
		Purpose:      e.Purpose,
		CreatedAt:    e.CreatedAt,
	}
}

type statementResponse struct {
	AccountID *uuid.UUID              `json:"account_id,omitempty"`
	Kind      enums.LedgerAccountKind `json:"kind"`
	Balance   decimal.Decimal         `json:"balance"`
	Entries   []ledgerEntryResponse   `json:"entries"`
}

func newStatementResponse(s *ledger.Statement) statementResponse {
	resp := statementResponse{
		AccountID: s.AccountID,
		Kind:      s.Kind,
		Balance:   s.Balance,
		Entries:   make([]ledgerEntryResponse, 0, len(s.Entries)),
	}
	for _, e := range s.Entries {
		resp.Entries = append(resp.Entries, newLedgerEntryResponse(e))
	}
	return resp
}
