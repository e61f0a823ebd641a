package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// OrderCreatedEvent announces a settled order and what each instrument contributed.
type OrderCreatedEvent struct {
	OrderID               uuid.UUID       `json:"order_id"`
	UserID                *uuid.UUID      `json:"user_id,omitempty"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	Tax                   decimal.Decimal `json:"tax"`
	Shipping              decimal.Decimal `json:"shipping"`
	CouponCode            *string         `json:"coupon_code,omitempty"`
	CouponDiscount        decimal.Decimal `json:"coupon_discount"`
	GiftCardAmount        decimal.Decimal `json:"gift_card_amount"`
	WalletAmount          decimal.Decimal `json:"wallet_amount"`
	LoyaltyPointsRedeemed int64           `json:"loyalty_points_redeemed"`
	LoyaltyPointsEarned   int64           `json:"loyalty_points_earned"`
	Total                 decimal.Decimal `json:"total"`
	LineCount             int             `json:"line_count"`
}

// OrderStatusChangedEvent covers paid, shipped, delivered, cancelled and expired transitions.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	UserID     *uuid.UUID        `json:"user_id,omitempty"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	ChangedAt  time.Time         `json:"changed_at"`
	Reason     string            `json:"reason,omitempty"`
}

// OrderReversedEvent reports which instrument debits were returned for a cancelled order.
type OrderReversedEvent struct {
	OrderID               uuid.UUID       `json:"order_id"`
	GiftCardRefunded      decimal.Decimal `json:"gift_card_refunded"`
	WalletRefunded        decimal.Decimal `json:"wallet_refunded"`
	LoyaltyPointsRefunded int64           `json:"loyalty_points_refunded"`
	LoyaltyPointsClawed   int64           `json:"loyalty_points_clawed"`
	CouponReleased        bool            `json:"coupon_released"`
	ReversedAt            time.Time       `json:"reversed_at"`
}

// PaymentFailedEvent is emitted when the gateway declines an intent.
type PaymentFailedEvent struct {
	PaymentIntentID uuid.UUID       `json:"payment_intent_id"`
	OrderID         uuid.UUID       `json:"order_id"`
	Amount          decimal.Decimal `json:"amount"`
	Reason          string          `json:"reason"`
}

// RefundRequiredEvent records a captured charge whose order could no longer be paid. Finance
// refunds it against GatewayReference.
type RefundRequiredEvent struct {
	PaymentIntentID  uuid.UUID       `json:"payment_intent_id"`
	OrderID          uuid.UUID       `json:"order_id"`
	Amount           decimal.Decimal `json:"amount"`
	GatewayReference string          `json:"gateway_reference"`
	Reason           string          `json:"reason"`
}

// ReturnStatusEvent covers every return request transition.
type ReturnStatusEvent struct {
	ReturnRequestID uuid.UUID          `json:"return_request_id"`
	OrderID         uuid.UUID          `json:"order_id"`
	UserID          uuid.UUID          `json:"user_id"`
	Status          enums.ReturnStatus `json:"status"`
	RefundAmount    decimal.Decimal    `json:"refund_amount"`
}

// WalletDebitedEvent records a standalone wallet debit outside checkout.
type WalletDebitedEvent struct {
	AccountID    uuid.UUID       `json:"account_id"`
	UserID       uuid.UUID       `json:"user_id"`
	ReferenceID  uuid.UUID       `json:"reference_id"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
}
