package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// Order is the durable result of a settlement. Each instrument contribution is kept in
// its own column so reversals and refunds can be computed per instrument.
type Order struct {
	ID                    uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID                *uuid.UUID        `gorm:"column:user_id;type:uuid;index"`
	Status                enums.OrderStatus `gorm:"column:status;type:text;not null"`
	Subtotal              decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax                   decimal.Decimal   `gorm:"column:tax;type:numeric(12,2);not null"`
	Shipping              decimal.Decimal   `gorm:"column:shipping;type:numeric(12,2);not null"`
	CouponID              *uuid.UUID        `gorm:"column:coupon_id;type:uuid"`
	CouponCode            *string           `gorm:"column:coupon_code"`
	CouponDiscount        decimal.Decimal   `gorm:"column:coupon_discount;type:numeric(12,2);not null;default:0"`
	GiftCardID            *uuid.UUID        `gorm:"column:gift_card_id;type:uuid"`
	GiftCardAmount        decimal.Decimal   `gorm:"column:gift_card_amount;type:numeric(12,2);not null;default:0"`
	WalletAmount          decimal.Decimal   `gorm:"column:wallet_amount;type:numeric(12,2);not null;default:0"`
	LoyaltyAmount         decimal.Decimal   `gorm:"column:loyalty_amount;type:numeric(12,2);not null;default:0"`
	LoyaltyPointsRedeemed int64             `gorm:"column:loyalty_points_redeemed;not null;default:0"`
	LoyaltyPointsEarned   int64             `gorm:"column:loyalty_points_earned;not null;default:0"`
	DiscountTotal         decimal.Decimal   `gorm:"column:discount_total;type:numeric(12,2);not null;default:0"`
	Total                 decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	Version               int64             `gorm:"column:version;not null"`
	Lines                 []OrderLine       `gorm:"foreignKey:OrderID;references:ID"`
	PaidAt                *time.Time        `gorm:"column:paid_at"`
	ShippedAt             *time.Time        `gorm:"column:shipped_at"`
	DeliveredAt           *time.Time        `gorm:"column:delivered_at"`
	CancelledAt           *time.Time        `gorm:"column:cancelled_at"`
	ReversedAt            *time.Time        `gorm:"column:reversed_at"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderLine freezes the unit price charged at settlement time.
type OrderLine struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Name      string          `gorm:"column:name;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Qty       int             `gorm:"column:qty;not null"`
	LineTotal decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
