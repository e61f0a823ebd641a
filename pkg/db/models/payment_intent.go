package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// PaymentIntent tracks a single attempt to collect an order total through the gateway.
type PaymentIntent struct {
	ID               uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;index"`
	IdempotencyKey   string                    `gorm:"column:idempotency_key;not null;uniqueIndex:ux_payment_intents_idem"`
	Amount           decimal.Decimal           `gorm:"column:amount;type:numeric(12,2);not null"`
	Status           enums.PaymentIntentStatus `gorm:"column:status;type:text;not null"`
	GatewayReference *string                   `gorm:"column:gateway_reference"`
	FailureReason    *string                   `gorm:"column:failure_reason"`
	Version          int64                     `gorm:"column:version;not null"`
	ConfirmedAt      *time.Time                `gorm:"column:confirmed_at"`
	CreatedAt        time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PaymentIntent) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
