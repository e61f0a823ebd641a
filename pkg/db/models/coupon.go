package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// Coupon is a usage-capped discount code. CurrentUses never exceeds MaxUses.
type Coupon struct {
	ID             uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	Code           string                   `gorm:"column:code;not null;uniqueIndex"`
	DiscountType   enums.CouponDiscountType `gorm:"column:discount_type;type:text;not null"`
	DiscountValue  decimal.Decimal          `gorm:"column:discount_value;type:numeric(12,2);not null"`
	MinOrderAmount decimal.Decimal          `gorm:"column:min_order_amount;type:numeric(12,2);not null;default:0"`
	MaxUses        int                      `gorm:"column:max_uses;not null"`
	CurrentUses    int                      `gorm:"column:current_uses;not null;default:0"`
	IsActive       bool                     `gorm:"column:is_active;not null"`
	ExpiresAt      *time.Time               `gorm:"column:expires_at"`
	Version        int64                    `gorm:"column:version;not null"`
	CreatedAt      time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
