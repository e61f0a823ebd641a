package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// ReturnRequest asks for part of a delivered order to be refunded to the buyer's wallet.
type ReturnRequest struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	UserID       uuid.UUID          `gorm:"column:user_id;type:uuid;not null"`
	Status       enums.ReturnStatus `gorm:"column:status;type:text;not null"`
	RefundAmount decimal.Decimal    `gorm:"column:refund_amount;type:numeric(12,2);not null"`
	Reason       *string            `gorm:"column:reason"`
	Items        []ReturnItem       `gorm:"foreignKey:ReturnRequestID;references:ID"`
	Version      int64              `gorm:"column:version;not null"`
	ResolvedAt   *time.Time         `gorm:"column:resolved_at"`
	CompletedAt  *time.Time         `gorm:"column:completed_at"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *ReturnRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// ReturnItem is one order line quantity being sent back.
type ReturnItem struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ReturnRequestID uuid.UUID `gorm:"column:return_request_id;type:uuid;not null;index"`
	OrderLineID     uuid.UUID `gorm:"column:order_line_id;type:uuid;not null"`
	ProductID       uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Qty             int       `gorm:"column:qty;not null"`
}

func (i *ReturnItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
