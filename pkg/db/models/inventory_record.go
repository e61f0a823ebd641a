package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryRecord tracks sellable units per product under optimistic versioning.
type InventoryRecord struct {
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	Version      int64     `gorm:"column:version;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryRecord) TableName() string {
	return "inventory_records"
}
