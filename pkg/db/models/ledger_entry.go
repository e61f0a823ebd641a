package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// LedgerEntry is an immutable balance movement. Amount is signed: debits are negative.
type LedgerEntry struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	AccountID      uuid.UUID               `gorm:"column:account_id;type:uuid;not null;index"`
	AccountKind    enums.LedgerAccountKind `gorm:"column:account_kind;type:text;not null"`
	EntryType      enums.LedgerEntryType   `gorm:"column:entry_type;type:text;not null"`
	Amount         decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	BalanceAfter   decimal.Decimal         `gorm:"column:balance_after;type:numeric(12,2);not null"`
	OrderID        *uuid.UUID              `gorm:"column:order_id;type:uuid;index"`
	ReferenceID    uuid.UUID               `gorm:"column:reference_id;type:uuid;not null"`
	Purpose        enums.LedgerPurpose     `gorm:"column:purpose;type:text;not null"`
	IdempotencyKey string                  `gorm:"column:idempotency_key;not null;uniqueIndex:ux_ledger_entries_idem"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
