package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// LedgerAccount backs wallets, gift cards and loyalty balances. Loyalty balances are
// whole points stored in the same numeric column.
type LedgerAccount struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Kind           enums.LedgerAccountKind `gorm:"column:kind;type:text;not null;uniqueIndex:ux_ledger_accounts_owner_kind,priority:2"`
	OwnerUserID    *uuid.UUID              `gorm:"column:owner_user_id;type:uuid;uniqueIndex:ux_ledger_accounts_owner_kind,priority:1"`
	Code           *string                 `gorm:"column:code;uniqueIndex:ux_ledger_accounts_code"`
	Balance        decimal.Decimal         `gorm:"column:balance;type:numeric(12,2);not null;default:0"`
	InitialBalance decimal.Decimal         `gorm:"column:initial_balance;type:numeric(12,2);not null;default:0"`
	Version        int64                   `gorm:"column:version;not null"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *LedgerAccount) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
