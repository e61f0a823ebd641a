package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
)

// Account is the capability shared by every balance-bearing row: gift cards, wallets,
// loyalty ledgers and coupon usage counters. Balances never go negative and every write is
// a compare-and-swap against Version.
type Account interface {
	ID() uuid.UUID
	Kind() enums.LedgerAccountKind
	Balance() decimal.Decimal
	Version() int64

	swap(ctx context.Context, repo Repository, next decimal.Decimal) error
}

// BalanceAccount adapts a ledger_accounts row.
type BalanceAccount struct {
	row *models.LedgerAccount
}

func NewBalanceAccount(row *models.LedgerAccount) *BalanceAccount {
	return &BalanceAccount{row: row}
}

func (a *BalanceAccount) ID() uuid.UUID                 { return a.row.ID }
func (a *BalanceAccount) Kind() enums.LedgerAccountKind { return a.row.Kind }
func (a *BalanceAccount) Balance() decimal.Decimal      { return a.row.Balance }
func (a *BalanceAccount) Version() int64                { return a.row.Version }

// Row exposes the underlying model for read paths.
func (a *BalanceAccount) Row() models.LedgerAccount { return *a.row }

func (a *BalanceAccount) swap(ctx context.Context, repo Repository, next decimal.Decimal) error {
	if err := repo.UpdateBalanceCAS(ctx, a.row.ID, a.row.Version, next); err != nil {
		return err
	}
	a.row.Balance = next
	a.row.Version++
	return nil
}

// CouponCounter exposes a coupon's remaining uses as a balance. Consuming a use is a
// posting of -1, so the usage cap is the same non-negative invariant every account obeys.
type CouponCounter struct {
	row *models.Coupon
}

func NewCouponCounter(row *models.Coupon) *CouponCounter {
	return &CouponCounter{row: row}
}

func (c *CouponCounter) ID() uuid.UUID                 { return c.row.ID }
func (c *CouponCounter) Kind() enums.LedgerAccountKind { return enums.LedgerAccountCoupon }
func (c *CouponCounter) Version() int64                { return c.row.Version }

func (c *CouponCounter) Balance() decimal.Decimal {
	return decimal.NewFromInt(int64(c.row.MaxUses - c.row.CurrentUses))
}

// Row exposes the underlying model for pricing decisions.
func (c *CouponCounter) Row() models.Coupon { return *c.row }

func (c *CouponCounter) swap(ctx context.Context, repo Repository, next decimal.Decimal) error {
	uses := c.row.MaxUses - int(next.IntPart())
	if uses < 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "coupon has no recorded uses to release")
	}
	if err := repo.UpdateCouponUsesCAS(ctx, c.row.ID, c.row.Version, uses); err != nil {
		return err
	}
	c.row.CurrentUses = uses
	c.row.Version++
	return nil
}
