package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// Repository manages persistence for balance accounts, entries, coupons and inventory.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindAccount(ctx context.Context, id uuid.UUID) (*models.LedgerAccount, error)
	FindOwnedAccount(ctx context.Context, userID uuid.UUID, kind enums.LedgerAccountKind) (*models.LedgerAccount, error)
	FindGiftCardByCode(ctx context.Context, code string) (*models.LedgerAccount, error)
	CreateAccount(ctx context.Context, account *models.LedgerAccount) error
	UpdateBalanceCAS(ctx context.Context, id uuid.UUID, expectedVersion int64, balance decimal.Decimal) error

	InsertEntry(ctx context.Context, entry *models.LedgerEntry) error
	ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]models.LedgerEntry, error)
	ListEntriesByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
	SumEntries(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)

	FindCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	FindCoupon(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	UpdateCouponUsesCAS(ctx context.Context, id uuid.UUID, expectedVersion int64, uses int) error

	FindInventory(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]models.InventoryRecord, error)
	UpdateInventoryCAS(ctx context.Context, productID uuid.UUID, expectedVersion int64, availableQty int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindAccount(ctx context.Context, id uuid.UUID) (*models.LedgerAccount, error) {
	var account models.LedgerAccount
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindOwnedAccount(ctx context.Context, userID uuid.UUID, kind enums.LedgerAccountKind) (*models.LedgerAccount, error) {
	var account models.LedgerAccount
	err := r.db.WithContext(ctx).
		Where("owner_user_id = ? AND kind = ?", userID, kind).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindGiftCardByCode(ctx context.Context, code string) (*models.LedgerAccount, error) {
	var account models.LedgerAccount
	err := r.db.WithContext(ctx).
		Where("code = ? AND kind = ?", code, enums.LedgerAccountGiftCard).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateAccount inserts the account unless one already exists for the same owner and kind,
// in which case the insert is a no-op and the caller should re-read.
func (r *repository) CreateAccount(ctx context.Context, account *models.LedgerAccount) error {
	if account.Version == 0 {
		account.Version = 1
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(account).Error
}

func (r *repository) UpdateBalanceCAS(ctx context.Context, id uuid.UUID, expectedVersion int64, balance decimal.Decimal) error {
	return dbpkg.CompareAndSwap(r.db.WithContext(ctx), &models.LedgerAccount{}, id, expectedVersion, map[string]any{
		"balance": balance,
	})
}

func (r *repository) InsertEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *repository) ListEntriesByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

func (r *repository) SumEntries(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("account_id = ?", accountID).
		Pluck("amount", &amounts).Error; err != nil {
		return decimal.Zero, err
	}
	return decimal.Sum(decimal.Zero, amounts...), nil
}

func (r *repository) FindCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) FindCoupon(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) UpdateCouponUsesCAS(ctx context.Context, id uuid.UUID, expectedVersion int64, uses int) error {
	return dbpkg.CompareAndSwap(r.db.WithContext(ctx), &models.Coupon{}, id, expectedVersion, map[string]any{
		"current_uses": uses,
	}, dbpkg.Where("? <= max_uses", uses))
}

func (r *repository) FindInventory(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]models.InventoryRecord, error) {
	out := make(map[uuid.UUID]models.InventoryRecord, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	var rows []models.InventoryRecord
	if err := r.db.WithContext(ctx).Where("product_id IN ?", productIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ProductID] = row
	}
	return out, nil
}

func (r *repository) UpdateInventoryCAS(ctx context.Context, productID uuid.UUID, expectedVersion int64, availableQty int) error {
	if availableQty < 0 {
		return fmt.Errorf("inventory for %s would go negative", productID)
	}
	res := r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("product_id = ? AND version = ?", productID, expectedVersion).
		Updates(map[string]any{
			"available_qty": availableQty,
			"version":       gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("update inventory: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return dbpkg.ErrStaleWrite
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func sortedProductIDs(quantities map[uuid.UUID]int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
