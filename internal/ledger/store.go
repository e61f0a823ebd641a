package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/payloads"
)

// Posting is a signed movement against one account. Negative amounts debit.
type Posting struct {
	Account     Account
	Amount      decimal.Decimal
	OrderID     *uuid.UUID
	ReferenceID uuid.UUID
	Purpose     enums.LedgerPurpose
}

// IdempotencyKey identifies the posting across retries and replays.
func (p Posting) IdempotencyKey() string {
	return EntryKey(p.ReferenceID, p.Purpose)
}

// EntryKey builds the unique key stored on every ledger entry.
func EntryKey(referenceID uuid.UUID, purpose enums.LedgerPurpose) string {
	return fmt.Sprintf("%s:%s", referenceID, purpose)
}

// StockShortage describes one product that cannot cover the requested quantity.
type StockShortage struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// DebitInput is a standalone wallet debit outside checkout.
type DebitInput struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	ReferenceID uuid.UUID
}

// Statement is an account balance with its most recent entries.
type Statement struct {
	AccountID *uuid.UUID              `json:"account_id,omitempty"`
	Kind      enums.LedgerAccountKind `json:"kind"`
	Balance   decimal.Decimal         `json:"balance"`
	Entries   []models.LedgerEntry    `json:"entries"`
}

// Store owns every balance-bearing row. All writes happen inside the caller's transaction
// except DebitWallet, which runs its own bounded-retry unit of work.
type Store struct {
	repo    Repository
	tx      dbpkg.TxRunner
	emitter outbox.Emitter
	policy  dbpkg.RetryPolicy
	logg    *logger.Logger
}

func NewStore(repo Repository, tx dbpkg.TxRunner, emitter outbox.Emitter, policy dbpkg.RetryPolicy, logg *logger.Logger) (*Store, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Store{repo: repo, tx: tx, emitter: emitter, policy: policy, logg: logg}, nil
}

// Post applies postings in account id order. Each posting writes one entry keyed by its
// reference and purpose, then swaps the account balance against its version. A replayed
// key fails with ALREADY_SETTLED and a concurrent writer with db.ErrStaleWrite.
func (s *Store) Post(ctx context.Context, tx *gorm.DB, postings ...Posting) ([]models.LedgerEntry, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	ordered := make([]Posting, 0, len(postings))
	for _, p := range postings {
		if p.Account == nil {
			return nil, errors.New("posting account required")
		}
		if p.Amount.IsZero() {
			continue
		}
		ordered = append(ordered, p)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Account.ID().String() < ordered[j].Account.ID().String()
	})

	repo := s.repo.WithTx(tx)
	entries := make([]models.LedgerEntry, 0, len(ordered))
	for _, p := range ordered {
		account := p.Account
		next := account.Balance().Add(p.Amount)
		if next.IsNegative() {
			return nil, insufficient(account, p.Amount.Neg())
		}

		entryType := enums.LedgerEntryDebit
		if p.Amount.IsPositive() {
			entryType = enums.LedgerEntryCredit
		}
		entry := models.LedgerEntry{
			AccountID:      account.ID(),
			AccountKind:    account.Kind(),
			EntryType:      entryType,
			Amount:         p.Amount,
			BalanceAfter:   next,
			OrderID:        p.OrderID,
			ReferenceID:    p.ReferenceID,
			Purpose:        p.Purpose,
			IdempotencyKey: p.IdempotencyKey(),
		}
		if err := repo.InsertEntry(ctx, &entry); err != nil {
			if isDuplicateEntry(err) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeAlreadySettled, err, "ledger entry already recorded").
					WithDetails(map[string]any{"idempotency_key": entry.IdempotencyKey})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert ledger entry")
		}
		if err := account.swap(ctx, repo, next); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func insufficient(account Account, requested decimal.Decimal) error {
	details := map[string]any{
		"account_id": account.ID(),
		"kind":       account.Kind(),
		"balance":    account.Balance(),
		"requested":  requested,
	}
	if account.Kind() == enums.LedgerAccountCoupon {
		return pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon usage limit reached").WithDetails(details)
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientBalance, fmt.Sprintf("%s balance is insufficient", account.Kind())).
		WithDetails(details)
}

func isDuplicateEntry(err error) bool {
	return dbpkg.IsUniqueViolation(err, "ux_ledger_entries_idem") ||
		dbpkg.IsUniqueViolation(err, "ledger_entries.idempotency_key")
}

// Wallet returns the user's wallet, opening an empty one on first use.
func (s *Store) Wallet(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*BalanceAccount, error) {
	return s.owned(ctx, tx, userID, enums.LedgerAccountWallet)
}

// Loyalty returns the user's loyalty ledger, opening an empty one on first use.
func (s *Store) Loyalty(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*BalanceAccount, error) {
	return s.owned(ctx, tx, userID, enums.LedgerAccountLoyalty)
}

func (s *Store) owned(ctx context.Context, tx *gorm.DB, userID uuid.UUID, kind enums.LedgerAccountKind) (*BalanceAccount, error) {
	repo := s.repo.WithTx(tx)
	row, err := repo.FindOwnedAccount(ctx, userID, kind)
	if err == nil {
		return NewBalanceAccount(row), nil
	}
	if !isNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load account")
	}

	owner := userID
	if err := repo.CreateAccount(ctx, &models.LedgerAccount{
		Kind:           kind,
		OwnerUserID:    &owner,
		Balance:        decimal.Zero,
		InitialBalance: decimal.Zero,
		Version:        1,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open account")
	}
	row, err = repo.FindOwnedAccount(ctx, userID, kind)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload account")
	}
	return NewBalanceAccount(row), nil
}

// GiftCard looks up a gift card by its redemption code.
func (s *Store) GiftCard(ctx context.Context, tx *gorm.DB, code string) (*BalanceAccount, error) {
	code = strings.TrimSpace(code)
	row, err := s.repo.WithTx(tx).FindGiftCardByCode(ctx, code)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gift card not found").
				WithDetails(map[string]any{"code": code})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load gift card")
	}
	return NewBalanceAccount(row), nil
}

// Account loads a balance account by id.
func (s *Store) Account(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*BalanceAccount, error) {
	row, err := s.repo.WithTx(tx).FindAccount(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ledger account")
	}
	return NewBalanceAccount(row), nil
}

// Coupon looks up a coupon counter by code. Unknown codes yield (nil, nil).
func (s *Store) Coupon(ctx context.Context, tx *gorm.DB, code string) (*CouponCounter, error) {
	row, err := s.repo.WithTx(tx).FindCouponByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load coupon")
	}
	return NewCouponCounter(row), nil
}

// CouponByID loads a coupon counter by id.
func (s *Store) CouponByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*CouponCounter, error) {
	row, err := s.repo.WithTx(tx).FindCoupon(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load coupon")
	}
	return NewCouponCounter(row), nil
}

// Reserve decrements available stock for every product, in product id order. The whole
// reservation fails with INSUFFICIENT_STOCK listing every short product.
func (s *Store) Reserve(ctx context.Context, tx *gorm.DB, quantities map[uuid.UUID]int) error {
	ids := sortedProductIDs(quantities)
	repo := s.repo.WithTx(tx)
	records, err := repo.FindInventory(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load inventory")
	}

	var shortages []StockShortage
	for _, id := range ids {
		want := quantities[id]
		if want <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		rec, ok := records[id]
		if !ok || rec.AvailableQty < want {
			shortages = append(shortages, StockShortage{ProductID: id, Requested: want, Available: rec.AvailableQty})
		}
	}
	if len(shortages) > 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(shortages)
	}

	for _, id := range ids {
		rec := records[id]
		if err := repo.UpdateInventoryCAS(ctx, id, rec.Version, rec.AvailableQty-quantities[id]); err != nil {
			return err
		}
	}
	return nil
}

// Release returns stock, in product id order.
func (s *Store) Release(ctx context.Context, tx *gorm.DB, quantities map[uuid.UUID]int) error {
	ids := sortedProductIDs(quantities)
	repo := s.repo.WithTx(tx)
	records, err := repo.FindInventory(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load inventory")
	}
	for _, id := range ids {
		qty := quantities[id]
		if qty <= 0 {
			continue
		}
		rec, ok := records[id]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found").
				WithDetails(map[string]any{"product_id": id})
		}
		if err := repo.UpdateInventoryCAS(ctx, id, rec.Version, rec.AvailableQty+qty); err != nil {
			return err
		}
	}
	return nil
}

// DebitWallet removes funds from a wallet outside checkout. Concurrent debits are
// serialized by the version swap; the loser replays against the fresh balance.
func (s *Store) DebitWallet(ctx context.Context, input DebitInput) (*models.LedgerEntry, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Amount.Equal(input.Amount.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimal places")
	}
	if input.ReferenceID == uuid.Nil {
		input.ReferenceID = uuid.New()
	}

	ctx = s.logg.WithUserID(ctx, input.UserID.String())
	var entry models.LedgerEntry
	err := dbpkg.RunWithRetry(ctx, s.tx, s.policy, func(attempt int, err error) {
		if err != nil && dbpkg.IsRetryable(err) {
			s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "wallet debit conflict")
		}
	}, func(tx *gorm.DB) error {
		wallet, err := s.Wallet(ctx, tx, input.UserID)
		if err != nil {
			return err
		}
		entries, err := s.Post(ctx, tx, Posting{
			Account:     wallet,
			Amount:      input.Amount.Neg(),
			ReferenceID: input.ReferenceID,
			Purpose:     enums.LedgerPurposeWalletDebit,
		})
		if err != nil {
			return err
		}
		entry = entries[0]
		return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletDebited,
			AggregateType: enums.AggregateLedgerAccount,
			AggregateID:   wallet.ID(),
			Actor:         &outbox.ActorRef{UserID: &input.UserID, Role: "customer"},
			Data: payloads.WalletDebitedEvent{
				AccountID:    wallet.ID(),
				UserID:       input.UserID,
				ReferenceID:  input.ReferenceID,
				Amount:       input.Amount,
				BalanceAfter: entry.BalanceAfter,
			},
		})
	})
	if err != nil {
		return nil, dbpkg.MapConflict(err, "wallet changed concurrently")
	}
	s.logg.Info(s.logg.WithField(ctx, "amount", input.Amount.String()), "wallet debited")
	return &entry, nil
}

// Statement returns the balance and latest entries for one of the user's accounts.
func (s *Store) Statement(ctx context.Context, userID uuid.UUID, kind enums.LedgerAccountKind, limit int) (*Statement, error) {
	if kind != enums.LedgerAccountWallet && kind != enums.LedgerAccountLoyalty {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "statement kind must be wallet or loyalty")
	}
	row, err := s.repo.FindOwnedAccount(ctx, userID, kind)
	if err != nil {
		if isNotFound(err) {
			return &Statement{Kind: kind, Balance: decimal.Zero, Entries: []models.LedgerEntry{}}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load account")
	}
	entries, err := s.repo.ListEntries(ctx, row.ID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list entries")
	}
	id := row.ID
	return &Statement{AccountID: &id, Kind: kind, Balance: row.Balance, Entries: entries}, nil
}
