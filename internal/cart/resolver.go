package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/internal/catalog"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
)

// RejectReason explains why a cart line was left out of a priced snapshot.
type RejectReason string

const (
	RejectProductMissing  RejectReason = "product_missing"
	RejectProductInactive RejectReason = "product_inactive"
	RejectProductDeleted  RejectReason = "product_deleted"
	RejectInvalidQuantity RejectReason = "invalid_quantity"
)

// PricedLine is a cart line priced from the live catalog.
type PricedLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Qty       int             `json:"qty"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// RejectedLine is a cart line that cannot be purchased.
type RejectedLine struct {
	ProductID uuid.UUID    `json:"product_id"`
	Qty       int          `json:"qty"`
	Reason    RejectReason `json:"reason"`
}

// PricedSnapshot is the authoritative view of a cart at checkout time.
type PricedSnapshot struct {
	CartID     uuid.UUID       `json:"cart_id"`
	Identity   Identity        `json:"-"`
	Lines      []PricedLine    `json:"lines"`
	Rejected   []RejectedLine  `json:"rejected"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	ResolvedAt time.Time       `json:"resolved_at"`
}

// Quantities groups priced quantities by product.
func (s *PricedSnapshot) Quantities() map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(s.Lines))
	for _, line := range s.Lines {
		out[line.ProductID] += line.Qty
	}
	return out
}

// Resolver prices carts against the catalog. It never writes.
type Resolver struct {
	repo    CartRepository
	catalog catalog.Catalog
	now     func() time.Time
}

// NewResolver builds a resolver over the cart repository and catalog.
func NewResolver(repo CartRepository, products catalog.Catalog) (*Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("catalog required")
	}
	return &Resolver{repo: repo, catalog: products, now: time.Now}, nil
}

// Resolve prices the identity's cart outside any transaction.
func (r *Resolver) Resolve(ctx context.Context, identity Identity) (*PricedSnapshot, error) {
	return r.ResolveTx(ctx, nil, identity)
}

// ResolveTx prices the identity's cart using tx for the cart read. Lines whose product is
// missing, inactive or deleted are reported in Rejected; EMPTY_CART is returned when no
// line survives.
func (r *Resolver) ResolveTx(ctx context.Context, tx *gorm.DB, identity Identity) (*PricedSnapshot, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	cart, err := r.repo.WithTx(tx).FindByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}

	ids := make([]uuid.UUID, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		ids = append(ids, line.ProductID)
	}
	products := map[uuid.UUID]models.Product{}
	if len(ids) > 0 {
		products, err = r.catalog.WithTx(tx).Products(ctx, ids)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog products")
		}
	}

	snapshot := &PricedSnapshot{
		CartID:     cart.ID,
		Identity:   identity,
		Lines:      make([]PricedLine, 0, len(cart.Lines)),
		Rejected:   []RejectedLine{},
		Subtotal:   decimal.Zero,
		ResolvedAt: r.now().UTC(),
	}
	for _, line := range cart.Lines {
		product, ok := products[line.ProductID]
		if reason, rejected := rejectReason(product, ok, line.Qty); rejected {
			snapshot.Rejected = append(snapshot.Rejected, RejectedLine{ProductID: line.ProductID, Qty: line.Qty, Reason: reason})
			continue
		}
		total := product.Price.Mul(decimal.NewFromInt(int64(line.Qty))).Round(2)
		snapshot.Lines = append(snapshot.Lines, PricedLine{
			ProductID: product.ID,
			SKU:       product.SKU,
			Name:      product.Name,
			UnitPrice: product.Price,
			Qty:       line.Qty,
			LineTotal: total,
		})
		snapshot.Subtotal = snapshot.Subtotal.Add(total)
	}

	if len(snapshot.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart has no purchasable lines").
			WithDetails(map[string]any{"rejected": snapshot.Rejected})
	}
	return snapshot, nil
}

func rejectReason(product models.Product, found bool, qty int) (RejectReason, bool) {
	switch {
	case !found:
		return RejectProductMissing, true
	case product.DeletedAt != nil:
		return RejectProductDeleted, true
	case !product.IsActive:
		return RejectProductInactive, true
	case qty <= 0:
		return RejectInvalidQuantity, true
	}
	return "", false
}
