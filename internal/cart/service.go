package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/internal/catalog"
	dbpkg "github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
)

// MaxLineQty caps the quantity of a single cart line.
const MaxLineQty = 99

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes cart editing operations.
type Service interface {
	Get(ctx context.Context, identity Identity) (*models.Cart, error)
	UpsertLine(ctx context.Context, identity Identity, input LineInput) (*models.Cart, error)
	RemoveLine(ctx context.Context, identity Identity, productID uuid.UUID) (*models.Cart, error)
	ClearTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error
}

// LineInput sets the quantity of one product in the cart.
type LineInput struct {
	ProductID uuid.UUID
	Qty       int
}

type service struct {
	repo    CartRepository
	tx      txRunner
	catalog catalog.Catalog
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, products catalog.Catalog) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("catalog required")
	}
	return &service{repo: repo, tx: tx, catalog: products}, nil
}

// Get returns the identity's cart, or an empty unsaved cart when none exists yet.
func (s *service) Get(ctx context.Context, identity Identity) (*models.Cart, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	cart, err := s.repo.FindByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return emptyCart(identity), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return cart, nil
}

// UpsertLine adds the product or replaces its quantity, snapshotting the current price.
func (s *service) UpsertLine(ctx context.Context, identity Identity, input LineInput) (*models.Cart, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Qty < 1 || input.Qty > MaxLineQty {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("qty must be between 1 and %d", MaxLineQty))
	}

	var result *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		product, err := s.catalog.WithTx(tx).Product(ctx, input.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
		}
		if !product.Purchasable() {
			return pkgerrors.New(pkgerrors.CodeValidation, "product is not available").
				WithDetails(map[string]any{"product_id": product.ID})
		}

		repo := s.repo.WithTx(tx)
		cart, err := s.ensureCart(ctx, repo, identity)
		if err != nil {
			return err
		}
		line := &models.CartLine{
			CartID:            cart.ID,
			ProductID:         product.ID,
			Qty:               input.Qty,
			UnitPriceSnapshot: product.Price,
			Position:          len(cart.Lines),
		}
		if err := repo.UpsertLine(ctx, line); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart line")
		}
		if err := repo.Touch(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "touch cart")
		}
		result, err = repo.FindByIdentity(ctx, identity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveLine drops the product from the cart.
func (s *service) RemoveLine(ctx context.Context, identity Identity, productID uuid.UUID) (*models.Cart, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	var result *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindByIdentity(ctx, identity)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
		}
		removed, err := repo.DeleteLine(ctx, cart.ID, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete cart line")
		}
		if !removed {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
		}
		result, err = repo.FindByIdentity(ctx, identity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ClearTx empties the cart inside the caller's transaction.
func (s *service) ClearTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return s.repo.WithTx(tx).ClearLines(ctx, cartID)
}

func (s *service) ensureCart(ctx context.Context, repo CartRepository, identity Identity) (*models.Cart, error) {
	cart, err := repo.FindByIdentity(ctx, identity)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	created, err := repo.Create(ctx, emptyCart(identity))
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "cart created concurrently")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create cart")
	}
	return created, nil
}

func emptyCart(identity Identity) *models.Cart {
	cart := &models.Cart{Lines: []models.CartLine{}}
	if identity.UserID != nil {
		userID := *identity.UserID
		cart.UserID = &userID
	} else {
		token := identity.SessionToken
		cart.SessionToken = &token
	}
	return cart
}
