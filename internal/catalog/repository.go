package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
)

// Catalog is the read-only product source checkout prices against.
type Catalog interface {
	WithTx(tx *gorm.DB) Catalog
	Products(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	Product(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Repository reads products through GORM. Soft-deleted rows are still returned so callers
// can report why a line was dropped.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) Catalog {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Products loads the requested products keyed by id. Missing ids are absent from the map.
func (r *Repository) Products(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// Product loads a single product.
func (r *Repository) Product(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindBySKU loads a product by SKU.
func (r *Repository) FindBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("sku = ?", strings.ToUpper(strings.TrimSpace(sku))).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}
