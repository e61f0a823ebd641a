package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
)

func TestProductsReturnsKnownRowsOnly(t *testing.T) {
	db := dbtest.New(t)
	deletedAt := time.Now().UTC()
	active := models.Product{SKU: "TEE-1", Name: "Tee", Price: decimal.RequireFromString("10.00"), IsActive: true}
	gone := models.Product{SKU: "MUG-1", Name: "Mug", Price: decimal.RequireFromString("5.00"), IsActive: true, DeletedAt: &deletedAt}
	if err := db.Create(&active).Error; err != nil {
		t.Fatalf("seed active: %v", err)
	}
	if err := db.Create(&gone).Error; err != nil {
		t.Fatalf("seed deleted: %v", err)
	}

	repo := NewRepository(db)
	rows, err := repo.Products(context.Background(), []uuid.UUID{active.ID, gone.ID, uuid.New()})
	if err != nil {
		t.Fatalf("products: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if !rows[active.ID].Purchasable() {
		t.Fatalf("expected active product to be purchasable")
	}
	if rows[gone.ID].Purchasable() {
		t.Fatalf("expected deleted product to be unpurchasable")
	}

	bySKU, err := repo.FindBySKU(context.Background(), " tee-1 ")
	if err != nil {
		t.Fatalf("find by sku: %v", err)
	}
	if bySKU.ID != active.ID {
		t.Fatalf("unexpected product %s", bySKU.ID)
	}
}
