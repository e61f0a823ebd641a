package returns

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// Repository persists return requests and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, req *models.ReturnRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ReturnRequest, error)
	Transition(ctx context.Context, req *models.ReturnRequest, to enums.ReturnStatus, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, req *models.ReturnRequest) error {
	if req.Version == 0 {
		req.Version = 1
	}
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var req models.ReturnRequest
	if err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ReturnRequest, error) {
	var rows []models.ReturnRequest
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// Transition swaps the status guarded by the current status and version. APPROVED and
// REJECTED stamp resolved_at; COMPLETED stamps completed_at.
func (r *repository) Transition(ctx context.Context, req *models.ReturnRequest, to enums.ReturnStatus, at time.Time) error {
	updates := map[string]any{"status": to}
	switch to {
	case enums.ReturnStatusApproved, enums.ReturnStatusRejected:
		updates["resolved_at"] = at
	case enums.ReturnStatusCompleted:
		updates["completed_at"] = at
	}
	err := dbpkg.CompareAndSwap(r.db.WithContext(ctx), &models.ReturnRequest{}, req.ID, req.Version, updates,
		dbpkg.Where("status = ?", req.Status))
	if err != nil {
		return fmt.Errorf("transition return %s to %s: %w", req.ID, to, err)
	}
	req.Status = to
	req.Version++
	switch to {
	case enums.ReturnStatusApproved, enums.ReturnStatusRejected:
		req.ResolvedAt = &at
	case enums.ReturnStatusCompleted:
		req.CompletedAt = &at
	}
	return nil
}
