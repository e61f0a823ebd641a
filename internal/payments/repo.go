package payments

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

// Repository persists payment intents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.PaymentIntent, error)
	FindActiveByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error)
	Resolve(ctx context.Context, intent *models.PaymentIntent, status enums.PaymentIntentStatus, reference, reason *string, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payment intent repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	if intent.Version == 0 {
		intent.Version = 1
	}
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindActiveByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status <> ?", orderID, enums.PaymentIntentFailed).
		Order("created_at DESC").
		First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// Resolve moves a REQUIRES_CONFIRMATION intent to a terminal status exactly once.
func (r *repository) Resolve(ctx context.Context, intent *models.PaymentIntent, status enums.PaymentIntentStatus, reference, reason *string, at time.Time) error {
	updates := map[string]any{
		"status":            status,
		"gateway_reference": reference,
		"failure_reason":    reason,
	}
	if status == enums.PaymentIntentCompleted {
		updates["confirmed_at"] = at
	}
	err := dbpkg.CompareAndSwap(r.db.WithContext(ctx), &models.PaymentIntent{}, intent.ID, intent.Version, updates,
		dbpkg.Where("status = ?", enums.PaymentIntentRequiresConfirmation))
	if err != nil {
		return fmt.Errorf("resolve payment intent %s: %w", intent.ID, err)
	}
	intent.Status = status
	intent.GatewayReference = reference
	intent.FailureReason = reason
	if status == enums.PaymentIntentCompleted {
		intent.ConfirmedAt = &at
	}
	intent.Version++
	return nil
}
