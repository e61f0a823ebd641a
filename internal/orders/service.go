package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-settlement/pkg/pagination"
)

// Service drives the order state machine:
//
//	PENDING -> PAID -> SHIPPED -> DELIVERED
//	PENDING | PAID -> CANCELLED
//
// Every transition is a status and version compare-and-swap.
type Service interface {
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	Cancel(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*models.Order, error)
	Expire(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Ship(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Deliver(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type service struct {
	repo      Repository
	tx        dbpkg.TxRunner
	outbox    outbox.Emitter
	inventory InventoryReleaser
	policy    dbpkg.RetryPolicy
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, tx dbpkg.TxRunner, emitter outbox.Emitter, inventory InventoryReleaser, policy dbpkg.RetryPolicy, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory releaser required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		outbox:    emitter,
		inventory: inventory,
		policy:    policy,
		logg:      logg,
		now:       time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(order) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	list, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return list, nil
}

func (s *service) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	rows, err := s.repo.FindPendingBefore(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending orders")
	}
	return rows, nil
}

// Cancel moves a PENDING or PAID order to CANCELLED and restores its inventory in the same
// commit. Cancelling twice reports ALREADY_TERMINAL and never restocks again.
func (s *service) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	return s.cancel(ctx, actor, orderID, enums.EventOrderCancelled, reason)
}

// Expire cancels a PENDING order whose payment window lapsed.
func (s *service) Expire(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var result *models.Order
	err := dbpkg.RunWithRetry(ctx, s.tx, s.policy, s.onAttempt(ctx, orderID), func(tx *gorm.DB) error {
		order, err := s.load(ctx, s.repo.WithTx(tx), orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders expire").
				WithDetails(map[string]any{"status": order.Status})
		}
		result, err = s.cancelTx(ctx, tx, System(), order, enums.EventOrderExpired, "payment window expired")
		return err
	})
	if err != nil {
		return nil, dbpkg.MapConflict(err, "order changed concurrently")
	}
	return result, nil
}

func (s *service) cancel(ctx context.Context, actor Actor, orderID uuid.UUID, event enums.OutboxEventType, reason string) (*models.Order, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	var result *models.Order
	err := dbpkg.RunWithRetry(ctx, s.tx, s.policy, s.onAttempt(ctx, orderID), func(tx *gorm.DB) error {
		order, err := s.load(ctx, s.repo.WithTx(tx), orderID)
		if err != nil {
			return err
		}
		if !actor.CanAccess(order) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		result, err = s.cancelTx(ctx, tx, actor, order, event, reason)
		return err
	})
	if err != nil {
		return nil, dbpkg.MapConflict(err, "order changed concurrently")
	}
	return result, nil
}

func (s *service) cancelTx(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, event enums.OutboxEventType, reason string) (*models.Order, error) {
	switch order.Status {
	case enums.OrderStatusCancelled:
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyTerminal, "order already cancelled").
			WithDetails(map[string]any{"order_id": order.ID})
	case enums.OrderStatusPending, enums.OrderStatusPaid:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
			WithDetails(map[string]any{"status": order.Status})
	}

	from := order.Status
	now := s.now().UTC()
	if err := s.repo.WithTx(tx).Transition(ctx, order, enums.OrderStatusCancelled, map[string]any{"cancelled_at": now}); err != nil {
		return nil, err
	}
	order.CancelledAt = &now

	if err := s.inventory.Release(ctx, tx, Quantities(order)); err != nil {
		return nil, err
	}
	if err := s.emitStatus(ctx, tx, actor, order, from, event, reason); err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "status", order.Status), "order cancelled")
	return order, nil
}

func (s *service) Ship(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.advance(ctx, orderID, enums.OrderStatusPaid, enums.OrderStatusShipped, "shipped_at", enums.EventOrderShipped)
}

func (s *service) Deliver(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.advance(ctx, orderID, enums.OrderStatusShipped, enums.OrderStatusDelivered, "delivered_at", enums.EventOrderDelivered)
}

func (s *service) advance(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, stampColumn string, event enums.OutboxEventType) (*models.Order, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	var result *models.Order
	err := dbpkg.RunWithRetry(ctx, s.tx, s.policy, s.onAttempt(ctx, orderID), func(tx *gorm.DB) error {
		order, err := s.load(ctx, s.repo.WithTx(tx), orderID)
		if err != nil {
			return err
		}
		if order.Status != from {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order must be %s to become %s", from, to)).
				WithDetails(map[string]any{"status": order.Status})
		}
		now := s.now().UTC()
		if err := s.repo.WithTx(tx).Transition(ctx, order, to, map[string]any{stampColumn: now}); err != nil {
			return err
		}
		stamp(order, to, now)
		result = order
		return s.emitStatus(ctx, tx, Admin(), order, from, event, "")
	})
	if err != nil {
		return nil, dbpkg.MapConflict(err, "order changed concurrently")
	}
	s.logg.Info(s.logg.WithField(ctx, "status", to), "order transitioned")
	return result, nil
}

// MarkPaidTx moves a PENDING order to PAID inside the payment confirmation commit.
func (s *service) MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	order, err := s.load(ctx, s.repo.WithTx(tx), orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": order.Status})
	}
	now := s.now().UTC()
	if err := s.repo.WithTx(tx).Transition(ctx, order, enums.OrderStatusPaid, map[string]any{"paid_at": now}); err != nil {
		return nil, err
	}
	order.PaidAt = &now
	if err := s.emitStatus(ctx, tx, Actor{UserID: order.UserID, Role: RoleCustomer}, order, enums.OrderStatusPending, enums.EventOrderPaid, ""); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) emitStatus(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, from enums.OrderStatus, event enums.OutboxEventType, reason string) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role},
		Data: payloads.OrderStatusChangedEvent{
			OrderID:    order.ID,
			UserID:     order.UserID,
			FromStatus: from,
			ToStatus:   order.Status,
			ChangedAt:  s.now().UTC(),
			Reason:     reason,
		},
	})
}

func (s *service) onAttempt(ctx context.Context, orderID uuid.UUID) func(int, error) {
	return func(attempt int, err error) {
		if err != nil && dbpkg.IsRetryable(err) {
			logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": orderID.String(), "attempt": attempt})
			s.logg.Warn(logCtx, "order transition conflict")
		}
	}
}

func stamp(order *models.Order, status enums.OrderStatus, at time.Time) {
	switch status {
	case enums.OrderStatusPaid:
		order.PaidAt = &at
	case enums.OrderStatusShipped:
		order.ShippedAt = &at
	case enums.OrderStatusDelivered:
		order.DeliveredAt = &at
	case enums.OrderStatusCancelled:
		order.CancelledAt = &at
	}
}
