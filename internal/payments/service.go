package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/internal/orders"
	dbpkg "github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/payloads"
)

const reasonOrderNotPayable = "order_not_payable"

// Service manages payment intents for settled orders.
type Service interface {
	CreateIntent(ctx context.Context, actor orders.Actor, input CreateIntentInput) (*models.PaymentIntent, error)
	ConfirmIntent(ctx context.Context, actor orders.Actor, intentID uuid.UUID, input ConfirmInput) (*models.PaymentIntent, error)
	Get(ctx context.Context, actor orders.Actor, intentID uuid.UUID) (*models.PaymentIntent, error)
}

// CreateIntentInput carries the client supplied idempotency key and the amount it expects to pay.
type CreateIntentInput struct {
	OrderID        uuid.UUID
	Amount         decimal.Decimal
	IdempotencyKey string
}

// ConfirmInput holds the opaque payment details forwarded to the gateway.
type ConfirmInput struct {
	PaymentToken string
}

type paidMarker interface {
	MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
}

// ServiceParams groups the payment service collaborators.
type ServiceParams struct {
	Repo    Repository
	Orders  orders.Repository
	Payer   paidMarker
	Gateway Gateway
	Tx      dbpkg.TxRunner
	Outbox  outbox.Emitter
	Policy  dbpkg.RetryPolicy
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	orders  orders.Repository
	payer   paidMarker
	gateway Gateway
	tx      dbpkg.TxRunner
	outbox  outbox.Emitter
	policy  dbpkg.RetryPolicy
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the payment intent service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment intent repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Payer == nil {
		return nil, fmt.Errorf("order payer required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repo,
		orders:  params.Orders,
		payer:   params.Payer,
		gateway: params.Gateway,
		tx:      params.Tx,
		outbox:  params.Outbox,
		policy:  params.Policy,
		logg:    params.Logger,
		now:     time.Now,
	}, nil
}

// CreateIntent opens a payment intent for a PENDING order. Retrying with the same key
// returns the intent created the first time; reusing it for another order or amount fails.
func (s *service) CreateIntent(ctx context.Context, actor orders.Actor, input CreateIntentInput) (*models.PaymentIntent, error) {
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	var result *models.PaymentIntent
	err := dbpkg.RunWithRetry(ctx, s.tx, s.policy, s.onAttempt(ctx), func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindByIdempotencyKey(ctx, key)
		switch {
		case err == nil:
			result, err = replayCreate(existing, input)
			return err
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment intent")
		}

		order, err := s.loadOrder(ctx, tx, actor, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
				WithDetails(map[string]any{"status": order.Status})
		}
		if !input.Amount.Equal(order.Total) {
			return pkgerrors.New(pkgerrors.CodeValidation, "amount must equal the order total").
				WithDetails(map[string]any{"amount": input.Amount.StringFixed(2), "order_total": order.Total.StringFixed(2)})
		}

		active, err := repo.FindActiveByOrder(ctx, order.ID)
		switch {
		case err == nil:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already has an active payment intent").
				WithDetails(map[string]any{"payment_intent_id": active.ID})
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load active payment intent")
		}

		intent := &models.PaymentIntent{
			OrderID:        order.ID,
			IdempotencyKey: key,
			Amount:         order.Total,
			Status:         enums.PaymentIntentRequiresConfirmation,
			Version:        1,
		}
		if err := repo.Create(ctx, intent); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				// a concurrent create won; the next attempt replays it
				return dbpkg.ErrStaleWrite
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment intent")
		}
		result = intent
		return nil
	})
	if err != nil {
		return nil, dbpkg.MapConflict(err, "payment intent changed concurrently")
	}
	s.logg.Info(s.logg.WithField(ctx, "payment_intent_id", result.ID.String()), "payment intent ready")
	return result, nil
}

func replayCreate(existing *models.PaymentIntent, input CreateIntentInput) (*models.PaymentIntent, error) {
	if existing.OrderID != input.OrderID || !existing.Amount.Equal(input.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used for a different request").
			WithDetails(map[string]any{"payment_intent_id": existing.ID})
	}
	if existing.Status == enums.PaymentIntentFailed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment intent for this key has failed, use a new key").
			WithDetails(map[string]any{"payment_intent_id": existing.ID})
	}
	return existing, nil
}

// ConfirmIntent charges the gateway and settles the intent. The gateway is keyed by intent
// id, so repeated confirmations never charge twice; once terminal the stored intent is
// returned unchanged.
func (s *service) ConfirmIntent(ctx context.Context, actor orders.Actor, intentID uuid.UUID, input ConfirmInput) (*models.PaymentIntent, error) {
	intent, err := s.Get(ctx, actor, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status.IsTerminal() {
		return intent, nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"payment_intent_id": intent.ID.String(),
		"order_id":          intent.OrderID.String(),
	})

	charge, err := s.gateway.Charge(ctx, ChargeRequest{
		IdempotencyKey: intent.ID.String(),
		Amount:         intent.Amount,
		PaymentToken:   input.PaymentToken,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logg.Error(ctx, "payment gateway charge failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable")
	}

	var result *models.PaymentIntent
	err = dbpkg.RunWithRetry(ctx, s.tx, s.policy, s.onAttempt(ctx), func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, intent.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment intent")
		}
		result = current
		if current.Status.IsTerminal() {
			return nil
		}
		return s.settleTx(ctx, tx, current, charge)
	})
	if err != nil {
		return nil, dbpkg.MapConflict(err, "payment intent changed concurrently")
	}
	s.logg.Info(s.logg.WithField(ctx, "status", result.Status), "payment intent confirmed")
	return result, nil
}

func (s *service) settleTx(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent, charge ChargeResult) error {
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()
	reference := charge.Reference

	if !charge.Approved {
		reason := charge.DeclineReason
		if reason == "" {
			reason = "declined"
		}
		if err := repo.Resolve(ctx, intent, enums.PaymentIntentFailed, &reference, &reason, now); err != nil {
			return err
		}
		return s.emitFailed(ctx, tx, intent, reason)
	}

	if _, err := s.payer.MarkPaidTx(ctx, tx, intent.OrderID); err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			return err
		}
		reason := reasonOrderNotPayable
		s.logg.Warn(s.logg.WithField(ctx, "gateway_reference", reference), "charge approved for an order that is no longer payable")
		if err := repo.Resolve(ctx, intent, enums.PaymentIntentFailed, &reference, &reason, now); err != nil {
			return err
		}
		if err := s.emitFailed(ctx, tx, intent, reason); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundRequired,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   intent.ID,
			Data: payloads.RefundRequiredEvent{
				PaymentIntentID:  intent.ID,
				OrderID:          intent.OrderID,
				Amount:           intent.Amount,
				GatewayReference: reference,
				Reason:           reason,
			},
		})
	}
	return repo.Resolve(ctx, intent, enums.PaymentIntentCompleted, &reference, nil, now)
}

func (s *service) Get(ctx context.Context, actor orders.Actor, intentID uuid.UUID) (*models.PaymentIntent, error) {
	if intentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	intent, err := s.repo.FindByID(ctx, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment intent")
	}
	if _, err := s.loadOrder(ctx, nil, actor, intent.OrderID); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
		}
		return nil, err
	}
	return intent, nil
}

func (s *service) loadOrder(ctx context.Context, tx *gorm.DB, actor orders.Actor, orderID uuid.UUID) (*models.Order, error) {
	repo := s.orders
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !actor.CanAccess(order) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) emitFailed(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent, reason string) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePaymentIntent,
		AggregateID:   intent.ID,
		Data: payloads.PaymentFailedEvent{
			PaymentIntentID: intent.ID,
			OrderID:         intent.OrderID,
			Amount:          intent.Amount,
			Reason:          reason,
		},
	})
}

func (s *service) onAttempt(ctx context.Context) func(int, error) {
	return func(attempt int, err error) {
		if err != nil && dbpkg.IsRetryable(err) {
			s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "payment intent conflict")
		}
	}
}
