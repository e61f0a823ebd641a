package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	"github.com/angelmondragon/storefront-settlement/internal/orders"
	dbpkg "github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/payloads"
)

// Service settles return requests and reverses instrument debits of cancelled orders.
// Every ledger movement is keyed by the return or order id, so replays surface
// ALREADY_SETTLED instead of moving money twice.
type Service interface {
	RequestReturn(ctx context.Context, actor orders.Actor, input RequestInput) (*models.ReturnRequest, error)
	Get(ctx context.Context, actor orders.Actor, returnID uuid.UUID) (*models.ReturnRequest, error)
	Approve(ctx context.Context, returnID uuid.UUID) (*models.ReturnRequest, error)
	Reject(ctx context.Context, returnID uuid.UUID) (*models.ReturnRequest, error)
	Complete(ctx context.Context, returnID uuid.UUID) (*models.ReturnRequest, error)
	ReverseCancelledOrder(ctx context.Context, orderID uuid.UUID) (*Reversal, error)
}

// ItemInput names an order line and how many units go back.
type ItemInput struct {
	OrderLineID uuid.UUID
	Qty         int
}

type RequestInput struct {
	OrderID      uuid.UUID
	Items        []ItemInput
	RefundAmount decimal.Decimal
	Reason       string
}

// Reversal summarises what ReverseCancelledOrder gave back.
type Reversal struct {
	Order   *models.Order
	Entries []models.LedgerEntry
	Event   payloads.OrderReversedEvent
}

type ledgerStore interface {
	Post(ctx context.Context, tx *gorm.DB, postings ...ledger.Posting) ([]models.LedgerEntry, error)
	Wallet(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*ledger.BalanceAccount, error)
	Loyalty(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*ledger.BalanceAccount, error)
	Account(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*ledger.BalanceAccount, error)
	CouponByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*ledger.CouponCounter, error)
	Release(ctx context.Context, tx *gorm.DB, quantities map[uuid.UUID]int) error
}

type ServiceParams struct {
	Repo   Repository
	Orders orders.Repository
	Ledger ledgerStore
	Tx     dbpkg.TxRunner
	Outbox outbox.Emitter
	Policy dbpkg.RetryPolicy
	Logger *logger.Logger
}

type service struct {
	repo   Repository
	orders orders.Repository
	ledger ledgerStore
	tx     dbpkg.TxRunner
	outbox outbox.Emitter
	policy dbpkg.RetryPolicy
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("returns repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger store required")
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
		repo:   params.Repo,
		orders: params.Orders,
		ledger: params.Ledger,
		tx:     params.Tx,
		outbox: params.Outbox,
		policy: params.Policy,
		logg:   params.Logger,
		now:    time.Now,
	}, nil
}

// RequestReturn opens a PENDING return for a DELIVERED order. The refund may not exceed
// what the buyer paid across money instruments minus refunds already requested.
func (s *service) RequestReturn(ctx context.Context, actor orders.Actor, input RequestInput) (*models.ReturnRequest, error) {
	if err := validateRequest(input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	var result *models.ReturnRequest
	err := dbpkg.RunWithRetry(ctx, s.tx, s.policy, s.onAttempt(ctx), func(tx *gorm.DB) error {
		order, err := s.loadOrder(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		if !actor.CanAccess(order) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.UserID == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "guest orders cannot be refunded to a wallet")
		}
		if order.Status != enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only delivered orders can be returned").
				WithDetails(map[string]any{"status": order.Status})
		}

		prior, err := s.repo.WithTx(tx).ListByOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load prior returns")
		}
		items, err := returnItems(order, prior, input.Items)
		if err != nil {
			return err
		}
		remaining := Refundable(order).Sub(requested(prior))
		if input.RefundAmount.GreaterThan(remaining) {
			return pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds refundable remainder").
				WithDetails(map[string]any{
					"refund_amount": input.RefundAmount.StringFixed(2),
					"refundable":    remaining.StringFixed(2),
				})
		}

		req := &models.ReturnRequest{
			OrderID:      order.ID,
			UserID:       *order.UserID,
			Status:       enums.ReturnStatusPending,
			RefundAmount: input.RefundAmount,
			Items:        items,
			Version:      1,
		}
		if reason := strings.TrimSpace(input.Reason); reason != "" {
			req.Reason = &reason
		}
		if err := s.repo.WithTx(tx).Create(ctx, req); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create return request")
		}
		result = req
		return s.emit(ctx, tx, enums.EventReturnRequested, req)
	})
	if err != nil {
		return nil, dbpkg.MapConflict(err, "return changed concurrently")
	}
	s.logg.Info(s.logg.WithField(ctx, "return_id", result.ID.String()), "return requested")
	return result, nil
}

func validateRequest(input RequestInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for _, item := range input.Items {
		if item.OrderLineID == uuid.Nil || item.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "every item needs an order line and a positive quantity")
		}
	}
	if !input.RefundAmount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if !input.RefundAmount.Equal(input.RefundAmount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount has more than two decimals")
	}
	return nil
}

// Refundable is what the buyer actually paid: the order total plus every stored-value
// instrument applied to it. Coupon discounts are never refunded.
func Refundable(order *models.Order) decimal.Decimal {
	return order.Total.Add(order.GiftCardAmount).Add(order.WalletAmount).Add(order.LoyaltyAmount)
}

func requested(prior []models.ReturnRequest) decimal.Decimal {
	total := decimal.Zero
	for _, req := range prior {
		if req.Status != enums.ReturnStatusRejected {
			total = total.Add(req.RefundAmount)
		}
	}
	return total
}

func returnItems(order *models.Order, prior []models.ReturnRequest, inputs []ItemInput) ([]models.ReturnItem, error) {
	lines := make(map[uuid.UUID]models.OrderLine, len(order.Lines))
	for _, line := range order.Lines {
		lines[line.ID] = line
	}
	returned := map[uuid.UUID]int{}
	for _, req := range prior {
		if req.Status == enums.ReturnStatusRejected {
			continue
		}
		for _, item := range req.Items {
			returned[item.OrderLineID] += item.Qty
		}
	}

	items := make([]models.ReturnItem, 0, len(inputs))
	for _, in := range inputs {
		line, ok := lines[in.OrderLineID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order line does not belong to the order").
				WithDetails(map[string]any{"order_line_id": in.OrderLineID})
		}
		returned[line.ID] += in.Qty
		if returned[line.ID] > line.Qty {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "return quantity exceeds quantity ordered").
				WithDetails(map[string]any{"order_line_id": line.ID, "ordered": line.Qty})
		}
		items = append(items, models.ReturnItem{OrderLineID: line.ID, ProductID: line.ProductID, Qty: in.Qty})
	}
	return items, nil
}

func (s *service) Get(ctx context.Context, actor orders.Actor, returnID uuid.UUID) (*models.ReturnRequest, error) {
	req, err := s.load(ctx, s.repo, returnID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != nil && *actor.UserID != req.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
	}
	return req, nil
}

func (s *service) Approve(ctx context.Context, returnID uuid.UUID) (*models.ReturnRequest, error) {
	return s.resolve(ctx, returnID, enums.ReturnStatusApproved, enums.EventReturnApproved)
}

func (s *service) Reject(ctx context.Context, returnID uuid.UUID) (*models.ReturnRequest, error) {
	return s.resolve(ctx, returnID, enums.ReturnStatusRejected, enums.EventReturnRejected)
}

func (s *service) resolve(ctx context.Context, returnID uuid.UUID, to enums.ReturnStatus, event enums.OutboxEventType) (*models.ReturnRequest, error) {
	ctx = s.logg.WithField(ctx, "return_id", returnID.String())
	var result *models.ReturnRequest
	err := dbpkg.RunWithRetry(ctx, s.tx, s.policy, s.onAttempt(ctx), func(tx *gorm.DB) error {
		req, err := s.load(ctx, s.repo.WithTx(tx), returnID)
		if err != nil {
			return err
		}
		if req.Status != enums.ReturnStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return request already resolved").
				WithDetails(map[string]any{"status": req.Status})
		}
		if err := s.repo.WithTx(tx).Transition(ctx, req, to, s.now().UTC()); err != nil {
			return err
		}
		result = req
		return s.emit(ctx, tx, event, req)
	})
	if err != nil {
		return nil, dbpkg.MapConflict(err, "return changed concurrently")
	}
	s.logg.Info(s.logg.WithField(ctx, "status", to), "return resolved")
	return result, nil
}

// Complete moves an APPROVED return to COMPLETED, credits the refund to the buyer's wallet
// and restocks the returned units, all in one commit. A replay reports ALREADY_SETTLED.
func (s *service) Complete(ctx context.Context, returnID uuid.UUID) (*models.ReturnRequest, error) {
	ctx = s.logg.WithField(ctx, "return_id", returnID.String())
	var result *models.ReturnRequest
	err := dbpkg.RunWithRetry(ctx, s.tx, s.policy, s.onAttempt(ctx), func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := s.load(ctx, repo, returnID)
		if err != nil {
			return err
		}
		switch req.Status {
		case enums.ReturnStatusCompleted:
			return pkgerrors.New(pkgerrors.CodeAlreadySettled, "return already refunded").
				WithDetails(map[string]any{"return_id": req.ID})
		case enums.ReturnStatusApproved:
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return must be approved before completion").
				WithDetails(map[string]any{"status": req.Status})
		}

		if err := repo.Transition(ctx, req, enums.ReturnStatusCompleted, s.now().UTC()); err != nil {
			return err
		}
		wallet, err := s.ledger.Wallet(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		orderID := req.OrderID
		if _, err := s.ledger.Post(ctx, tx, ledger.Posting{
			Account:     wallet,
			Amount:      req.RefundAmount,
			OrderID:     &orderID,
			ReferenceID: req.ID,
			Purpose:     enums.LedgerPurposeReturnRefund,
		}); err != nil {
			return err
		}
		restock := map[uuid.UUID]int{}
		for _, item := range req.Items {
			restock[item.ProductID] += item.Qty
		}
		if err := s.ledger.Release(ctx, tx, restock); err != nil {
			return err
		}
		result = req
		return s.emit(ctx, tx, enums.EventReturnCompleted, req)
	})
	if err != nil {
		return nil, dbpkg.MapConflict(err, "return changed concurrently")
	}
	s.logg.Info(s.logg.WithField(ctx, "refund_amount", result.RefundAmount.StringFixed(2)), "return refunded")
	return result, nil
}

// ReverseCancelledOrder gives back the gift card, wallet and loyalty debits of a cancelled
// order, releases its coupon use and claws back earned loyalty up to the available balance.
func (s *service) ReverseCancelledOrder(ctx context.Context, orderID uuid.UUID) (*Reversal, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	var result *Reversal
	err := dbpkg.RunWithRetry(ctx, s.tx, s.policy, s.onAttempt(ctx), func(tx *gorm.DB) error {
		order, err := s.loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only cancelled orders can be reversed").
				WithDetails(map[string]any{"status": order.Status})
		}
		if order.ReversedAt != nil {
			return pkgerrors.New(pkgerrors.CodeAlreadySettled, "order already reversed").
				WithDetails(map[string]any{"order_id": order.ID})
		}
		result, err = s.reverseTx(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, dbpkg.MapConflict(err, "order changed concurrently")
	}
	s.logg.Info(ctx, "cancelled order reversed")
	return result, nil
}

func (s *service) reverseTx(ctx context.Context, tx *gorm.DB, order *models.Order) (*Reversal, error) {
	now := s.now().UTC()
	event := payloads.OrderReversedEvent{OrderID: order.ID, ReversedAt: now}
	var postings []ledger.Posting
	post := func(account ledger.Account, amount decimal.Decimal, purpose enums.LedgerPurpose) {
		postings = append(postings, ledger.Posting{
			Account:     account,
			Amount:      amount,
			OrderID:     &order.ID,
			ReferenceID: order.ID,
			Purpose:     purpose,
		})
	}

	if order.GiftCardID != nil && order.GiftCardAmount.IsPositive() {
		card, err := s.ledger.Account(ctx, tx, *order.GiftCardID)
		if err != nil {
			return nil, err
		}
		post(card, order.GiftCardAmount, enums.LedgerPurposeReverseGiftCard)
		event.GiftCardRefunded = order.GiftCardAmount
	}

	if order.UserID != nil {
		if order.WalletAmount.IsPositive() {
			wallet, err := s.ledger.Wallet(ctx, tx, *order.UserID)
			if err != nil {
				return nil, err
			}
			post(wallet, order.WalletAmount, enums.LedgerPurposeReverseWallet)
			event.WalletRefunded = order.WalletAmount
		}
		if order.LoyaltyPointsRedeemed > 0 || order.LoyaltyPointsEarned > 0 {
			loyalty, err := s.ledger.Loyalty(ctx, tx, *order.UserID)
			if err != nil {
				return nil, err
			}
			balance := loyalty.Balance().IntPart() + order.LoyaltyPointsRedeemed
			clawed := min(order.LoyaltyPointsEarned, balance)
			post(loyalty, decimal.NewFromInt(order.LoyaltyPointsRedeemed), enums.LedgerPurposeReverseLoyalty)
			post(loyalty, decimal.NewFromInt(-clawed), enums.LedgerPurposeReverseLoyaltyEarn)
			event.LoyaltyPointsRefunded = order.LoyaltyPointsRedeemed
			event.LoyaltyPointsClawed = clawed
		}
	}

	if order.CouponID != nil {
		counter, err := s.ledger.CouponByID(ctx, tx, *order.CouponID)
		if err != nil {
			return nil, err
		}
		post(counter, decimal.NewFromInt(1), enums.LedgerPurposeReverseCoupon)
		event.CouponReleased = true
	}

	entries, err := s.ledger.Post(ctx, tx, postings...)
	if err != nil {
		return nil, err
	}
	if err := s.orders.WithTx(tx).MarkReversed(ctx, order, now); err != nil {
		return nil, err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderReversed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{Role: orders.RoleAdmin},
		Data:          event,
	}); err != nil {
		return nil, err
	}
	return &Reversal{Order: order, Entries: entries, Event: event}, nil
}

func (s *service) load(ctx context.Context, repo Repository, returnID uuid.UUID) (*models.ReturnRequest, error) {
	if returnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id is required")
	}
	req, err := repo.FindByID(ctx, returnID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load return request")
	}
	return req, nil
}

func (s *service) loadOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.WithTx(tx).FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, event enums.OutboxEventType, req *models.ReturnRequest) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregateReturnRequest,
		AggregateID:   req.ID,
		Data: payloads.ReturnStatusEvent{
			ReturnRequestID: req.ID,
			OrderID:         req.OrderID,
			UserID:          req.UserID,
			Status:          req.Status,
			RefundAmount:    req.RefundAmount,
		},
	})
}

func (s *service) onAttempt(ctx context.Context) func(int, error) {
	return func(attempt int, err error) {
		if err != nil && dbpkg.IsRetryable(err) {
			s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "return settlement conflict")
		}
	}
}
