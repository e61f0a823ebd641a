package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/internal/cart"
	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	"github.com/angelmondragon/storefront-settlement/internal/orders"
	dbpkg "github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/metrics"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/payloads"
)

const operationCheckout = "checkout"

type cartResolver interface {
	ResolveTx(ctx context.Context, tx *gorm.DB, identity cart.Identity) (*cart.PricedSnapshot, error)
}

type cartClearer interface {
	ClearTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error
}

// SettleInput names the cart and the optional instruments to apply, in the fixed order
// coupon, gift card, wallet, loyalty.
type SettleInput struct {
	Identity      cart.Identity
	CouponCode    string
	GiftCardCode  string
	WalletAmount  decimal.Decimal
	LoyaltyPoints int64
}

func (in SettleInput) validate() error {
	if err := in.Identity.Validate(); err != nil {
		return err
	}
	if in.WalletAmount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet amount must not be negative")
	}
	if !in.WalletAmount.Equal(in.WalletAmount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet amount supports at most two decimal places")
	}
	if in.LoyaltyPoints < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "loyalty points must not be negative")
	}
	if in.Identity.Anonymous() && (in.WalletAmount.IsPositive() || in.LoyaltyPoints > 0) {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet and loyalty require a signed-in user")
	}
	return nil
}

// Coordinator turns a priced cart into a PENDING order in one atomic commit.
type Coordinator struct {
	tx       dbpkg.TxRunner
	resolver cartResolver
	carts    cartClearer
	ledger   *ledger.Store
	orders   orders.Repository
	outbox   outbox.Emitter
	pricing  Pricing
	policy   dbpkg.RetryPolicy
	metrics  *metrics.SettlementMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// Deps groups the collaborators a Coordinator needs.
type Deps struct {
	Tx       dbpkg.TxRunner
	Resolver cartResolver
	Carts    cartClearer
	Ledger   *ledger.Store
	Orders   orders.Repository
	Outbox   outbox.Emitter
	Pricing  Pricing
	Policy   dbpkg.RetryPolicy
	Metrics  *metrics.SettlementMetrics
	Logger   *logger.Logger
}

func NewCoordinator(deps Deps) (*Coordinator, error) {
	switch {
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Resolver == nil:
		return nil, fmt.Errorf("cart resolver required")
	case deps.Carts == nil:
		return nil, fmt.Errorf("cart service required")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("ledger store required")
	case deps.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if deps.Pricing.PointsPerUnit <= 0 {
		return nil, fmt.Errorf("points per currency unit must be positive")
	}
	return &Coordinator{
		tx:       deps.Tx,
		resolver: deps.Resolver,
		carts:    deps.Carts,
		ledger:   deps.Ledger,
		orders:   deps.Orders,
		outbox:   deps.Outbox,
		pricing:  deps.Pricing,
		policy:   deps.Policy,
		metrics:  deps.Metrics,
		logg:     deps.Logger,
		now:      time.Now,
	}, nil
}

// Settle prices the cart, reserves stock, applies instruments and writes the order, the
// ledger entries, the loyalty earn, the cart clear and the order_created event in one
// transaction. A version conflict anywhere rolls the attempt back and replays it from
// the cart read; once the retry budget is spent the caller gets CONFLICT.
func (c *Coordinator) Settle(ctx context.Context, input SettleInput) (*models.Order, error) {
	input.CouponCode = strings.TrimSpace(input.CouponCode)
	input.GiftCardCode = strings.TrimSpace(input.GiftCardCode)
	if err := input.validate(); err != nil {
		return nil, err
	}
	if input.Identity.UserID != nil {
		ctx = c.logg.WithUserID(ctx, input.Identity.UserID.String())
	}

	start := c.now()
	var order *models.Order
	err := dbpkg.RunWithRetry(ctx, c.tx, c.policy, c.observeAttempt(ctx), func(tx *gorm.DB) error {
		settled, err := c.settleTx(ctx, tx, input)
		if err != nil {
			return err
		}
		order = settled
		return nil
	})
	c.metrics.ObserveDuration(operationCheckout, c.now().Sub(start))
	if err != nil {
		return nil, dbpkg.MapConflict(err, "checkout could not settle after retries")
	}

	logCtx := c.logg.WithFields(c.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"total":          order.Total.String(),
		"discount_total": order.DiscountTotal.String(),
	})
	c.logg.Info(logCtx, "order settled")
	return order, nil
}

func (c *Coordinator) settleTx(ctx context.Context, tx *gorm.DB, input SettleInput) (*models.Order, error) {
	snapshot, err := c.resolver.ResolveTx(ctx, tx, input.Identity)
	if err != nil {
		return nil, err
	}
	if err := c.ledger.Reserve(ctx, tx, snapshot.Quantities()); err != nil {
		return nil, err
	}

	orderID := uuid.New()
	userID := input.Identity.UserID
	b := c.pricing.NewBreakdown(snapshot.Subtotal)
	var postings []ledger.Posting
	post := func(account ledger.Account, amount decimal.Decimal, purpose enums.LedgerPurpose) {
		postings = append(postings, ledger.Posting{
			Account:     account,
			Amount:      amount,
			OrderID:     &orderID,
			ReferenceID: orderID,
			Purpose:     purpose,
		})
	}

	order := &models.Order{
		ID:      orderID,
		UserID:  userID,
		Status:  enums.OrderStatusPending,
		Version: 1,
	}

	if input.CouponCode != "" {
		counter, err := c.ledger.Coupon(ctx, tx, input.CouponCode)
		if err != nil {
			return nil, err
		}
		if counter != nil {
			if discount, ok := c.pricing.CouponDiscount(counter.Row(), b.Subtotal, c.now()); ok {
				b.CouponDiscount = capAt(discount, b.Remaining())
				id, code := counter.ID(), counter.Row().Code
				order.CouponID, order.CouponCode = &id, &code
				post(counter, decimal.NewFromInt(-1), enums.LedgerPurposeCouponRedeem)
			}
		}
	}

	if input.GiftCardCode != "" {
		card, err := c.ledger.GiftCard(ctx, tx, input.GiftCardCode)
		if err != nil {
			return nil, err
		}
		b.GiftCardAmount = capAt(card.Balance(), b.Remaining())
		if b.GiftCardAmount.IsPositive() {
			id := card.ID()
			order.GiftCardID = &id
			post(card, b.GiftCardAmount.Neg(), enums.LedgerPurposeGiftCardRedeem)
		}
	}

	if input.WalletAmount.IsPositive() {
		wallet, err := c.ledger.Wallet(ctx, tx, *userID)
		if err != nil {
			return nil, err
		}
		b.WalletAmount = capAt(input.WalletAmount, wallet.Balance(), b.Remaining())
		post(wallet, b.WalletAmount.Neg(), enums.LedgerPurposeWalletRedeem)
	}

	var loyalty *ledger.BalanceAccount
	if input.LoyaltyPoints > 0 {
		loyalty, err = c.ledger.Loyalty(ctx, tx, *userID)
		if err != nil {
			return nil, err
		}
		points, value := c.pricing.LoyaltyRedemption(input.LoyaltyPoints, loyalty.Balance().IntPart(), b.Remaining())
		b.LoyaltyPointsRedeemed, b.LoyaltyAmount = points, value
		post(loyalty, decimal.NewFromInt(-points), enums.LedgerPurposeLoyaltyRedeem)
	}

	if userID != nil {
		b.LoyaltyPointsEarned = c.pricing.Earned(b.Subtotal)
		if b.LoyaltyPointsEarned > 0 {
			if loyalty == nil {
				loyalty, err = c.ledger.Loyalty(ctx, tx, *userID)
				if err != nil {
					return nil, err
				}
			}
			post(loyalty, decimal.NewFromInt(b.LoyaltyPointsEarned), enums.LedgerPurposeLoyaltyEarn)
		}
	}

	fillOrder(order, b, snapshot.Lines)
	if err := c.orders.WithTx(tx).Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert order")
	}
	if _, err := c.ledger.Post(ctx, tx, postings...); err != nil {
		return nil, err
	}
	if err := c.carts.ClearTx(ctx, tx, snapshot.CartID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}

	role := orders.RoleCustomer
	if userID == nil {
		role = orders.RoleGuest
	}
	if err := c.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: userID, Role: role},
		Data:          orderCreatedPayload(order),
	}); err != nil {
		return nil, err
	}
	return order, nil
}

func fillOrder(order *models.Order, b Breakdown, lines []cart.PricedLine) {
	order.Subtotal = b.Subtotal
	order.Tax = b.Tax
	order.Shipping = b.Shipping
	order.CouponDiscount = b.CouponDiscount
	order.GiftCardAmount = b.GiftCardAmount
	order.WalletAmount = b.WalletAmount
	order.LoyaltyAmount = b.LoyaltyAmount
	order.LoyaltyPointsRedeemed = b.LoyaltyPointsRedeemed
	order.LoyaltyPointsEarned = b.LoyaltyPointsEarned
	order.DiscountTotal = b.DiscountTotal()
	order.Total = b.Total()
	order.Lines = make([]models.OrderLine, 0, len(lines))
	for _, line := range lines {
		order.Lines = append(order.Lines, models.OrderLine{
			OrderID:   order.ID,
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Qty:       line.Qty,
			LineTotal: line.LineTotal,
		})
	}
}

func orderCreatedPayload(order *models.Order) payloads.OrderCreatedEvent {
	return payloads.OrderCreatedEvent{
		OrderID:               order.ID,
		UserID:                order.UserID,
		Subtotal:              order.Subtotal,
		Tax:                   order.Tax,
		Shipping:              order.Shipping,
		CouponCode:            order.CouponCode,
		CouponDiscount:        order.CouponDiscount,
		GiftCardAmount:        order.GiftCardAmount,
		WalletAmount:          order.WalletAmount,
		LoyaltyPointsRedeemed: order.LoyaltyPointsRedeemed,
		LoyaltyPointsEarned:   order.LoyaltyPointsEarned,
		Total:                 order.Total,
		LineCount:             len(order.Lines),
	}
}

func (c *Coordinator) observeAttempt(ctx context.Context) func(int, error) {
	return func(attempt int, err error) {
		switch {
		case err == nil:
			c.metrics.ObserveAttempt(operationCheckout, metrics.OutcomeCommitted)
		case dbpkg.IsRetryable(err):
			c.metrics.ObserveAttempt(operationCheckout, metrics.OutcomeConflict)
			c.logg.Warn(c.logg.WithField(ctx, "attempt", attempt), "settlement conflict, retrying")
		case pkgerrors.As(err) != nil:
			c.metrics.ObserveAttempt(operationCheckout, metrics.OutcomeRejected)
		default:
			c.metrics.ObserveAttempt(operationCheckout, metrics.OutcomeError)
		}
	}
}
