package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// Pricing holds the store-wide money rules applied at checkout.
type Pricing struct {
	TaxRate               decimal.Decimal
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	PointsPerUnit         int64
	EarnPerUnit           int64
}

// PricingFromConfig maps settlement configuration onto pricing rules.
func PricingFromConfig(cfg config.SettlementConfig) Pricing {
	return Pricing{
		TaxRate:               cfg.TaxRate,
		ShippingFee:           cfg.ShippingFee,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		PointsPerUnit:         cfg.PointsPerCurrencyUnit,
		EarnPerUnit:           cfg.EarnPerCurrencyUnit,
	}
}

// DefaultPricing is 8% tax, 9.99 shipping under 100.00 and 100 points per unit.
func DefaultPricing() Pricing {
	return Pricing{
		TaxRate:               decimal.RequireFromString("0.08"),
		ShippingFee:           decimal.RequireFromString("9.99"),
		FreeShippingThreshold: decimal.RequireFromString("100.00"),
		PointsPerUnit:         100,
		EarnPerUnit:           1,
	}
}

// Tax is charged on the undiscounted subtotal.
func (p Pricing) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.TaxRate).Round(2)
}

// Shipping is waived once the subtotal reaches the threshold.
func (p Pricing) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.LessThan(p.FreeShippingThreshold) {
		return p.ShippingFee
	}
	return decimal.Zero
}

// Earned returns the loyalty points granted for a subtotal.
func (p Pricing) Earned(subtotal decimal.Decimal) int64 {
	if !subtotal.IsPositive() {
		return 0
	}
	return subtotal.Mul(decimal.NewFromInt(p.EarnPerUnit)).Floor().IntPart()
}

// CouponDiscount returns the discount a coupon grants on subtotal. ok is false when the
// coupon is inactive, expired, exhausted or the subtotal is below its minimum; such
// coupons are ignored rather than failing checkout.
func (p Pricing) CouponDiscount(coupon models.Coupon, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, bool) {
	switch {
	case !coupon.IsActive:
		return decimal.Zero, false
	case coupon.ExpiresAt != nil && !now.Before(*coupon.ExpiresAt):
		return decimal.Zero, false
	case coupon.CurrentUses >= coupon.MaxUses:
		return decimal.Zero, false
	case subtotal.LessThan(coupon.MinOrderAmount):
		return decimal.Zero, false
	}

	var discount decimal.Decimal
	switch coupon.DiscountType {
	case enums.CouponDiscountPercentage:
		rate := decimal.Min(coupon.DiscountValue, hundred)
		discount = subtotal.Mul(rate).Div(hundred).Round(2)
	case enums.CouponDiscountFixed:
		discount = decimal.Min(coupon.DiscountValue, subtotal)
	default:
		return decimal.Zero, false
	}
	if discount.IsNegative() {
		return decimal.Zero, false
	}
	return discount, true
}

// LoyaltyRedemption caps the requested points at the available balance and at what the
// remaining amount can absorb, returning the points used and their money value.
func (p Pricing) LoyaltyRedemption(requested, available int64, remaining decimal.Decimal) (int64, decimal.Decimal) {
	if requested <= 0 || available <= 0 || !remaining.IsPositive() || p.PointsPerUnit <= 0 {
		return 0, decimal.Zero
	}
	perUnit := decimal.NewFromInt(p.PointsPerUnit)
	absorbable := remaining.Mul(perUnit).Floor().IntPart()
	points := min(requested, available, absorbable)
	if points <= 0 {
		return 0, decimal.Zero
	}
	return points, decimal.NewFromInt(points).Div(perUnit).Round(2)
}

// Breakdown is the money picture of one settlement. Every instrument contribution is kept
// separately so it can be reversed on its own.
type Breakdown struct {
	Subtotal              decimal.Decimal
	Tax                   decimal.Decimal
	Shipping              decimal.Decimal
	CouponDiscount        decimal.Decimal
	GiftCardAmount        decimal.Decimal
	WalletAmount          decimal.Decimal
	LoyaltyAmount         decimal.Decimal
	LoyaltyPointsRedeemed int64
	LoyaltyPointsEarned   int64
}

// NewBreakdown prices the fixed charges for a subtotal.
func (p Pricing) NewBreakdown(subtotal decimal.Decimal) Breakdown {
	return Breakdown{
		Subtotal:       subtotal,
		Tax:            p.Tax(subtotal),
		Shipping:       p.Shipping(subtotal),
		CouponDiscount: decimal.Zero,
		GiftCardAmount: decimal.Zero,
		WalletAmount:   decimal.Zero,
		LoyaltyAmount:  decimal.Zero,
	}
}

// Gross is subtotal plus tax and shipping.
func (b Breakdown) Gross() decimal.Decimal {
	return b.Subtotal.Add(b.Tax).Add(b.Shipping)
}

// DiscountTotal sums every instrument contribution.
func (b Breakdown) DiscountTotal() decimal.Decimal {
	return b.CouponDiscount.Add(b.GiftCardAmount).Add(b.WalletAmount).Add(b.LoyaltyAmount)
}

// Remaining is what is still owed after the instruments applied so far.
func (b Breakdown) Remaining() decimal.Decimal {
	rest := b.Gross().Sub(b.DiscountTotal())
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// Total is the amount left for the payment intent.
func (b Breakdown) Total() decimal.Decimal {
	return b.Remaining()
}

// capAt returns the smallest of the non-negative amounts.
func capAt(amounts ...decimal.Decimal) decimal.Decimal {
	out := decimal.Min(amounts[0], amounts[1:]...)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}
