package enums

import "fmt"

// LedgerPurpose explains why a ledger entry was written. Together with a reference id it
// forms the entry idempotency key.
type LedgerPurpose string

const (
	LedgerPurposeGiftCardRedeem     LedgerPurpose = "gift_card_redeem"
	LedgerPurposeWalletRedeem       LedgerPurpose = "wallet_redeem"
	LedgerPurposeLoyaltyRedeem      LedgerPurpose = "loyalty_redeem"
	LedgerPurposeLoyaltyEarn        LedgerPurpose = "loyalty_earn"
	LedgerPurposeCouponRedeem       LedgerPurpose = "coupon_redeem"
	LedgerPurposeReturnRefund       LedgerPurpose = "return_refund"
	LedgerPurposeWalletDebit        LedgerPurpose = "wallet_debit"
	LedgerPurposeReverseGiftCard    LedgerPurpose = "reverse_gift_card"
	LedgerPurposeReverseWallet      LedgerPurpose = "reverse_wallet"
	LedgerPurposeReverseLoyalty     LedgerPurpose = "reverse_loyalty"
	LedgerPurposeReverseLoyaltyEarn LedgerPurpose = "reverse_loyalty_earn"
	LedgerPurposeReverseCoupon      LedgerPurpose = "reverse_coupon"
)

var validLedgerPurposes = []LedgerPurpose{
	LedgerPurposeGiftCardRedeem,
	LedgerPurposeWalletRedeem,
	LedgerPurposeLoyaltyRedeem,
	LedgerPurposeLoyaltyEarn,
	LedgerPurposeCouponRedeem,
	LedgerPurposeReturnRefund,
	LedgerPurposeWalletDebit,
	LedgerPurposeReverseGiftCard,
	LedgerPurposeReverseWallet,
	LedgerPurposeReverseLoyalty,
	LedgerPurposeReverseLoyaltyEarn,
	LedgerPurposeReverseCoupon,
}

// String implements fmt.Stringer.
func (v LedgerPurpose) String() string {
	return string(v)
}

// IsValid reports whether the value is a known LedgerPurpose.
func (v LedgerPurpose) IsValid() bool {
	for _, candidate := range validLedgerPurposes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseLedgerPurpose converts raw input into a LedgerPurpose.
func ParseLedgerPurpose(value string) (LedgerPurpose, error) {
	for _, candidate := range validLedgerPurposes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger purpose %q", value)
}
