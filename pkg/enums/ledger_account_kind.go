package enums

import "fmt"

// LedgerAccountKind identifies which instrument a ledger account backs.
type LedgerAccountKind string

const (
	LedgerAccountWallet   LedgerAccountKind = "wallet"
	LedgerAccountGiftCard LedgerAccountKind = "gift_card"
	LedgerAccountLoyalty  LedgerAccountKind = "loyalty"
	LedgerAccountCoupon   LedgerAccountKind = "coupon"
)

var validLedgerAccountKinds = []LedgerAccountKind{
	LedgerAccountWallet,
	LedgerAccountGiftCard,
	LedgerAccountLoyalty,
	LedgerAccountCoupon,
}

// String implements fmt.Stringer.
func (v LedgerAccountKind) String() string {
	return string(v)
}

// IsValid reports whether the value is a known LedgerAccountKind.
func (v LedgerAccountKind) IsValid() bool {
	for _, candidate := range validLedgerAccountKinds {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseLedgerAccountKind converts raw input into a LedgerAccountKind.
func ParseLedgerAccountKind(value string) (LedgerAccountKind, error) {
	for _, candidate := range validLedgerAccountKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger account kind %q", value)
}
