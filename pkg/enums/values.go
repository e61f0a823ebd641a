package enums

// The listers below return fresh copies. Schema tests compare them with the CHECK
// constraints in the shipped migrations.

func OrderStatuses() []OrderStatus {
	return append([]OrderStatus(nil), validOrderStatuses...)
}

func PaymentIntentStatuses() []PaymentIntentStatus {
	return append([]PaymentIntentStatus(nil), validPaymentIntentStatuses...)
}

func ReturnStatuses() []ReturnStatus {
	return append([]ReturnStatus(nil), validReturnStatuses...)
}

func LedgerAccountKinds() []LedgerAccountKind {
	return append([]LedgerAccountKind(nil), validLedgerAccountKinds...)
}

func LedgerEntryTypes() []LedgerEntryType {
	return append([]LedgerEntryType(nil), validLedgerEntryTypes...)
}

func CouponDiscountTypes() []CouponDiscountType {
	return append([]CouponDiscountType(nil), validCouponDiscountTypes...)
}

func OutboxDLQErrorReasons() []OutboxDLQErrorReason {
	return []OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable, OutboxDLQReasonUnroutable}
}
