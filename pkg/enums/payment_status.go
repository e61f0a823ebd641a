package enums

import "fmt"

// PaymentIntentStatus tracks the lifecycle of a payment intent.
type PaymentIntentStatus string

const (
	PaymentIntentRequiresConfirmation PaymentIntentStatus = "REQUIRES_CONFIRMATION"
	PaymentIntentCompleted            PaymentIntentStatus = "COMPLETED"
	PaymentIntentFailed               PaymentIntentStatus = "FAILED"
)

var validPaymentIntentStatuses = []PaymentIntentStatus{
	PaymentIntentRequiresConfirmation,
	PaymentIntentCompleted,
	PaymentIntentFailed,
}

// String implements fmt.Stringer.
func (v PaymentIntentStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known PaymentIntentStatus.
func (v PaymentIntentStatus) IsValid() bool {
	for _, candidate := range validPaymentIntentStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePaymentIntentStatus converts raw input into a PaymentIntentStatus.
func ParsePaymentIntentStatus(value string) (PaymentIntentStatus, error) {
	for _, candidate := range validPaymentIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment intent status %q", value)
}

// IsTerminal reports whether the intent has reached COMPLETED or FAILED.
func (v PaymentIntentStatus) IsTerminal() bool {
	return v == PaymentIntentCompleted || v == PaymentIntentFailed
}
