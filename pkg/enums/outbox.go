package enums

import "fmt"

// OutboxAggregateType identifies the aggregate an outbox row belongs to.
type OutboxAggregateType string

const (
	AggregateOrder         OutboxAggregateType = "order"
	AggregatePaymentIntent OutboxAggregateType = "payment_intent"
	AggregateReturnRequest OutboxAggregateType = "return_request"
	AggregateLedgerAccount OutboxAggregateType = "ledger_account"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePaymentIntent,
	AggregateReturnRequest,
	AggregateLedgerAccount,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event carried through the outbox.
type OutboxEventType string

const (
	EventOrderCreated    OutboxEventType = "order_created"
	EventOrderPaid       OutboxEventType = "order_paid"
	EventOrderShipped    OutboxEventType = "order_shipped"
	EventOrderDelivered  OutboxEventType = "order_delivered"
	EventOrderCancelled  OutboxEventType = "order_cancelled"
	EventOrderExpired    OutboxEventType = "order_expired"
	EventOrderReversed   OutboxEventType = "order_reversed"
	EventPaymentFailed   OutboxEventType = "payment_failed"
	EventRefundRequired  OutboxEventType = "payment_refund_required"
	EventReturnRequested OutboxEventType = "return_requested"
	EventReturnApproved  OutboxEventType = "return_approved"
	EventReturnRejected  OutboxEventType = "return_rejected"
	EventReturnCompleted OutboxEventType = "return_completed"
	EventWalletDebited   OutboxEventType = "wallet_debited"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderShipped,
	EventOrderDelivered,
	EventOrderCancelled,
	EventOrderExpired,
	EventOrderReversed,
	EventPaymentFailed,
	EventRefundRequired,
	EventReturnRequested,
	EventReturnApproved,
	EventReturnRejected,
	EventReturnCompleted,
	EventWalletDebited,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
