package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names. Buyer-facing
// events route to the notification topic; ledger-only events route to the audit topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.NotificationTopic == "" {
		return nil, fmt.Errorf("notification topic is required")
	}
	if cfg.AuditTopic == "" {
		return nil, fmt.Errorf("audit topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	notificationTopic := cfg.NotificationTopic
	auditTopic := cfg.AuditTopic

	orderStatus := func() interface{} { return &payloads.OrderStatusChangedEvent{} }
	returnStatus := func() interface{} { return &payloads.ReturnStatusEvent{} }

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventOrderCreated,
			AggregateType:  enums.AggregateOrder,
			Topic:          notificationTopic,
			PayloadFactory: func() interface{} { return &payloads.OrderCreatedEvent{} },
		},
		{EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, Topic: notificationTopic, PayloadFactory: orderStatus},
		{EventType: enums.EventOrderShipped, AggregateType: enums.AggregateOrder, Topic: notificationTopic, PayloadFactory: orderStatus},
		{EventType: enums.EventOrderDelivered, AggregateType: enums.AggregateOrder, Topic: notificationTopic, PayloadFactory: orderStatus},
		{EventType: enums.EventOrderCancelled, AggregateType: enums.AggregateOrder, Topic: notificationTopic, PayloadFactory: orderStatus},
		{EventType: enums.EventOrderExpired, AggregateType: enums.AggregateOrder, Topic: notificationTopic, PayloadFactory: orderStatus},
		{
			EventType:      enums.EventPaymentFailed,
			AggregateType:  enums.AggregatePaymentIntent,
			Topic:          notificationTopic,
			PayloadFactory: func() interface{} { return &payloads.PaymentFailedEvent{} },
		},
		{EventType: enums.EventReturnRequested, AggregateType: enums.AggregateReturnRequest, Topic: notificationTopic, PayloadFactory: returnStatus},
		{EventType: enums.EventReturnApproved, AggregateType: enums.AggregateReturnRequest, Topic: notificationTopic, PayloadFactory: returnStatus},
		{EventType: enums.EventReturnRejected, AggregateType: enums.AggregateReturnRequest, Topic: notificationTopic, PayloadFactory: returnStatus},
		{EventType: enums.EventReturnCompleted, AggregateType: enums.AggregateReturnRequest, Topic: notificationTopic, PayloadFactory: returnStatus},
	} {
		reg.register(desc)
	}
	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventOrderReversed,
			AggregateType:  enums.AggregateOrder,
			Topic:          auditTopic,
			PayloadFactory: func() interface{} { return &payloads.OrderReversedEvent{} },
		},
		{
			EventType:      enums.EventRefundRequired,
			AggregateType:  enums.AggregatePaymentIntent,
			Topic:          auditTopic,
			PayloadFactory: func() interface{} { return &payloads.RefundRequiredEvent{} },
		},
		{
			EventType:      enums.EventWalletDebited,
			AggregateType:  enums.AggregateLedgerAccount,
			Topic:          auditTopic,
			PayloadFactory: func() interface{} { return &payloads.WalletDebitedEvent{} },
		},
	} {
		reg.register(desc)
	}

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if payload == nil {
		return nil, NewNonRetryableError(fmt.Errorf("payload factory not configured for %s", event.EventType))
	}
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
