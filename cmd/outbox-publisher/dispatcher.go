package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	sendTimeout        = 15 * time.Second
	maxBackoff         = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

type database interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// sink delivers one message to one topic and waits for the broker ack.
type sink interface {
	Send(ctx context.Context, msg *gcppubsub.Message) error
}

type DispatcherParams struct {
	Outbox     config.OutboxConfig
	AuditTopic string
	Logger     *logger.Logger
	DB         database
	Ping       func(context.Context) error
	Store      outboxStore
	DLQ        deadLetters
	Registry   resolver
	Sinks      func(topic string) sink
}

// Dispatcher drains committed outbox rows to Pub/Sub. Every event goes to the topic its
// descriptor names and is mirrored to the audit topic, so the audit sink sees the complete
// order, payment and return history. Delivery is at-least-once; consumers dedupe on the
// event_id attribute.
type Dispatcher struct {
	logg         *logger.Logger
	db           database
	ping         func(context.Context) error
	store        outboxStore
	dlq          deadLetters
	registry     resolver
	sinks        func(topic string) sink
	auditTopic   string
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	now          func() time.Time
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Store == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.Sinks == nil:
		return nil, errors.New("sink factory is required")
	}

	batch := params.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Dispatcher{
		logg:         params.Logger,
		db:           params.DB,
		ping:         params.Ping,
		store:        params.Store,
		dlq:          params.DLQ,
		registry:     params.Registry,
		sinks:        params.Sinks,
		auditTopic:   params.AuditTopic,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
		now:          time.Now,
	}, nil
}

// Run polls until ctx is cancelled. Failed batches back off exponentially with jitter.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if d.ping != nil {
		if err := d.ping(ctx); err != nil {
			return fmt.Errorf("pubsub ping failed: %w", err)
		}
	}

	var failures retry.Backoff
	for {
		if err := ctx.Err(); err != nil {
			d.logg.Info(ctx, "outbox dispatcher stopping")
			return err
		}

		drained, err := d.Drain(ctx)
		if err != nil {
			d.logg.Error(ctx, "outbox batch failed", err)
			if failures == nil {
				failures = retry.WithCappedDuration(maxBackoff, retry.WithJitter(jitterWindow, retry.NewExponential(d.pollInterval)))
			}
			wait, _ := failures.Next()
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		failures = nil
		if drained > 0 {
			continue
		}
		if err := sleep(ctx, d.pollInterval); err != nil {
			return err
		}
	}
}

// Drain claims one batch and settles every row in it, returning how many rows were seen.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	seen := 0
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := d.store.FetchUnpublishedForPublish(tx, d.batchSize, d.maxAttempts)
		if err != nil {
			return err
		}
		seen = len(events)
		for _, event := range events {
			if err := d.dispatch(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return seen, err
}

func (d *Dispatcher) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	})

	resolved, err := d.registry.Resolve(event)
	if err != nil {
		return d.bury(logCtx, tx, event, enums.OutboxDLQReasonUnroutable, err)
	}

	if err := d.deliver(ctx, event, resolved); err != nil {
		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) {
			return d.bury(logCtx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
		}
		if event.AttemptCount+1 >= d.maxAttempts {
			return d.bury(logCtx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err))
		}
		d.logg.Warn(d.logg.WithField(logCtx, "error", err.Error()), "outbox publish failed")
		if err := d.store.MarkFailedTx(tx, event.ID, err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		return nil
	}

	if err := d.store.MarkPublishedTx(tx, event.ID); err != nil {
		return fmt.Errorf("mark published %s: %w", event.ID, err)
	}
	d.logg.Info(d.logg.WithField(logCtx, "topic", resolved.Descriptor.Topic), "outbox event published")
	return nil
}

// Topics lists where an event goes: its own topic, then the audit mirror.
func (d *Dispatcher) Topics(resolved *registry.ResolvedEvent) []string {
	topics := []string{resolved.Descriptor.Topic}
	if d.auditTopic != "" && d.auditTopic != resolved.Descriptor.Topic {
		topics = append(topics, d.auditTopic)
	}
	return topics
}

func (d *Dispatcher) deliver(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	for _, topic := range d.Topics(resolved) {
		target := d.sinks(topic)
		if target == nil {
			return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
		}
		msg := &gcppubsub.Message{
			Data: event.Payload,
			Attributes: map[string]string{
				"event_id":       resolved.Envelope.EventID,
				"event_type":     string(event.EventType),
				"aggregate_type": string(event.AggregateType),
				"aggregate_id":   event.AggregateID.String(),
				"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
			},
		}
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := target.Send(sendCtx, msg)
		cancel()
		if err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
	}
	return nil
}

func (d *Dispatcher) bury(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	d.logg.Warn(d.logg.WithFields(ctx, map[string]any{"error_reason": reason, "error": cause.Error()}), "outbox event dead-lettered")
	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount + 1,
		FailedAt:      d.now().UTC(),
	}
	if err := d.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := d.store.MarkTerminalTx(tx, event.ID, cause, d.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type topicSink struct {
	pub *gcppubsub.Publisher
}

func (s topicSink) Send(ctx context.Context, msg *gcppubsub.Message) error {
	_, err := s.pub.Publish(ctx, msg).Get(ctx)
	return err
}
