package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/registry"
)

const (
	notifyTopic = "storefront-notifications"
	auditTopic  = "storefront-audit"
)

type recordingSink struct {
	mu       sync.Mutex
	topic    string
	failWith error
	sent     []*gcppubsub.Message
}

func (s *recordingSink) Send(_ context.Context, msg *gcppubsub.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.sent = append(s.sent, msg)
	return nil
}

type fixture struct {
	client     *db.Client
	repo       *outbox.Repository
	dlq        *outbox.DLQRepository
	emitter    *outbox.Service
	dispatcher *Dispatcher
	sinks      map[string]*recordingSink
}

func newFixture(t *testing.T, maxAttempts int) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	repo := outbox.NewRepository(client.DB())
	dlq := outbox.NewDLQRepository(client.DB())
	reg, err := registry.NewEventRegistry(config.PubSubConfig{NotificationTopic: notifyTopic, AuditTopic: auditTopic})
	require.NoError(t, err)

	sinks := map[string]*recordingSink{
		notifyTopic: {topic: notifyTopic},
		auditTopic:  {topic: auditTopic},
	}
	dispatcher, err := NewDispatcher(DispatcherParams{
		Outbox:     config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: maxAttempts},
		AuditTopic: auditTopic,
		Logger:     logger.Nop(),
		DB:         client,
		Store:      repo,
		DLQ:        dlq,
		Registry:   reg,
		Sinks: func(topic string) sink {
			if s, ok := sinks[topic]; ok {
				return s
			}
			return nil
		},
	})
	require.NoError(t, err)

	return &fixture{
		client:     client,
		repo:       repo,
		dlq:        dlq,
		emitter:    outbox.NewService(repo, logger.Nop()),
		dispatcher: dispatcher,
		sinks:      sinks,
	}
}

func (f *fixture) emit(t *testing.T, event outbox.DomainEvent) {
	t.Helper()
	require.NoError(t, f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return f.emitter.Emit(context.Background(), tx, event)
	}))
}

func (f *fixture) row(t *testing.T, aggregateID uuid.UUID) models.OutboxEvent {
	t.Helper()
	rows, err := f.repo.ListByAggregate(nil, aggregateID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0]
}

func orderPaid(orderID uuid.UUID) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:    orderID,
			FromStatus: enums.OrderStatusPending,
			ToStatus:   enums.OrderStatusPaid,
		},
	}
}

func TestDrainPublishesAndMirrorsToAudit(t *testing.T) {
	f := newFixture(t, 3)
	orderID := uuid.New()
	f.emit(t, orderPaid(orderID))

	drained, err := f.dispatcher.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, drained)

	require.Len(t, f.sinks[notifyTopic].sent, 1)
	require.Len(t, f.sinks[auditTopic].sent, 1)
	msg := f.sinks[notifyTopic].sent[0]
	require.Equal(t, string(enums.EventOrderPaid), msg.Attributes["event_type"])
	require.Equal(t, orderID.String(), msg.Attributes["aggregate_id"])
	require.NotEmpty(t, msg.Attributes["event_id"])

	require.NotNil(t, f.row(t, orderID).PublishedAt)

	drained, err = f.dispatcher.Drain(context.Background())
	require.NoError(t, err)
	require.Zero(t, drained)
}

func TestDrainSendsAuditOnlyEventsOnce(t *testing.T) {
	f := newFixture(t, 3)
	accountID := uuid.New()
	f.emit(t, outbox.DomainEvent{
		EventType:     enums.EventWalletDebited,
		AggregateType: enums.AggregateLedgerAccount,
		AggregateID:   accountID,
		Data:          payloads.WalletDebitedEvent{AccountID: accountID},
	})

	_, err := f.dispatcher.Drain(context.Background())
	require.NoError(t, err)
	require.Empty(t, f.sinks[notifyTopic].sent)
	require.Len(t, f.sinks[auditTopic].sent, 1)
}

func TestDrainRecordsTransientFailureThenDeadLetters(t *testing.T) {
	f := newFixture(t, 2)
	f.sinks[notifyTopic].failWith = errors.New("unavailable")
	orderID := uuid.New()
	f.emit(t, orderPaid(orderID))

	_, err := f.dispatcher.Drain(context.Background())
	require.NoError(t, err)
	row := f.row(t, orderID)
	require.Nil(t, row.PublishedAt)
	require.Equal(t, 1, row.AttemptCount)
	require.NotNil(t, row.LastError)

	_, err = f.dispatcher.Drain(context.Background())
	require.NoError(t, err)
	row = f.row(t, orderID)
	require.Equal(t, 2, row.AttemptCount)

	entry, err := f.dlq.FindByEventID(context.Background(), row.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, enums.OutboxDLQReasonMaxAttempts, entry.ErrorReason)

	drained, err := f.dispatcher.Drain(context.Background())
	require.NoError(t, err)
	require.Zero(t, drained)
}

func TestDrainDeadLettersUndecodableRows(t *testing.T) {
	f := newFixture(t, 5)
	aggregateID := uuid.New()
	require.NoError(t, f.repo.Insert(f.client.DB(), models.OutboxEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateLedgerAccount,
		AggregateID:   aggregateID,
		Payload:       []byte(`{"version":1}`),
	}))

	_, err := f.dispatcher.Drain(context.Background())
	require.NoError(t, err)
	require.Empty(t, f.sinks[notifyTopic].sent)

	row := f.row(t, aggregateID)
	require.Equal(t, 5, row.AttemptCount)
	entry, err := f.dlq.FindByEventID(context.Background(), row.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, enums.OutboxDLQReasonUnroutable, entry.ErrorReason)
}

func TestTopicsSkipsMirrorWhenAuditIsPrimary(t *testing.T) {
	f := newFixture(t, 3)
	got := f.dispatcher.Topics(&registry.ResolvedEvent{Descriptor: registry.EventDescriptor{Topic: auditTopic}})
	require.Equal(t, []string{auditTopic}, got)
	got = f.dispatcher.Topics(&registry.ResolvedEvent{Descriptor: registry.EventDescriptor{Topic: notifyTopic}})
	require.Equal(t, []string{notifyTopic, auditTopic}, got)
}

func TestNewDispatcherRequiresDependencies(t *testing.T) {
	if _, err := NewDispatcher(DispatcherParams{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
