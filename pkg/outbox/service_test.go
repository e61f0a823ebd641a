package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	client := dbtest.Client(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))

	orderID := uuid.New()
	userID := uuid.New()
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &outbox.ActorRef{UserID: &userID, Role: "customer"},
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    orderID,
				FromStatus: enums.OrderStatusPending,
				ToStatus:   enums.OrderStatusCancelled,
			},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListByAggregate(nil, orderID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, enums.EventOrderCancelled, rows[0].EventType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	require.Equal(t, userID, *envelope.Actor.UserID)

	var data payloads.OrderStatusChangedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, enums.OrderStatusCancelled, data.ToStatus)
}

func TestEmitRolledBackWithBusinessTransaction(t *testing.T) {
	client := dbtest.Client(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, nil)

	orderID := uuid.New()
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          payloads.OrderCreatedEvent{OrderID: orderID},
		}); err != nil {
			return err
		}
		return errors.New("settlement failed")
	})
	require.Error(t, err)

	rows, err := repo.ListByAggregate(nil, orderID)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestFetchUnpublishedSkipsExhaustedRows(t *testing.T) {
	client := dbtest.Client(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, nil)

	first, second := uuid.New(), uuid.New()
	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		for _, id := range []uuid.UUID{first, second} {
			if err := svc.Emit(context.Background(), tx, outbox.DomainEvent{
				EventType:     enums.EventOrderPaid,
				AggregateType: enums.AggregateOrder,
				AggregateID:   id,
				Data:          payloads.OrderStatusChangedEvent{OrderID: id},
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	rows, err := repo.ListByAggregate(nil, first)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, repo.MarkTerminalTx(client.DB(), rows[0].ID, errors.New("bad payload"), 3))

	pending, err := repo.FetchUnpublishedForPublish(client.DB(), 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, second, pending[0].AggregateID)

	require.NoError(t, repo.MarkPublishedTx(client.DB(), pending[0].ID))
	pending, err = repo.FetchUnpublishedForPublish(client.DB(), 10, 3)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestDeletePublishedBeforeKeepsUnpublishedRows(t *testing.T) {
	client := dbtest.Client(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, nil)

	published, pending := uuid.New(), uuid.New()
	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		for _, id := range []uuid.UUID{published, pending} {
			if err := svc.Emit(context.Background(), tx, outbox.DomainEvent{
				EventType:     enums.EventOrderPaid,
				AggregateType: enums.AggregateOrder,
				AggregateID:   id,
				Data:          payloads.OrderStatusChangedEvent{OrderID: id},
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	rows, err := repo.ListByAggregate(nil, published)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, repo.MarkPublishedTx(client.DB(), rows[0].ID))

	deleted, err := repo.DeletePublishedBefore(context.Background(), nil, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, deleted)

	deleted, err = repo.DeletePublishedBefore(context.Background(), nil, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	rows, err = repo.ListByAggregate(nil, published)
	require.NoError(t, err)
	require.Empty(t, rows)
	rows, err = repo.ListByAggregate(nil, pending)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestEmitRejectsMalformedEvents(t *testing.T) {
	client := dbtest.Client(t)
	svc := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	orderID := uuid.New()

	cases := map[string]outbox.DomainEvent{
		"unknown type":  {EventType: "order_teleported", AggregateType: enums.AggregateOrder, AggregateID: orderID, Data: payloads.OrderCreatedEvent{OrderID: orderID}},
		"nil aggregate": {EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, Data: payloads.OrderCreatedEvent{}},
		"missing data":  {EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: orderID},
		"bad aggregate": {EventType: enums.EventOrderCreated, AggregateType: "cart", AggregateID: orderID, Data: payloads.OrderCreatedEvent{}},
	}
	for name, event := range cases {
		err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, event)
		})
		require.Error(t, err, name)
	}

	var count int64
	require.NoError(t, client.DB().Table("outbox_events").Count(&count).Error)
	require.Zero(t, count)
}
