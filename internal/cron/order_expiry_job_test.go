package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

type fakePendingOrders struct {
	pending    []models.Order
	expireErrs map[uuid.UUID]error
	expired    []uuid.UUID
	cutoff     time.Time
	limit      int
	findErr    error
}

func (f *fakePendingOrders) FindPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.pending, f.findErr
}

func (f *fakePendingOrders) Expire(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	if err := f.expireErrs[orderID]; err != nil {
		return nil, err
	}
	f.expired = append(f.expired, orderID)
	return &models.Order{ID: orderID}, nil
}

func newOrderExpiryJob(t *testing.T, orders *fakePendingOrders) *orderExpiryJob {
	t.Helper()
	jobIface, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:     logger.Nop(),
		Orders:     orders,
		PendingTTL: 30 * time.Minute,
		BatchSize:  25,
	})
	if err != nil {
		t.Fatalf("NewOrderExpiryJob: %v", err)
	}
	return jobIface.(*orderExpiryJob)
}

func TestOrderExpiryJobExpiresLapsedOrders(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	a, b := uuid.New(), uuid.New()
	orders := &fakePendingOrders{pending: []models.Order{{ID: a}, {ID: b}}}
	job := newOrderExpiryJob(t, orders)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !orders.cutoff.Equal(now.Add(-30 * time.Minute)) {
		t.Fatalf("unexpected cutoff %s", orders.cutoff)
	}
	if orders.limit != 25 {
		t.Fatalf("expected batch 25, got %d", orders.limit)
	}
	if len(orders.expired) != 2 {
		t.Fatalf("expected 2 expired, got %d", len(orders.expired))
	}
}

func TestOrderExpiryJobSkipsOrdersThatMovedOn(t *testing.T) {
	paid, cancelled, stale := uuid.New(), uuid.New(), uuid.New()
	orders := &fakePendingOrders{
		pending: []models.Order{{ID: paid}, {ID: cancelled}, {ID: stale}},
		expireErrs: map[uuid.UUID]error{
			paid:      pkgerrors.New(pkgerrors.CodeStateConflict, "order is not pending"),
			cancelled: pkgerrors.New(pkgerrors.CodeAlreadyTerminal, "order already cancelled"),
		},
	}
	job := newOrderExpiryJob(t, orders)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(orders.expired) != 1 || orders.expired[0] != stale {
		t.Fatalf("expected only stale order expired, got %v", orders.expired)
	}
}

func TestOrderExpiryJobCombinesUnexpectedErrors(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	orders := &fakePendingOrders{
		pending: []models.Order{{ID: a}, {ID: b}, {ID: c}},
		expireErrs: map[uuid.UUID]error{
			a: errors.New("deadlock"),
			c: errors.New("connection reset"),
		},
	}
	job := newOrderExpiryJob(t, orders)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected 2 errors, got %d", got)
	}
	if len(orders.expired) != 1 || orders.expired[0] != b {
		t.Fatalf("expected middle order still expired, got %v", orders.expired)
	}
}

func TestOrderExpiryJobQueryError(t *testing.T) {
	job := newOrderExpiryJob(t, &fakePendingOrders{findErr: errors.New("db down")})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewOrderExpiryJobValidates(t *testing.T) {
	if _, err := NewOrderExpiryJob(OrderExpiryJobParams{Logger: logger.Nop(), Orders: &fakePendingOrders{}}); err == nil {
		t.Fatal("expected pending ttl error")
	}
	job, err := NewOrderExpiryJob(OrderExpiryJobParams{Logger: logger.Nop(), Orders: &fakePendingOrders{}, PendingTTL: time.Minute})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.(*orderExpiryJob).batch != defaultExpiryBatch {
		t.Fatal("expected default batch size")
	}
}
