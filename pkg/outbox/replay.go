package outbox

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Replayer lets operators inspect dead letters and hand them back to the publisher.
type Replayer struct {
	db     txRunner
	events *Repository
	dlq    *DLQRepository
	logg   *logger.Logger
}

func NewReplayer(db txRunner, events *Repository, dlq *DLQRepository, logg *logger.Logger) (*Replayer, error) {
	switch {
	case db == nil:
		return nil, errors.New("tx runner required")
	case events == nil:
		return nil, errors.New("outbox repository required")
	case dlq == nil:
		return nil, errors.New("dlq repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Replayer{db: db, events: events, dlq: dlq, logg: logg}, nil
}

func (r *Replayer) DeadLetters(ctx context.Context, reason enums.OutboxDLQErrorReason, limit int) ([]models.OutboxDLQ, error) {
	if reason != "" && !reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown dlq reason").
			WithDetails(map[string]any{"reason": reason})
	}
	rows, err := r.dlq.List(ctx, reason, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list dead letters")
	}
	return rows, nil
}

// Requeue resets the outbox row behind a dead letter and drops the DLQ entry in one
// commit. Unroutable events stay parked until their type is routed.
func (r *Replayer) Requeue(ctx context.Context, eventID uuid.UUID) error {
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err := r.dlq.findByEventID(ctx, tx, eventID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load dead letter")
		}
		if entry == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
		}
		if !entry.ErrorReason.Replayable() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dead letter is not replayable").
				WithDetails(map[string]any{"reason": entry.ErrorReason})
		}
		requeued, err := r.events.RequeueTx(tx.WithContext(ctx), eventID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "requeue outbox event")
		}
		if !requeued {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "outbox event already published or removed")
		}
		return r.dlq.DeleteByEventIDTx(tx, eventID)
	})
	if err != nil {
		return err
	}
	r.logg.Info(r.logg.WithField(ctx, "outbox_id", eventID.String()), "outbox event requeued")
	return nil
}
