// Package ledger owns slot capacity bookkeeping. Every seat change is a
// single conditional write on the slot document; there is no
// read-then-write path.
package ledger

import (
	"context"
	"time"
	slotserrors "vaxslot/internal/slots/errors"
	mongotx "vaxslot/pkg/db/mongo"
	"vaxslot/pkg/logger"
	"vaxslot/pkg/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
)

var (
	ErrSlotFull         = errors.New("slot is full")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrContention       = errors.New("seat update kept conflicting")
	ErrStoreUnavailable = errors.New("seat store unavailable")
)

// Store performs the atomic seat writes.
type Store interface {
	ReserveSeat(ctx context.Context, slotID string) (*model.Slot, error)
	ReleaseSeat(ctx context.Context, slotID string) error
}

type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Reservation is one claimed seat. Version is the slot version observed
// just before the increment.
type Reservation struct {
	SlotID  string
	Version int64
	Slot    *model.Slot
}

type Ledger struct {
	store Store
	cfg   Config
	log   *logger.Logger
}

func New(store Store, cfg Config, log *logger.Logger) *Ledger {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Ledger{
		store: store,
		cfg:   cfg,
		log:   log.Component("ledger"),
	}
}

func (l *Ledger) Reserve(ctx context.Context, slotID string) (*Reservation, error) {
	var before *model.Slot
	attempts := 0

	err := l.retry(ctx, func() error {
		attempts++
		slot, err := l.store.ReserveSeat(ctx, slotID)
		if err != nil {
			return classify(err)
		}
		before = slot
		return nil
	})
	if err != nil {
		err = exhausted(err, slotID, attempts)
		if errors.Is(err, ErrContention) || errors.Is(err, ErrStoreUnavailable) {
			l.log.Error("Seat reservation failed", "slot_id", slotID, "attempts", attempts, "error", err)
		}
		return nil, err
	}

	l.log.Debug("Seat reserved",
		"slot_id", slotID,
		"version", before.Version,
		"booked_count", before.BookedCount+1,
		"max_appointments", before.MaxAppointments,
	)
	return &Reservation{SlotID: slotID, Version: before.Version, Slot: before}, nil
}

// Release returns one seat. Releasing a slot with nothing booked is a no-op.
func (l *Ledger) Release(ctx context.Context, slotID string) error {
	attempts := 0

	err := l.retry(ctx, func() error {
		attempts++
		if err := l.store.ReleaseSeat(ctx, slotID); err != nil {
			return classify(err)
		}
		return nil
	})
	if err != nil {
		err = exhausted(err, slotID, attempts)
		l.log.Error("Seat release failed", "slot_id", slotID, "attempts", attempts, "error", err)
		return err
	}

	l.log.Debug("Seat released", "slot_id", slotID)
	return nil
}

func (l *Ledger) retry(ctx context.Context, op backoff.Operation) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = l.cfg.InitialBackoff
	eb.MaxInterval = l.cfg.MaxBackoff
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(l.cfg.MaxAttempts-1)), ctx)
	return backoff.Retry(op, b)
}

// classify leaves write conflicts retryable and stops on everything else.
func classify(err error) error {
	switch {
	case errors.Is(err, mongotx.ErrWriteConflict):
		return err
	case errors.Is(err, slotserrors.ErrSlotFull):
		return backoff.Permanent(errors.Mark(err, ErrSlotFull))
	case errors.Is(err, slotserrors.ErrNotFound), errors.Is(err, slotserrors.ErrInvalidID):
		return backoff.Permanent(errors.Mark(err, ErrSlotNotFound))
	case errors.Is(err, mongotx.ErrUnavailable):
		return backoff.Permanent(errors.Mark(err, ErrStoreUnavailable))
	default:
		return backoff.Permanent(err)
	}
}

func exhausted(err error, slotID string, attempts int) error {
	if errors.Is(err, mongotx.ErrWriteConflict) {
		return errors.Mark(errors.Wrapf(err, "slot %s after %d attempts", slotID, attempts), ErrContention)
	}
	return err
}
