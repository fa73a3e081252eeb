package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dmorelli/tutoring-slots/internal/model"
	"github.com/dmorelli/tutoring-slots/internal/queue"
	"github.com/dmorelli/tutoring-slots/internal/repository"
)

// ConfirmationPublisher pushes the confirmation event to the
// notification sink.  *queue.Publisher satisfies it in production.
type ConfirmationPublisher interface {
	PublishReservationConfirmed(ctx context.Context, ev queue.ReservationConfirmedEvent) error
}

// ConfirmTarget names the reservations a payment notification applies
// to: either a purchase-group reference or an explicit id list.  The
// notification decides the scope; nothing here infers whole-group
// intent from a single member id.
type ConfirmTarget struct {
	GroupRef string
	IDs      []uint64
}

func (t ConfirmTarget) empty() bool { return t.GroupRef == "" && len(t.IDs) == 0 }

// ConfirmResult reports what a confirmation attempt changed.
type ConfirmResult struct {
	Confirmed int64 // rows flipped HELD -> CONFIRMED by this call
	Notified  bool  // whether this call won the right to publish the event
}

// ConfirmationService applies payment notifications to the ledger.
// The provider delivers at least once, possibly reordered and
// duplicated, so everything here is a conditional update where zero
// rows affected means "nothing left to do" rather than failure.  A
// hold that logically expired but was not swept yet can still be
// confirmed: the conditional WHERE only cares about state, never
// wall-clock expiry, so confirmation wins over the reaper whenever it
// reaches a row first.
type ConfirmationService struct {
	db           *sql.DB
	reservations *repository.ReservationRepo
	publisher    ConfirmationPublisher
	logger       *zap.Logger
}

// NewConfirmationService constructs a ConfirmationService.  publisher
// may be nil, in which case confirmed groups are not announced.
func NewConfirmationService(db *sql.DB, reservations *repository.ReservationRepo, publisher ConfirmationPublisher, logger *zap.Logger) *ConfirmationService {
	return &ConfirmationService{db: db, reservations: reservations, publisher: publisher, logger: logger}
}

// ConfirmGroup idempotently transitions the target's HELD rows to
// CONFIRMED and publishes the confirmation event at most once per
// group, guarded by the durable notified flag that is check-and-set in
// the same transaction as the flip.  An empty or unknown target is a
// no-op, not an error: the webhook may fire before the rows exist and
// the provider has no productive retry for "already applied".
func (s *ConfirmationService) ConfirmGroup(ctx context.Context, target ConfirmTarget, paymentRef string) (ConfirmResult, error) {
	var result ConfirmResult
	if target.empty() {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin confirm tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var marked int64
	var members []model.Reservation
	if target.GroupRef != "" {
		if result.Confirmed, err = s.reservations.ConfirmGroupTx(ctx, tx, target.GroupRef, paymentRef); err != nil {
			return ConfirmResult{}, fmt.Errorf("confirm group: %w", err)
		}
		if marked, err = s.reservations.MarkGroupNotifiedTx(ctx, tx, target.GroupRef); err != nil {
			return ConfirmResult{}, fmt.Errorf("mark notified: %w", err)
		}
		if marked > 0 {
			if members, err = s.reservations.ListByGroupTx(ctx, tx, target.GroupRef); err != nil {
				return ConfirmResult{}, fmt.Errorf("load group rows: %w", err)
			}
		}
	} else {
		if result.Confirmed, err = s.reservations.ConfirmByIDsTx(ctx, tx, target.IDs, paymentRef); err != nil {
			return ConfirmResult{}, fmt.Errorf("confirm reservations: %w", err)
		}
		if marked, err = s.reservations.MarkNotifiedByIDsTx(ctx, tx, target.IDs); err != nil {
			return ConfirmResult{}, fmt.Errorf("mark notified: %w", err)
		}
		if marked > 0 {
			if members, err = s.reservations.ListByIDsTx(ctx, tx, target.IDs); err != nil {
				return ConfirmResult{}, fmt.Errorf("load reservation rows: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return ConfirmResult{}, fmt.Errorf("commit confirm tx: %w", err)
	}
	committed = true
	result.Notified = marked > 0

	if result.Confirmed == 0 && !result.Notified {
		s.logger.Info("confirmation no-op",
			zap.String("group_ref", target.GroupRef),
			zap.Uint64s("reservation_ids", target.IDs))
		return result, nil
	}
	s.logger.Info("reservations confirmed",
		zap.String("group_ref", target.GroupRef),
		zap.Int64("confirmed", result.Confirmed),
		zap.Bool("notified", result.Notified))

	if result.Notified && s.publisher != nil {
		ev := buildConfirmedEvent(target, paymentRef, members)
		// The flip is already durable; a lost notification is logged,
		// not rolled back, and the flag keeps retries from doubling it.
		if err := s.publisher.PublishReservationConfirmed(ctx, ev); err != nil {
			s.logger.Error("publish confirmation event failed",
				zap.String("group_ref", ev.GroupRef), zap.Error(err))
		}
	}
	return result, nil
}

func buildConfirmedEvent(target ConfirmTarget, paymentRef string, members []model.Reservation) queue.ReservationConfirmedEvent {
	ev := queue.ReservationConfirmedEvent{
		GroupRef:    target.GroupRef,
		PaymentRef:  paymentRef,
		ConfirmedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, m := range members {
		if m.State != model.StateConfirmed {
			continue
		}
		ev.ReservationIDs = append(ev.ReservationIDs, m.ID)
		ev.SlotIDs = append(ev.SlotIDs, m.SlotID)
		if ev.StudentName == "" {
			ev.StudentName = m.StudentName
			ev.StudentEmail = m.StudentEmail
		}
		if ev.GroupRef == "" && m.GroupRef != nil {
			ev.GroupRef = *m.GroupRef
		}
	}
	return ev
}
