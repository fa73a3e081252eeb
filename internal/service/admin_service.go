package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dmorelli/tutoring-slots/internal/model"
	"github.com/dmorelli/tutoring-slots/internal/repository"
)

// overrideClaimant is recorded on ledger rows created by
// administrative operations instead of a student name.
const overrideClaimant = "operator"

// defaultForceHoldTTL is how long a force-pending row occupies a slot
// unless configured otherwise.
const defaultForceHoldTTL = 24 * time.Hour

// AdminService implements the out-of-band overrides: block,
// force-pending, release and slot deletion, plus slot catalog
// management.  Overrides bypass the normal hold flow but respect the
// same invariants: a CONFIRMED reservation is never silently
// overwritten, and only ReleaseSlot may cancel one.
type AdminService struct {
	db           *sql.DB
	slots        *repository.SlotRepo
	reservations *repository.ReservationRepo
	forceHoldTTL time.Duration
	logger       *zap.Logger
}

// NewAdminService constructs an AdminService.  forceHoldTTL of zero
// falls back to 24 hours.
func NewAdminService(db *sql.DB, slots *repository.SlotRepo, reservations *repository.ReservationRepo, forceHoldTTL time.Duration, logger *zap.Logger) *AdminService {
	if forceHoldTTL <= 0 {
		forceHoldTTL = defaultForceHoldTTL
	}
	return &AdminService{
		db:           db,
		slots:        slots,
		reservations: reservations,
		forceHoldTTL: forceHoldTTL,
		logger:       logger,
	}
}

// CreateSlot adds a slot to the catalog.  Duplicate (teacher, weekday,
// time) combinations are accepted; each row keeps its own history.
func (s *AdminService) CreateSlot(ctx context.Context, teacherID uint64, weekday model.Weekday, startTime string) (*model.Slot, error) {
	if !weekday.Valid() {
		return nil, fmt.Errorf("invalid weekday %q", weekday)
	}
	if _, err := time.Parse("15:04", startTime); err != nil {
		return nil, fmt.Errorf("invalid start time %q", startTime)
	}
	slot := &model.Slot{TeacherID: teacherID, Weekday: weekday, StartTime: startTime}
	if err := s.slots.Create(ctx, slot); err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}
	s.logger.Info("slot created", zap.Uint64("slot_id", slot.ID), zap.Uint64("teacher_id", teacherID))
	return slot, nil
}

// Block takes a slot out of the available pool by cancelling its
// non-CONFIRMED rows and inserting a BLOCKED row.  Blocks carry no
// expiry; only the release override removes them.  It refuses with
// ErrAlreadyConfirmed when a paid booking exists.
func (s *AdminService) Block(ctx context.Context, slotID uint64) error {
	return s.override(ctx, slotID, model.StateBlocked, nil)
}

// ForcePending puts a slot into a held-like pending state attributed
// to the operator, expiring after the configured force-hold TTL.  Like
// Block, it refuses when a CONFIRMED reservation exists.
func (s *AdminService) ForcePending(ctx context.Context, slotID uint64) error {
	t := time.Now().UTC().Add(s.forceHoldTTL)
	return s.override(ctx, slotID, model.StateHeld, &t)
}

// override is the shared cancel-then-insert body of Block and ForcePending.
func (s *AdminService) override(ctx context.Context, slotID uint64, state model.State, expires *time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin override tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	locked, err := s.slots.LockTx(ctx, tx, []uint64{slotID})
	if err != nil {
		return fmt.Errorf("lock slot: %w", err)
	}
	if len(locked) == 0 {
		return repository.ErrSlotNotFound
	}
	confirmed, err := s.reservations.HasConfirmedBySlotTx(ctx, tx, slotID)
	if err != nil {
		return fmt.Errorf("check confirmed: %w", err)
	}
	if confirmed {
		return repository.ErrAlreadyConfirmed
	}
	if _, err := s.reservations.CancelOpenBySlotTx(ctx, tx, slotID, false); err != nil {
		return fmt.Errorf("cancel open rows: %w", err)
	}
	if _, err := s.reservations.CreateTx(ctx, tx, &repository.HoldRecord{
		SlotID:      slotID,
		StudentName: overrideClaimant,
		State:       state,
		ExpiresAt:   expires,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit override tx: %w", err)
	}
	committed = true

	s.logger.Info("administrative override applied",
		zap.Uint64("slot_id", slotID), zap.String("state", string(state)))
	return nil
}

// ReleaseSlot cancels every open row on the slot, CONFIRMED included.
// This is deliberately the only path in the system that can cancel a
// confirmed booking.  It returns the number of rows cancelled.
func (s *AdminService) ReleaseSlot(ctx context.Context, slotID uint64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin release tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	locked, err := s.slots.LockTx(ctx, tx, []uint64{slotID})
	if err != nil {
		return 0, fmt.Errorf("lock slot: %w", err)
	}
	if len(locked) == 0 {
		return 0, repository.ErrSlotNotFound
	}
	n, err := s.reservations.CancelOpenBySlotTx(ctx, tx, slotID, true)
	if err != nil {
		return 0, fmt.Errorf("cancel rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit release tx: %w", err)
	}
	committed = true

	s.logger.Info("slot released", zap.Uint64("slot_id", slotID), zap.Int64("cancelled", n))
	return n, nil
}

// DeleteSlot removes a slot from the catalog.  It refuses with
// ErrSlotPaid when a CONFIRMED reservation exists; release the slot
// first if the deletion is really intended.
func (s *AdminService) DeleteSlot(ctx context.Context, slotID uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	locked, err := s.slots.LockTx(ctx, tx, []uint64{slotID})
	if err != nil {
		return fmt.Errorf("lock slot: %w", err)
	}
	if len(locked) == 0 {
		return repository.ErrSlotNotFound
	}
	confirmed, err := s.reservations.HasConfirmedBySlotTx(ctx, tx, slotID)
	if err != nil {
		return fmt.Errorf("check confirmed: %w", err)
	}
	if confirmed {
		return repository.ErrSlotPaid
	}
	if _, err := s.slots.DeleteTx(ctx, tx, slotID); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	committed = true

	s.logger.Info("slot deleted", zap.Uint64("slot_id", slotID))
	return nil
}
