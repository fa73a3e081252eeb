package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmorelli/tutoring-slots/internal/model"
	"github.com/dmorelli/tutoring-slots/internal/repository"
)

// defaultHoldTTL bounds how long an anonymous browsing hold keeps a
// slot out of the available pool before the reaper reclaims it.
const defaultHoldTTL = 10 * time.Minute

// defaultStudentName is recorded when the claimant leaves the name blank.
const defaultStudentName = "guest"

// HoldService creates and releases time-boxed holds on slots.  Every
// check-then-act sequence runs in one transaction with the slot rows
// locked for its duration, so two concurrent holds for the same slot
// cannot both observe AVAILABLE.  The open-slot unique index is the
// secondary defence: if a racing insert slips through anyway, the
// duplicate-key error surfaces as the same ErrSlotNotAvailable.
type HoldService struct {
	db           *sql.DB
	slots        *repository.SlotRepo
	reservations *repository.ReservationRepo
	holdTTL      time.Duration
	logger       *zap.Logger
}

// NewHoldService constructs a HoldService.  A non-positive ttl falls
// back to the ten-minute default.
func NewHoldService(db *sql.DB, slots *repository.SlotRepo, reservations *repository.ReservationRepo, ttl time.Duration, logger *zap.Logger) *HoldService {
	if ttl <= 0 {
		ttl = defaultHoldTTL
	}
	return &HoldService{db: db, slots: slots, reservations: reservations, holdTTL: ttl, logger: logger}
}

// HoldResult describes a newly created hold.
type HoldResult struct {
	ReservationID uint64
	GroupRef      string
	ExpiresAt     time.Time
}

// GroupHoldResult describes a newly created hold group.
type GroupHoldResult struct {
	GroupRef  string
	SlotIDs   []uint64
	ExpiresAt time.Time
}

// CreateHold claims a single slot for the default TTL.  It succeeds
// only if the slot resolves to AVAILABLE inside the transaction, and
// fails with ErrSlotNotFound or ErrSlotNotAvailable otherwise.  Even a
// single hold gets its own purchase-group reference so the payment
// webhook can address it uniformly.
func (s *HoldService) CreateHold(ctx context.Context, slotID uint64, studentName, studentEmail string) (*HoldResult, error) {
	if studentName == "" {
		studentName = defaultStudentName
	}
	groupRef := uuid.NewString()
	expiresAt := time.Now().UTC().Add(s.holdTTL)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin hold tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.checkAvailableTx(ctx, tx, []uint64{slotID}); err != nil {
		return nil, err
	}
	id, err := s.reservations.CreateTx(ctx, tx, &repository.HoldRecord{
		SlotID:       slotID,
		StudentName:  studentName,
		StudentEmail: studentEmail,
		State:        model.StateHeld,
		ExpiresAt:    &expiresAt,
		GroupRef:     &groupRef,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit hold tx: %w", err)
	}
	committed = true

	s.logger.Info("hold created",
		zap.Uint64("slot_id", slotID),
		zap.Uint64("reservation_id", id),
		zap.Time("expires_at", expiresAt))
	return &HoldResult{ReservationID: id, GroupRef: groupRef, ExpiresAt: expiresAt}, nil
}

// CreateHoldGroup claims several slots as one purchase, all or
// nothing: the whole set must resolve to AVAILABLE inside the
// transaction, and a failure on any slot leaves zero new rows behind.
// When groupRef is empty a fresh reference is generated; checkout
// passes the reference it already registered with the payment
// provider.
func (s *HoldService) CreateHoldGroup(ctx context.Context, slotIDs []uint64, studentName, studentEmail string, intakeForm []byte, groupRef string) (*GroupHoldResult, error) {
	unique := dedupe(slotIDs)
	if len(unique) == 0 {
		return nil, repository.ErrSlotNotFound
	}
	if studentName == "" {
		studentName = defaultStudentName
	}
	if groupRef == "" {
		groupRef = uuid.NewString()
	}
	expiresAt := time.Now().UTC().Add(s.holdTTL)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin hold tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.checkAvailableTx(ctx, tx, unique); err != nil {
		return nil, err
	}
	recs := make([]repository.HoldRecord, 0, len(unique))
	for _, slotID := range unique {
		recs = append(recs, repository.HoldRecord{
			SlotID:       slotID,
			StudentName:  studentName,
			StudentEmail: studentEmail,
			State:        model.StateHeld,
			ExpiresAt:    &expiresAt,
			GroupRef:     &groupRef,
			IntakeForm:   intakeForm,
		})
	}
	if err := s.reservations.CreateBulkTx(ctx, tx, recs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit hold tx: %w", err)
	}
	committed = true

	s.logger.Info("hold group created",
		zap.String("group_ref", groupRef),
		zap.Uint64s("slot_ids", unique),
		zap.Time("expires_at", expiresAt))
	return &GroupHoldResult{GroupRef: groupRef, SlotIDs: unique, ExpiresAt: expiresAt}, nil
}

// Release transitions a HELD reservation to CANCELLED.  It returns
// ErrNotHeld when the reservation is unknown, already confirmed or
// already cancelled: the conditional update keeps a confirmed booking
// out of reach of the public release path.
func (s *HoldService) Release(ctx context.Context, reservationID uint64) error {
	n, err := s.reservations.CancelHeld(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("release hold: %w", err)
	}
	if n == 0 {
		return repository.ErrNotHeld
	}
	s.logger.Info("hold released", zap.Uint64("reservation_id", reservationID))
	return nil
}

// checkAvailableTx locks the slot rows, reclaims any stale holds on
// them, and verifies every slot resolves to AVAILABLE.  Must run
// inside the same transaction as the subsequent insert.
func (s *HoldService) checkAvailableTx(ctx context.Context, tx *sql.Tx, slotIDs []uint64) error {
	locked, err := s.slots.LockTx(ctx, tx, slotIDs)
	if err != nil {
		return fmt.Errorf("lock slots: %w", err)
	}
	if len(locked) != len(slotIDs) {
		return repository.ErrSlotNotFound
	}
	if _, err := s.reservations.CancelExpiredBySlotsTx(ctx, tx, slotIDs); err != nil {
		return fmt.Errorf("reclaim stale holds: %w", err)
	}
	open, err := s.reservations.OpenBySlotsTx(ctx, tx, slotIDs)
	if err != nil {
		return fmt.Errorf("load ledger rows: %w", err)
	}
	bySlot := make(map[uint64][]model.Reservation, len(slotIDs))
	for _, row := range open {
		bySlot[row.SlotID] = append(bySlot[row.SlotID], row)
	}
	now := time.Now().UTC()
	for _, slotID := range slotIDs {
		if model.ResolveStatus(bySlot[slotID], now) != model.StatusAvailable {
			return repository.ErrSlotNotAvailable
		}
	}
	return nil
}

// dedupe drops zero and repeated ids while preserving order.
func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
