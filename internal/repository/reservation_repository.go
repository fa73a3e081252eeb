package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/dmorelli/tutoring-slots/internal/model"
)

// ReservationRepo provides data access to the reservations table, the
// ledger of claims against slots.  Rows are never deleted by any
// method here; every mutation is a state transition expressed as a
// conditional UPDATE, and zero rows affected is a valid outcome, not
// an error.  Methods with a Tx suffix run inside a caller-supplied
// transaction; the caller commits or rolls back.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// DB exposes the underlying handle for transaction management.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

// HoldRecord carries the columns needed to insert a new ledger row.
// It is used for normal holds (state HELD with an expiry and a group
// ref) and for administrative override rows (state BLOCKED, or HELD
// without a group ref).
type HoldRecord struct {
	SlotID       uint64
	StudentName  string
	StudentEmail string
	State        model.State
	ExpiresAt    *time.Time
	GroupRef     *string
	IntakeForm   []byte
}

const reservationColumns = `id, slot_id, student_name, student_email, state, hold_expires_at, group_ref, intake_form, payment_ref, notified, created_at, updated_at`

// openStates filters ledger rows to those that can influence a slot's
// effective status.  CANCELLED rows are terminal and never consulted.
const openStates = `('HELD','CONFIRMED','BLOCKED')`

// CreateTx inserts a single ledger row and returns its generated id.
// A duplicate-key violation on the open-slot unique index means a
// concurrent transaction claimed the slot between our availability
// check and the insert; it is translated to ErrSlotNotAvailable as the
// secondary line of defence behind the slot row lock.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, rec *HoldRecord) (uint64, error) {
	const q = `INSERT INTO reservations (slot_id, student_name, student_email, state, hold_expires_at, group_ref, intake_form)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q,
		rec.SlotID, rec.StudentName, rec.StudentEmail, string(rec.State),
		nullTime(rec.ExpiresAt), nullString(rec.GroupRef), nullBytes(rec.IntakeForm),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrSlotNotAvailable
		}
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// CreateBulkTx inserts multiple ledger rows in a single statement.
// All-or-nothing behaviour comes from the surrounding transaction: if
// the statement fails for any row, no row is written.  Duplicate-key
// violations are translated to ErrSlotNotAvailable exactly as in
// CreateTx.  Passing an empty slice has no effect and returns nil.
func (r *ReservationRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, recs []HoldRecord) error {
	if len(recs) == 0 {
		return nil
	}
	q := `INSERT INTO reservations (slot_id, student_name, student_email, state, hold_expires_at, group_ref, intake_form) VALUES `
	args := make([]interface{}, 0, len(recs)*7)
	for i, rec := range recs {
		if i > 0 {
			q += ","
		}
		q += "(?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			rec.SlotID, rec.StudentName, rec.StudentEmail, string(rec.State),
			nullTime(rec.ExpiresAt), nullString(rec.GroupRef), nullBytes(rec.IntakeForm),
		)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		if isDuplicateKey(err) {
			return ErrSlotNotAvailable
		}
		return err
	}
	return nil
}

// OpenBySlotsTx returns the non-cancelled rows for the given slots.
// Combined with model.ResolveStatus this is the availability resolver;
// callers that act on the result must hold the slot row locks in the
// same transaction.
func (r *ReservationRepo) OpenBySlotsTx(ctx context.Context, tx *sql.Tx, slotIDs []uint64) ([]model.Reservation, error) {
	if len(slotIDs) == 0 {
		return nil, nil
	}
	q := `SELECT id, slot_id, state, hold_expires_at FROM reservations WHERE slot_id IN (` +
		placeholders(len(slotIDs)) + `) AND state IN ` + openStates
	args := make([]interface{}, 0, len(slotIDs))
	for _, id := range slotIDs {
		args = append(args, id)
	}
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanOpenRows(rows)
}

// OpenAll returns the non-cancelled rows for every slot.  It backs the
// public listing, where per-slot status is derived without locking:
// the listing is advisory and any action on it re-checks inside a
// transaction.
func (r *ReservationRepo) OpenAll(ctx context.Context) ([]model.Reservation, error) {
	const q = `SELECT id, slot_id, state, hold_expires_at FROM reservations WHERE state IN ` + openStates
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	return scanOpenRows(rows)
}

func scanOpenRows(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		var res model.Reservation
		var state string
		var expires sql.NullTime
		if err := rows.Scan(&res.ID, &res.SlotID, &state, &expires); err != nil {
			return nil, err
		}
		res.State = model.State(state)
		if expires.Valid {
			t := expires.Time
			res.HoldExpiresAt = &t
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CancelExpiredBySlotsTx cancels HELD rows whose expiry has passed for
// the given slots.  The hold flow runs this before checking
// availability so a stale hold the reaper has not reached yet cannot
// shadow an otherwise free slot, and so the open-slot unique index
// stays satisfiable for the new row.
func (r *ReservationRepo) CancelExpiredBySlotsTx(ctx context.Context, tx *sql.Tx, slotIDs []uint64) (int64, error) {
	if len(slotIDs) == 0 {
		return 0, nil
	}
	q := `UPDATE reservations SET state = 'CANCELLED' WHERE slot_id IN (` + placeholders(len(slotIDs)) +
		`) AND state = 'HELD' AND hold_expires_at IS NOT NULL AND hold_expires_at <= UTC_TIMESTAMP()`
	args := make([]interface{}, 0, len(slotIDs))
	for _, id := range slotIDs {
		args = append(args, id)
	}
	result, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CancelHeld transitions a single HELD reservation to CANCELLED.  It
// returns the number of rows affected; zero means the reservation is
// unknown or not currently HELD and it is the caller's business
// whether that is an error.
func (r *ReservationRepo) CancelHeld(ctx context.Context, id uint64) (int64, error) {
	const q = `UPDATE reservations SET state = 'CANCELLED' WHERE id = ? AND state = 'HELD'`
	result, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ConfirmGroupTx flips every HELD member of a purchase group to
// CONFIRMED, clears its hold expiry and records the payment reference.
// Rows already CONFIRMED are untouched and zero rows affected is a
// valid outcome: the webhook may be a duplicate, may arrive before
// the rows exist, or may have lost the race to the reaper.
func (r *ReservationRepo) ConfirmGroupTx(ctx context.Context, tx *sql.Tx, groupRef, paymentRef string) (int64, error) {
	const q = `UPDATE reservations SET state = 'CONFIRMED', hold_expires_at = NULL, payment_ref = ?
	           WHERE group_ref = ? AND state = 'HELD'`
	result, err := tx.ExecContext(ctx, q, paymentRef, groupRef)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ConfirmByIDsTx is ConfirmGroupTx for an explicit id list, used when
// the provider notification carries reservation ids instead of a group
// reference.
func (r *ReservationRepo) ConfirmByIDsTx(ctx context.Context, tx *sql.Tx, ids []uint64, paymentRef string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := `UPDATE reservations SET state = 'CONFIRMED', hold_expires_at = NULL, payment_ref = ?
	      WHERE id IN (` + placeholders(len(ids)) + `) AND state = 'HELD'`
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, paymentRef)
	for _, id := range ids {
		args = append(args, id)
	}
	result, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// MarkGroupNotifiedTx atomically check-and-sets the notified flag on a
// group's CONFIRMED rows.  A positive count means this transaction won
// the right to publish the confirmation notification; zero means some
// earlier delivery already did, and the caller must stay silent.
func (r *ReservationRepo) MarkGroupNotifiedTx(ctx context.Context, tx *sql.Tx, groupRef string) (int64, error) {
	const q = `UPDATE reservations SET notified = 1 WHERE group_ref = ? AND state = 'CONFIRMED' AND notified = 0`
	result, err := tx.ExecContext(ctx, q, groupRef)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// MarkNotifiedByIDsTx is MarkGroupNotifiedTx for an explicit id list.
func (r *ReservationRepo) MarkNotifiedByIDsTx(ctx context.Context, tx *sql.Tx, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := `UPDATE reservations SET notified = 1 WHERE id IN (` + placeholders(len(ids)) +
		`) AND state = 'CONFIRMED' AND notified = 0`
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	result, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListByGroupTx returns the full rows of a purchase group, used to
// assemble the confirmation event payload.
func (r *ReservationRepo) ListByGroupTx(ctx context.Context, tx *sql.Tx, groupRef string) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations WHERE group_ref = ?`
	rows, err := tx.QueryContext(ctx, q, groupRef)
	if err != nil {
		return nil, err
	}
	return scanFullRows(rows)
}

// ListByIDsTx returns the full rows for an explicit id list.
func (r *ReservationRepo) ListByIDsTx(ctx context.Context, tx *sql.Tx, ids []uint64) ([]model.Reservation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE id IN (` + placeholders(len(ids)) + `)`
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanFullRows(rows)
}

// GetByID returns a single ledger row or sql.ErrNoRows.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	rows, err := r.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	out, err := scanFullRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sql.ErrNoRows
	}
	return &out[0], nil
}

func scanFullRows(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		var res model.Reservation
		var state string
		var expires sql.NullTime
		var groupRef, paymentRef sql.NullString
		var intake []byte
		if err := rows.Scan(
			&res.ID, &res.SlotID, &res.StudentName, &res.StudentEmail, &state,
			&expires, &groupRef, &intake, &paymentRef, &res.Notified,
			&res.CreatedAt, &res.UpdatedAt,
		); err != nil {
			return nil, err
		}
		res.State = model.State(state)
		if expires.Valid {
			t := expires.Time
			res.HoldExpiresAt = &t
		}
		if groupRef.Valid {
			g := groupRef.String
			res.GroupRef = &g
		}
		if paymentRef.Valid {
			p := paymentRef.String
			res.PaymentRef = &p
		}
		res.IntakeForm = intake
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// HasConfirmedBySlotTx reports whether the slot carries a CONFIRMED
// reservation.  Administrative overrides consult it before touching a
// slot's ledger.
func (r *ReservationRepo) HasConfirmedBySlotTx(ctx context.Context, tx *sql.Tx, slotID uint64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM reservations WHERE slot_id = ? AND state = 'CONFIRMED')`
	var exists bool
	if err := tx.QueryRowContext(ctx, q, slotID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CancelOpenBySlotTx cancels the slot's open rows.  With
// includeConfirmed false it spares CONFIRMED rows (block and
// force-pending use this); with includeConfirmed true it is the
// dedicated release operation, the only path allowed to cancel a
// confirmed booking.
func (r *ReservationRepo) CancelOpenBySlotTx(ctx context.Context, tx *sql.Tx, slotID uint64, includeConfirmed bool) (int64, error) {
	states := `('HELD','BLOCKED')`
	if includeConfirmed {
		states = openStates
	}
	q := `UPDATE reservations SET state = 'CANCELLED' WHERE slot_id = ? AND state IN ` + states
	result, err := tx.ExecContext(ctx, q, slotID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SweepExpired cancels every HELD row whose expiry has passed, in one
// statement.  The conditional WHERE makes the sweep race-safe against
// confirmation: whichever transaction commits first wins, and the
// loser's update simply matches zero rows.
func (r *ReservationRepo) SweepExpired(ctx context.Context) (int64, error) {
	const q = `UPDATE reservations SET state = 'CANCELLED'
	           WHERE state = 'HELD' AND hold_expires_at IS NOT NULL AND hold_expires_at <= UTC_TIMESTAMP()`
	result, err := r.db.ExecContext(ctx, q)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// isDuplicateKey reports whether err is a MySQL duplicate-entry error
// (1062), raised by the unique index over open rows per slot.
func isDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
