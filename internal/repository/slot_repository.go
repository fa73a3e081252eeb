package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/dmorelli/tutoring-slots/internal/model"
)

// SlotRepo provides data access to the slots table.  Slots are
// read-mostly: the reservation flow only ever reads them, and the
// administrative surface creates and deletes them.
type SlotRepo struct {
	db *sql.DB
}

// NewSlotRepo returns a new SlotRepo bound to the provided database.
func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

// DB exposes the underlying handle so services can open transactions
// that span the slot and reservation repositories.
func (r *SlotRepo) DB() *sql.DB { return r.db }

// Create inserts a new slot and populates its generated ID.
func (r *SlotRepo) Create(ctx context.Context, s *model.Slot) error {
	const q = `INSERT INTO slots (teacher_id, weekday, start_time) VALUES (?, ?, ?)`
	result, err := r.db.ExecContext(ctx, q, s.TeacherID, string(s.Weekday), s.StartTime)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// GetByID returns a single slot.  It returns ErrSlotNotFound when no
// row matches.
func (r *SlotRepo) GetByID(ctx context.Context, id uint64) (*model.Slot, error) {
	const q = `SELECT id, teacher_id, weekday, start_time, created_at FROM slots WHERE id = ?`
	var s model.Slot
	var weekday string
	err := r.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.TeacherID, &weekday, &s.StartTime, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	s.Weekday = model.Weekday(weekday)
	return &s, nil
}

// List returns every slot ordered by teacher, weekday and time so the
// public listing is deterministic.
func (r *SlotRepo) List(ctx context.Context) ([]model.Slot, error) {
	const q = `SELECT id, teacher_id, weekday, start_time, created_at
	           FROM slots
	           ORDER BY teacher_id, FIELD(weekday,'MONDAY','TUESDAY','WEDNESDAY','THURSDAY','FRIDAY','SATURDAY','SUNDAY'), start_time`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	slots := make([]model.Slot, 0)
	for rows.Next() {
		var s model.Slot
		var weekday string
		if err := rows.Scan(&s.ID, &s.TeacherID, &weekday, &s.StartTime, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Weekday = model.Weekday(weekday)
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}

// LockTx takes row locks on the given slots for the duration of the
// transaction and returns the ids that actually exist.  Every
// check-then-act sequence against a slot's ledger must lock the slot
// row first; the lock is what serialises two concurrent holds for the
// same slot so only one of them can observe AVAILABLE.
func (r *SlotRepo) LockTx(ctx context.Context, tx *sql.Tx, ids []uint64) ([]uint64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT id FROM slots WHERE id IN (` + placeholders(len(ids)) + `) FOR UPDATE`
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var found []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found = append(found, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return found, nil
}

// DeleteTx removes a slot within the provided transaction and returns
// the number of rows deleted.  Ledger rows for the slot are removed by
// the schema's cascading foreign key; callers must have verified the
// paid-reservation guard before deleting.
func (r *SlotRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) (int64, error) {
	const q = `DELETE FROM slots WHERE id = ?`
	result, err := tx.ExecContext(ctx, q, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// placeholders builds a "?, ?, ?" fragment for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
