package model

import "time"

// Weekday enumerates the seven days on which a slot can recur.  The
// values are stored verbatim in the slots.weekday column, which is a
// MySQL ENUM with the same members.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

// Weekdays lists every valid weekday in calendar order.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Valid reports whether w is one of the seven enumerated weekdays.
func (w Weekday) Valid() bool {
	for _, d := range Weekdays {
		if w == d {
			return true
		}
	}
	return false
}

// SlotStatus is the effective availability of a slot, derived from its
// reservation ledger rather than stored.  See ResolveStatus for the
// derivation rules.
type SlotStatus string

const (
	StatusAvailable SlotStatus = "AVAILABLE"
	StatusHeld      SlotStatus = "HELD"
	StatusBlocked   SlotStatus = "BLOCKED"
	StatusConfirmed SlotStatus = "CONFIRMED"
)

// Slot is a bookable (teacher, weekday, time) combination.  Slots are
// created and deleted by administrative operations only; the
// reservation flow never mutates them.  Duplicate (teacher, weekday,
// time) rows are legal and carry independent reservation histories.
//
// Fields:
//
//	ID        – primary key identifier.
//	TeacherID – teacher who owns the slot.
//	Weekday   – day of the week the slot recurs on.
//	StartTime – time of day in "HH:MM" 24-hour form.
//	CreatedAt – creation timestamp.
type Slot struct {
	ID        uint64    `json:"id"`         // slots.id
	TeacherID uint64    `json:"teacher_id"` // slots.teacher_id
	Weekday   Weekday   `json:"weekday"`    // slots.weekday
	StartTime string    `json:"start_time"` // slots.start_time
	CreatedAt time.Time `json:"-"`          // slots.created_at
}
