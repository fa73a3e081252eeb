package model

import "time"

// State is the lifecycle state of a reservation.  It is a closed
// enumeration: HELD and BLOCKED are distinct states, never simulated
// through one another (a block is not a hold with a far-future
// expiry), so the reaper and the confirmation flow can never
// misinterpret an administrative block as an expirable hold.
type State string

const (
	// StateHeld is a temporary claim created by the normal hold flow.
	// A held reservation carries an expiry timestamp and occupies its
	// slot only until that expiry passes.
	StateHeld State = "HELD"
	// StateConfirmed is a paid booking.  Confirmed reservations are
	// durable: only the administrative release operation may cancel one.
	StateConfirmed State = "CONFIRMED"
	// StateCancelled is terminal for a row.  The slot becomes available
	// again by virtue of having no live reservation.
	StateCancelled State = "CANCELLED"
	// StateBlocked is an administrative claim with no expiry semantics.
	StateBlocked State = "BLOCKED"
)

// Valid reports whether s is a member of the state enumeration.
func (s State) Valid() bool {
	switch s {
	case StateHeld, StateConfirmed, StateCancelled, StateBlocked:
		return true
	}
	return false
}

// Reservation is one lifecycle attempt to claim a slot.  Rows are
// append-style: they are created by the hold flow or an administrative
// override and only ever transition state afterwards, so the table
// doubles as an audit trail.  At most one reservation per slot may be
// live (unexpired HELD, or CONFIRMED) at any instant.
//
// Fields:
//
//	ID            – primary key identifier.
//	SlotID        – slot being claimed.
//	StudentName   – claimant name (defaulted when absent).
//	StudentEmail  – claimant email (defaulted when absent).
//	State         – lifecycle state, see the State enumeration.
//	HoldExpiresAt – expiry of a HELD claim; nil for other states.
//	GroupRef      – purchase-group reference shared by reservations
//	                created in one checkout; nil for administrative rows.
//	IntakeForm    – opaque JSON intake-form payload captured at checkout.
//	PaymentRef    – external payment identifier set on confirmation.
//	Notified      – whether the confirmation notification was already
//	                published for this row; used to suppress duplicates.
//	CreatedAt     – creation timestamp.
//	UpdatedAt     – last state-transition timestamp.
type Reservation struct {
	ID            uint64     // reservations.id
	SlotID        uint64     // reservations.slot_id
	StudentName   string     // reservations.student_name
	StudentEmail  string     // reservations.student_email
	State         State      // reservations.state
	HoldExpiresAt *time.Time // reservations.hold_expires_at (nullable)
	GroupRef      *string    // reservations.group_ref (nullable)
	IntakeForm    []byte     // reservations.intake_form (nullable JSON)
	PaymentRef    *string    // reservations.payment_ref (nullable)
	Notified      bool       // reservations.notified
	CreatedAt     time.Time  // reservations.created_at
	UpdatedAt     time.Time  // reservations.updated_at
}

// Live reports whether the reservation occupies its slot at the given
// instant under the mutual-exclusion invariant: CONFIRMED rows always
// do, HELD rows do until their expiry passes.  BLOCKED rows keep a
// slot out of the available pool but are not "live" in the invariant's
// sense; ResolveStatus accounts for them separately.
func (r *Reservation) Live(now time.Time) bool {
	switch r.State {
	case StateConfirmed:
		return true
	case StateHeld:
		return r.HoldExpiresAt != nil && r.HoldExpiresAt.After(now)
	}
	return false
}
