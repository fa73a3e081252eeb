package model

import "time"

// ResolveStatus derives a slot's effective status from its
// non-cancelled reservation rows at the given instant.  The priority
// order is the crux of correctness and must not be reordered:
//
//  1. any CONFIRMED row  -> CONFIRMED
//  2. any BLOCKED row    -> BLOCKED
//  3. any unexpired HELD -> HELD
//  4. otherwise          -> AVAILABLE
//
// An expired HELD row that the reaper has not swept yet does not
// occupy the slot.  The function is pure; callers that act on the
// result must evaluate it inside the same transaction as the action.
func ResolveStatus(rows []Reservation, now time.Time) SlotStatus {
	held := false
	blocked := false
	for i := range rows {
		r := &rows[i]
		switch r.State {
		case StateConfirmed:
			return StatusConfirmed
		case StateBlocked:
			blocked = true
		case StateHeld:
			if r.Live(now) {
				held = true
			}
		}
	}
	if blocked {
		return StatusBlocked
	}
	if held {
		return StatusHeld
	}
	return StatusAvailable
}
