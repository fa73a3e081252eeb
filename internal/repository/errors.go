// Package repository provides data access to the slot catalog and the
// reservation ledger.  This file defines the sentinel errors shared by
// the repositories and the services built on top of them.  Handlers
// compare against these values with errors.Is to pick HTTP statuses,
// so availability conflicts stay distinguishable from not-found
// conditions ("someone else just took it" vs "that slot doesn't
// exist").
package repository

import "errors"

// ErrSlotNotFound is returned when an operation references a slot id
// with no matching row.  Handlers translate this into 404.
var ErrSlotNotFound = errors.New("slot not found")

// ErrSlotNotAvailable is returned when a hold cannot be created
// because the slot is held, blocked or confirmed, including the case
// where a concurrent caller won the race.  Handlers translate this
// into 409; callers must not retry automatically.
var ErrSlotNotAvailable = errors.New("slot not available")

// ErrNotHeld is returned when a release targets a reservation that is
// not currently HELD: already confirmed, already cancelled, or an
// unknown id.  Deliberately conservative so a confirmed booking can
// never be cancelled by accident through the public release path.
var ErrNotHeld = errors.New("reservation not found or not held")

// ErrAlreadyConfirmed is returned when an administrative block or
// force-pending finds a CONFIRMED reservation on the slot.  Only the
// dedicated release operation may cancel a confirmed row.
var ErrAlreadyConfirmed = errors.New("slot has a confirmed reservation")

// ErrSlotPaid is returned when a slot deletion finds a CONFIRMED
// reservation on the slot.
var ErrSlotPaid = errors.New("slot has a paid reservation")
