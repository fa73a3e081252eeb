// Package queue defines the message payloads exchanged over the
// message broker and the publisher that sends them.
package queue

// ReservationConfirmedEvent is published once per purchase group when
// a payment notification confirms its reservations.  It carries enough
// information for downstream consumers (the confirmation email sender,
// analytics) without querying the primary database.  Publication is
// suppressed for repeated webhook deliveries by the ledger's notified
// flag, so consumers may treat each event as a fresh confirmation.
type ReservationConfirmedEvent struct {
	GroupRef       string   `json:"group_ref"`
	ReservationIDs []uint64 `json:"reservation_ids"`
	SlotIDs        []uint64 `json:"slot_ids"`
	StudentName    string   `json:"student_name"`
	StudentEmail   string   `json:"student_email"`
	PaymentRef     string   `json:"payment_ref"`
	ConfirmedAt    string   `json:"confirmed_at"`
}
