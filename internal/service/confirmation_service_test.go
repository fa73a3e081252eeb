package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"

	"github.com/dmorelli/tutoring-slots/internal/queue"
	"github.com/dmorelli/tutoring-slots/internal/repository"
)

// recordingPublisher captures published events so tests can assert the
// at-most-once guarantee.
type recordingPublisher struct {
	events []queue.ReservationConfirmedEvent
	err    error
}

func (p *recordingPublisher) PublishReservationConfirmed(_ context.Context, ev queue.ReservationConfirmedEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func newConfirmationService(t *testing.T, pub ConfirmationPublisher) (*ConfirmationService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	svc := NewConfirmationService(db, repository.NewReservationRepo(db), pub, zap.NewNop())
	return svc, mock, func() { db.Close() }
}

func fullRowColumns() []string {
	return []string{"id", "slot_id", "student_name", "student_email", "state",
		"hold_expires_at", "group_ref", "intake_form", "payment_ref", "notified",
		"created_at", "updated_at"}
}

func TestConfirmGroupFirstDelivery(t *testing.T) {
	pub := &recordingPublisher{}
	svc, mock, done := newConfirmationService(t, pub)
	defer done()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET state = 'CONFIRMED', hold_expires_at = NULL, payment_ref = ?")).
		WithArgs("pay-1", "group-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("SET notified = 1 WHERE group_ref = ?")).
		WithArgs("group-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM reservations WHERE group_ref = ?")).
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows(fullRowColumns()).
			AddRow(10, 1, "ada", "ada@example.com", "CONFIRMED", nil, "group-1", nil, "pay-1", 1, now, now).
			AddRow(11, 2, "ada", "ada@example.com", "CONFIRMED", nil, "group-1", nil, "pay-1", 1, now, now))
	mock.ExpectCommit()

	result, err := svc.ConfirmGroup(context.Background(), ConfirmTarget{GroupRef: "group-1"}, "pay-1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.Confirmed != 2 || !result.Notified {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(pub.events) != 1 {
		t.Fatalf("want exactly one event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.GroupRef != "group-1" || ev.PaymentRef != "pay-1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if len(ev.ReservationIDs) != 2 || len(ev.SlotIDs) != 2 {
		t.Fatalf("event must carry every confirmed member: %+v", ev)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestConfirmGroupDuplicateDeliveryIsSilent(t *testing.T) {
	pub := &recordingPublisher{}
	svc, mock, done := newConfirmationService(t, pub)
	defer done()

	// The group was already confirmed and notified: both conditional
	// updates match zero rows and the event must not be republished.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET state = 'CONFIRMED'")).
		WithArgs("pay-1", "group-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SET notified = 1")).
		WithArgs("group-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	result, err := svc.ConfirmGroup(context.Background(), ConfirmTarget{GroupRef: "group-1"}, "pay-1")
	if err != nil {
		t.Fatalf("duplicate delivery must not error: %v", err)
	}
	if result.Confirmed != 0 || result.Notified {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(pub.events) != 0 {
		t.Fatalf("duplicate delivery must not publish, got %d events", len(pub.events))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestConfirmGroupNotifiesOnceWhenFlipAlreadyHappened(t *testing.T) {
	pub := &recordingPublisher{}
	svc, mock, done := newConfirmationService(t, pub)
	defer done()

	// A previous delivery flipped the rows but crashed before marking
	// them notified.  The retry confirms nothing new yet still wins the
	// notified flag and publishes.
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET state = 'CONFIRMED'")).
		WithArgs("pay-1", "group-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SET notified = 1")).
		WithArgs("group-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE group_ref = ?")).
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows(fullRowColumns()).
			AddRow(10, 1, "ada", "ada@example.com", "CONFIRMED", nil, "group-1", nil, "pay-1", 1, now, now))
	mock.ExpectCommit()

	result, err := svc.ConfirmGroup(context.Background(), ConfirmTarget{GroupRef: "group-1"}, "pay-1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.Confirmed != 0 || !result.Notified {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(pub.events) != 1 {
		t.Fatalf("want one event, got %d", len(pub.events))
	}
}

func TestConfirmGroupEmptyTargetIsNoOp(t *testing.T) {
	pub := &recordingPublisher{}
	svc, mock, done := newConfirmationService(t, pub)
	defer done()

	result, err := svc.ConfirmGroup(context.Background(), ConfirmTarget{}, "pay-1")
	if err != nil {
		t.Fatalf("empty target: %v", err)
	}
	if result.Confirmed != 0 || result.Notified {
		t.Fatalf("unexpected result: %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestConfirmGroupPublishFailureDoesNotFail(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, mock, done := newConfirmationService(t, pub)
	defer done()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET state = 'CONFIRMED'")).
		WithArgs("pay-1", "group-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET notified = 1")).
		WithArgs("group-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE group_ref = ?")).
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows(fullRowColumns()).
			AddRow(10, 1, "ada", "ada@example.com", "CONFIRMED", nil, "group-1", nil, "pay-1", 1, now, now))
	mock.ExpectCommit()

	// The flip committed; a broker outage is logged, not surfaced.
	result, err := svc.ConfirmGroup(context.Background(), ConfirmTarget{GroupRef: "group-1"}, "pay-1")
	if err != nil {
		t.Fatalf("publish failure must not surface: %v", err)
	}
	if result.Confirmed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestConfirmByIDs(t *testing.T) {
	pub := &recordingPublisher{}
	svc, mock, done := newConfirmationService(t, pub)
	defer done()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id IN (?,?) AND state = 'HELD'")).
		WithArgs("pay-2", uint64(10), uint64(11)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("SET notified = 1 WHERE id IN (?,?)")).
		WithArgs(uint64(10), uint64(11)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id IN (?,?)")).
		WithArgs(uint64(10), uint64(11)).
		WillReturnRows(sqlmock.NewRows(fullRowColumns()).
			AddRow(10, 1, "ada", "ada@example.com", "CONFIRMED", nil, "group-2", nil, "pay-2", 1, now, now).
			AddRow(11, 2, "ada", "ada@example.com", "CONFIRMED", nil, "group-2", nil, "pay-2", 1, now, now))
	mock.ExpectCommit()

	result, err := svc.ConfirmGroup(context.Background(), ConfirmTarget{IDs: []uint64{10, 11}}, "pay-2")
	if err != nil {
		t.Fatalf("confirm by ids: %v", err)
	}
	if result.Confirmed != 2 || !result.Notified {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(pub.events) != 1 {
		t.Fatalf("want one event, got %d", len(pub.events))
	}
	// The id-list target carries no group ref of its own; the event
	// picks it up from the rows.
	if pub.events[0].GroupRef != "group-2" {
		t.Fatalf("unexpected group ref %q", pub.events[0].GroupRef)
	}
}
