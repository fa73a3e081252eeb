package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"

	"github.com/dmorelli/tutoring-slots/internal/repository"
)

func newAdminService(t *testing.T) (*AdminService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	svc := NewAdminService(db, repository.NewSlotRepo(db), repository.NewReservationRepo(db), 24*time.Hour, zap.NewNop())
	return svc, mock, func() { db.Close() }
}

func TestBlockCancelsOpenRowsAndInserts(t *testing.T) {
	svc, mock, done := newAdminService(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("state IN ('HELD','BLOCKED')")).
		WithArgs(uint64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservations")).
		WithArgs(uint64(4), overrideClaimant, "", "BLOCKED", nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(90, 1))
	mock.ExpectCommit()

	if err := svc.Block(context.Background(), 4); err != nil {
		t.Fatalf("block: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestBlockRefusesConfirmedSlot(t *testing.T) {
	svc, mock, done := newAdminService(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := svc.Block(context.Background(), 4)
	if !errors.Is(err, repository.ErrAlreadyConfirmed) {
		t.Fatalf("want ErrAlreadyConfirmed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestForcePendingInsertsExpiringHold(t *testing.T) {
	svc, mock, done := newAdminService(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("state IN ('HELD','BLOCKED')")).
		WithArgs(uint64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservations")).
		WithArgs(uint64(4), overrideClaimant, "", "HELD", sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(91, 1))
	mock.ExpectCommit()

	if err := svc.ForcePending(context.Background(), 4); err != nil {
		t.Fatalf("force pending: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestReleaseSlotCancelsConfirmed(t *testing.T) {
	svc, mock, done := newAdminService(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta("state IN ('HELD','CONFIRMED','BLOCKED')")).
		WithArgs(uint64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := svc.ReleaseSlot(context.Background(), 4)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 row cancelled, got %d", n)
	}
}

func TestReleaseSlotNotFound(t *testing.T) {
	svc, mock, done := newAdminService(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(uint64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := svc.ReleaseSlot(context.Background(), 99)
	if !errors.Is(err, repository.ErrSlotNotFound) {
		t.Fatalf("want ErrSlotNotFound, got %v", err)
	}
}

func TestDeleteSlotRefusesPaid(t *testing.T) {
	svc, mock, done := newAdminService(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := svc.DeleteSlot(context.Background(), 4)
	if !errors.Is(err, repository.ErrSlotPaid) {
		t.Fatalf("want ErrSlotPaid, got %v", err)
	}
}

func TestDeleteSlotSuccess(t *testing.T) {
	svc, mock, done := newAdminService(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM slots WHERE id = ?")).
		WithArgs(uint64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := svc.DeleteSlot(context.Background(), 4); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestCreateSlotValidation(t *testing.T) {
	svc, _, done := newAdminService(t)
	defer done()

	if _, err := svc.CreateSlot(context.Background(), 1, "FUNDAY", "10:00"); err == nil {
		t.Fatal("invalid weekday must be rejected")
	}
	if _, err := svc.CreateSlot(context.Background(), 1, "MONDAY", "25:99"); err == nil {
		t.Fatal("invalid start time must be rejected")
	}
}

func TestCreateSlotSuccess(t *testing.T) {
	svc, mock, done := newAdminService(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO slots (teacher_id, weekday, start_time)")).
		WithArgs(uint64(1), "MONDAY", "10:00").
		WillReturnResult(sqlmock.NewResult(12, 1))

	slot, err := svc.CreateSlot(context.Background(), 1, "MONDAY", "10:00")
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}
	if slot.ID != 12 {
		t.Fatalf("want id 12, got %d", slot.ID)
	}
}
