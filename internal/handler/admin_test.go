package handler

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/dmorelli/tutoring-slots/internal/repository"
	"github.com/dmorelli/tutoring-slots/internal/service"
)

func newAdminHandler(t *testing.T) (*AdminHandler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	admin := service.NewAdminService(db, repository.NewSlotRepo(db), repository.NewReservationRepo(db), 24*time.Hour, zap.NewNop())
	return NewAdminHandler(admin), mock, func() { db.Close() }
}

func adminRequest(h func(echo.Context) error, method, target, id, body string) *httptest.ResponseRecorder {
	e := echo.New()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if id != "" {
		c.SetParamNames("id")
		c.SetParamValues(id)
	}
	_ = h(c)
	return rec
}

func TestBlockMapsConfirmedConflict(t *testing.T) {
	h, mock, done := newAdminHandler(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	rec := adminRequest(h.Block, http.MethodPost, "/v1/admin/slots/4/block", "4", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("want 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBlockMapsSlotNotFound(t *testing.T) {
	h, mock, done := newAdminHandler(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(uint64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	rec := adminRequest(h.Block, http.MethodPost, "/v1/admin/slots/99/block", "99", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}

func TestBlockRejectsBadID(t *testing.T) {
	h, _, done := newAdminHandler(t)
	defer done()

	rec := adminRequest(h.Block, http.MethodPost, "/v1/admin/slots/zero/block", "zero", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestDeleteSlotMapsPaidConflict(t *testing.T) {
	h, mock, done := newAdminHandler(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	rec := adminRequest(h.DeleteSlot, http.MethodDelete, "/v1/admin/slots/4", "4", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("want 409, got %d", rec.Code)
	}
}

func TestCreateSlotHandler(t *testing.T) {
	h, mock, done := newAdminHandler(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO slots")).
		WithArgs(uint64(1), "MONDAY", "10:00").
		WillReturnResult(sqlmock.NewResult(12, 1))

	rec := adminRequest(h.CreateSlot, http.MethodPost, "/v1/admin/slots", "",
		`{"teacher_id":1,"weekday":"MONDAY","start_time":"10:00"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = adminRequest(h.CreateSlot, http.MethodPost, "/v1/admin/slots", "",
		`{"teacher_id":1,"weekday":"FUNDAY","start_time":"10:00"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid weekday: want 400, got %d", rec.Code)
	}
}
