package forecast

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestResultRepoPG_Save(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	res := NewSoftwareResult(Software{Name: "iis", ServiceType: "hl7"})
	res.TestCaseID = "tc-1"

	args := make([]interface{}, 13)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	mock.ExpectExec("INSERT INTO forecast_result").WithArgs(args...).WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewResultRepoPG(mock)
	if err := repo.Save(context.Background(), res); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestResultRepoPG_SaveAssignsID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	args := make([]interface{}, 13)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	mock.ExpectExec("INSERT INTO forecast_result").WithArgs(args...).WillReturnResult(pgxmock.NewResult("INSERT", 1))

	res := &SoftwareResult{TestCaseID: "tc-1"}
	if err := NewResultRepoPG(mock).Save(context.Background(), res); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.ID == uuid.Nil {
		t.Error("expected Save to assign an ID")
	}
}

func TestResultRepoPG_SaveError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	args := make([]interface{}, 13)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	mock.ExpectExec("INSERT INTO forecast_result").WithArgs(args...).WillReturnError(errors.New("connection reset"))

	err = NewResultRepoPG(mock).Save(context.Background(), NewSoftwareResult(Software{Name: "iis"}))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestResultRepoPG_GetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM forecast_result WHERE id").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err = NewResultRepoPG(mock).GetByID(context.Background(), id)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResultRepoPG_ListByTestCaseEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT COUNT").WithArgs("tc-1").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT (.+) ORDER BY started_at DESC").WithArgs("tc-1", 10, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	items, total, err := NewResultRepoPG(mock).ListByTestCase(context.Background(), "tc-1", 10, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if total != 0 {
		t.Errorf("expected total 0, got %d", total)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
