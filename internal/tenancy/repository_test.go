package tenancy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestRepositoryCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepositoryWithDB(mock)

	mock.ExpectQuery("INSERT INTO tenants").
		WithArgs(pgxmock.AnyArg(), "Nairobi West Clinic", "+254711000000", "+254722000000", "starter").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	tenant, err := repo.Create(context.Background(), &CreateTenantRequest{
		Name:           "Nairobi West Clinic",
		Phone:          "+254711000000",
		WhatsAppNumber: "whatsapp:+254722000000",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tenant.Plan != "starter" || !tenant.Active {
		t.Fatalf("defaults not applied: %+v", tenant)
	}
	if tenant.WhatsAppNumber != "+254722000000" {
		t.Fatalf("number not normalized: %q", tenant.WhatsAppNumber)
	}
	if len(tenant.ID) != len("clinic_")+8 || tenant.ID[:7] != "clinic_" {
		t.Fatalf("unexpected id %q", tenant.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryCreateValidation(t *testing.T) {
	repo := NewRepositoryWithDB(nil)

	_, err := repo.Create(context.Background(), &CreateTenantRequest{WhatsAppNumber: "+254722000000"})
	if !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}

	_, err = repo.Create(context.Background(), &CreateTenantRequest{Name: "Clinic"})
	if !errors.Is(err, ErrMissingNumber) {
		t.Fatalf("expected ErrMissingNumber, got %v", err)
	}
}

func TestRepositoryCreateNumberTaken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepositoryWithDB(mock)

	mock.ExpectQuery("INSERT INTO tenants").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err = repo.Create(context.Background(), &CreateTenantRequest{
		Name:           "Clinic",
		WhatsAppNumber: "+254722000000",
	})
	if !errors.Is(err, ErrNumberTaken) {
		t.Fatalf("expected ErrNumberTaken, got %v", err)
	}
}

func TestRepositoryGetByNumber(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepositoryWithDB(mock)
	now := time.Now()

	// The lookup key is digits-only regardless of inbound formatting.
	mock.ExpectQuery("SELECT (.+) FROM tenants").
		WithArgs("254722000000").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "phone", "whatsapp_number", "plan", "active", "created_at"}).
			AddRow("clinic_ab12cd34", "AfyaCare Medical Center", "+254711000000", "+254722000000", "starter", true, now))

	tenant, err := repo.GetByNumber(context.Background(), "whatsapp:+254722000000")
	if err != nil {
		t.Fatalf("GetByNumber: %v", err)
	}
	if tenant.ID != "clinic_ab12cd34" {
		t.Fatalf("unexpected tenant: %+v", tenant)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryGetByNumberEmpty(t *testing.T) {
	repo := NewRepositoryWithDB(nil)
	if _, err := repo.GetByNumber(context.Background(), "whatsapp:"); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestRepositorySetActiveMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepositoryWithDB(mock)

	mock.ExpectExec("UPDATE tenants SET active").
		WithArgs("clinic_missing", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.SetActive(context.Background(), "clinic_missing", false); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestRepositoryResetScopedToTenant(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepositoryWithDB(mock)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM consultations").WithArgs("clinic_1").WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("DELETE FROM conversation_states").WithArgs("clinic_1").WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("DELETE FROM patients").WithArgs("clinic_1").WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	if err := repo.Reset(context.Background(), "clinic_1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
