package consultations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/afyacare/clinic-intake-platform/internal/triage"
)

func TestRecordAppendsRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepositoryWithDB(mock)

	mock.ExpectQuery("INSERT INTO consultations").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), time.Now()))

	c, err := repo.Record(context.Background(), Record{
		TenantID:        "clinic_1",
		Phone:           "+254700000001",
		PatientName:     "Jane Wanjiku",
		Symptoms:        "fever and headache",
		Assessment:      triage.Fallback(),
		HospitalID:      "1",
		ReferenceNumber: "WCA0829120011",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if c.ID != 42 || c.Status != StatusActive {
		t.Fatalf("unexpected consultation: %+v", c)
	}
	if c.Severity != triage.SeverityMedium {
		t.Fatalf("severity not taken from assessment: %q", c.Severity)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordSubstitutesUnknownSeverity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepositoryWithDB(mock)

	mock.ExpectQuery("INSERT INTO consultations").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	c, err := repo.Record(context.Background(), Record{
		TenantID:        "clinic_1",
		ReferenceNumber: "WCA0829120012",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if c.Severity != "unknown" {
		t.Fatalf("expected unknown severity, got %q", c.Severity)
	}
}

func TestRecordDuplicateReference(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepositoryWithDB(mock)

	mock.ExpectQuery("INSERT INTO consultations").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "consultations_reference_number_key"})

	_, err = repo.Record(context.Background(), Record{TenantID: "clinic_1", ReferenceNumber: "WCA0829120011"})
	if !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
}

func TestMostRecent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepositoryWithDB(mock)

	mock.ExpectQuery("SELECT (.+) FROM consultations").
		WithArgs("clinic_1", "+254700000001").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "tenant_id", "phone", "patient_name", "symptoms", "assessment",
			"severity", "hospital_id", "status", "reference_number", "sha_claim_eligible", "created_at",
		}).AddRow(
			int64(9), "clinic_1", "+254700000001", "Jane", "fever", []byte(`{"severity":"low"}`),
			"low", "2", StatusActive, "WCA0829120011", true, time.Now(),
		))

	c, err := repo.MostRecent(context.Background(), "clinic_1", "+254700000001")
	if err != nil {
		t.Fatalf("MostRecent: %v", err)
	}
	if c.ReferenceNumber != "WCA0829120011" || c.Assessment.Severity != "low" {
		t.Fatalf("unexpected consultation: %+v", c)
	}

	mock.ExpectQuery("SELECT (.+) FROM consultations").
		WithArgs("clinic_1", "+254700000099").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.MostRecent(context.Background(), "clinic_1", "+254700000099"); !errors.Is(err, ErrNoConsultations) {
		t.Fatalf("expected ErrNoConsultations, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
