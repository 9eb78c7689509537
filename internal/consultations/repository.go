package consultations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNoConsultations is returned when a contact has no booking history.
	ErrNoConsultations = errors.New("consultations: none found")

	// ErrDuplicateReference is returned on a reference number collision.
	// Callers may retry with a fresh reference.
	ErrDuplicateReference = errors.New("consultations: reference number already exists")
)

// Querier is the subset of pgx used by the repository. pgxpool.Pool and
// pgx.Tx both satisfy it, so inserts can join a caller-owned transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores consultations in the relational database.
type Repository struct {
	db Querier
}

// NewRepository initializes a repo backed by pgxpool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("consultations: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting a mock database for testing.
func NewRepositoryWithDB(db Querier) *Repository {
	return &Repository{db: db}
}

// Record appends a consultation using the repository's own connection.
func (r *Repository) Record(ctx context.Context, rec Record) (*Consultation, error) {
	return r.RecordIn(ctx, r.db, rec)
}

// RecordIn appends a consultation through q, which may be a transaction
// shared with the conversation state save for the same turn.
func (r *Repository) RecordIn(ctx context.Context, q Querier, rec Record) (*Consultation, error) {
	payload, err := json.Marshal(rec.Assessment)
	if err != nil {
		return nil, fmt.Errorf("consultations: encode assessment: %w", err)
	}

	severity := rec.Assessment.Severity
	if severity == "" {
		severity = "unknown"
	}

	query := `
		INSERT INTO consultations
			(tenant_id, phone, patient_name, symptoms, assessment, severity, hospital_id, status, reference_number, sha_claim_eligible)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`
	c := Consultation{
		TenantID:         rec.TenantID,
		Phone:            rec.Phone,
		PatientName:      rec.PatientName,
		Symptoms:         rec.Symptoms,
		Assessment:       rec.Assessment,
		Severity:         severity,
		HospitalID:       rec.HospitalID,
		Status:           StatusActive,
		ReferenceNumber:  rec.ReferenceNumber,
		SHAClaimEligible: rec.SHAClaimEligible,
	}
	if err := q.QueryRow(ctx, query,
		rec.TenantID,
		rec.Phone,
		rec.PatientName,
		rec.Symptoms,
		payload,
		severity,
		rec.HospitalID,
		StatusActive,
		rec.ReferenceNumber,
		rec.SHAClaimEligible,
	).Scan(&c.ID, &c.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("consultations: insert failed: %w", err)
	}
	return &c, nil
}

// MostRecent returns the latest consultation for (tenant, phone).
func (r *Repository) MostRecent(ctx context.Context, tenantID, phone string) (*Consultation, error) {
	query := `
		SELECT id, tenant_id, phone, patient_name, symptoms, assessment, severity, hospital_id, status, reference_number, sha_claim_eligible, created_at
		FROM consultations
		WHERE tenant_id = $1 AND phone = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var (
		c       Consultation
		payload []byte
	)
	if err := r.db.QueryRow(ctx, query, tenantID, phone).Scan(
		&c.ID, &c.TenantID, &c.Phone, &c.PatientName, &c.Symptoms, &payload,
		&c.Severity, &c.HospitalID, &c.Status, &c.ReferenceNumber, &c.SHAClaimEligible, &c.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoConsultations
		}
		return nil, fmt.Errorf("consultations: select failed: %w", err)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &c.Assessment); err != nil {
			return nil, fmt.Errorf("consultations: decode assessment: %w", err)
		}
	}
	return &c, nil
}

// CountByTenant reports how many consultations a clinic has.
func (r *Repository) CountByTenant(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM consultations WHERE tenant_id = $1`, tenantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("consultations: count: %w", err)
	}
	return count, nil
}
