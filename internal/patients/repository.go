package patients

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores patients in the relational database.
type Repository struct {
	db db
}

// NewRepository initializes a repo backed by pgxpool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting a mock database for testing.
func NewRepositoryWithDB(db db) *Repository {
	return &Repository{db: db}
}

// LoadOrCreate fetches the patient for (tenant, phone), inserting a nameless
// row on first contact. The upsert keeps concurrent first messages idempotent.
func (r *Repository) LoadOrCreate(ctx context.Context, tenantID, phone string) (*Patient, error) {
	query := `
		INSERT INTO patients (tenant_id, phone)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id, phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id, tenant_id, phone, name, created_at, last_visit
	`
	var p Patient
	if err := r.db.QueryRow(ctx, query, tenantID, phone).Scan(
		&p.ID, &p.TenantID, &p.Phone, &p.Name, &p.CreatedAt, &p.LastVisit,
	); err != nil {
		return nil, fmt.Errorf("patients: load or create: %w", err)
	}
	return &p, nil
}

// UpdateName sets the display name and touches last_visit.
func (r *Repository) UpdateName(ctx context.Context, tenantID, phone, name string) (*Patient, error) {
	query := `
		UPDATE patients
		SET name = $3, last_visit = NOW()
		WHERE tenant_id = $1 AND phone = $2
		RETURNING id, tenant_id, phone, name, created_at, last_visit
	`
	var p Patient
	if err := r.db.QueryRow(ctx, query, tenantID, phone, name).Scan(
		&p.ID, &p.TenantID, &p.Phone, &p.Name, &p.CreatedAt, &p.LastVisit,
	); err != nil {
		return nil, fmt.Errorf("patients: update name: %w", err)
	}
	return &p, nil
}

// CountByTenant reports how many patients a clinic has.
func (r *Repository) CountByTenant(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE tenant_id = $1`, tenantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("patients: count: %w", err)
	}
	return count, nil
}
