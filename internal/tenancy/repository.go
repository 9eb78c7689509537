package tenancy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository stores tenants in the relational database.
type Repository struct {
	db db
}

// NewRepository initializes a repo backed by pgxpool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("tenancy: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting a mock database for testing.
func NewRepositoryWithDB(db db) *Repository {
	return &Repository{db: db}
}

const tenantColumns = `id, name, phone, whatsapp_number, plan, active, created_at`

// Create inserts a new clinic row with a generated id.
func (r *Repository) Create(ctx context.Context, req *CreateTenantRequest) (*Tenant, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := newTenantID()
	query := `
		INSERT INTO tenants (id, name, phone, whatsapp_number, plan, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query,
		id,
		req.Name,
		req.Phone,
		NormalizeE164(req.WhatsAppNumber),
		req.Plan,
	).Scan(&createdAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrNumberTaken
		}
		return nil, fmt.Errorf("tenancy: insert failed: %w", err)
	}

	return &Tenant{
		ID:             id,
		Name:           req.Name,
		Phone:          req.Phone,
		WhatsAppNumber: NormalizeE164(req.WhatsAppNumber),
		Plan:           req.Plan,
		Active:         true,
		CreatedAt:      createdAt,
	}, nil
}

// GetByID fetches a single clinic.
func (r *Repository) GetByID(ctx context.Context, id string) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return r.scanTenant(r.db.QueryRow(ctx, query, id))
}

// GetByNumber fetches the active clinic claiming an inbound WhatsApp number.
// The comparison is digits-only so formatting differences don't matter.
func (r *Repository) GetByNumber(ctx context.Context, number string) (*Tenant, error) {
	key := SanitizePhone(number)
	if key == "" {
		return nil, ErrTenantNotFound
	}
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE active AND regexp_replace(whatsapp_number, '\D', '', 'g') = $1
		ORDER BY created_at
		LIMIT 1
	`
	return r.scanTenant(r.db.QueryRow(ctx, query, key))
}

// List returns all clinics, newest first.
func (r *Repository) List(ctx context.Context) ([]*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("tenancy: list failed: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Phone, &t.WhatsAppNumber, &t.Plan, &t.Active, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("tenancy: scan failed: %w", err)
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}

// CountActive reports how many clinics are currently active.
func (r *Repository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tenants WHERE active`).Scan(&count); err != nil {
		return 0, fmt.Errorf("tenancy: count failed: %w", err)
	}
	return count, nil
}

// SetActive toggles the active flag. Clinics are never hard-deleted.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	ct, err := r.db.Exec(ctx, `UPDATE tenants SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("tenancy: toggle failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// Reset deletes all dependent rows for one clinic in a single transaction.
// The tenant row itself is kept; other tenants are never touched.
func (r *Repository) Reset(ctx context.Context, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tenancy: begin reset: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, table := range []string{"consultations", "conversation_states", "patients"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1`, table), id); err != nil {
			return fmt.Errorf("tenancy: reset %s: %w", table, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tenancy: commit reset: %w", err)
	}
	return nil
}

func (r *Repository) scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Phone, &t.WhatsAppNumber, &t.Plan, &t.Active, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("tenancy: select failed: %w", err)
	}
	return &t, nil
}

func newTenantID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return "clinic_" + hex.EncodeToString(buf)
}
