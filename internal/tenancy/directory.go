package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/afyacare/clinic-intake-platform/pkg/logging"
)

// DefaultTenant describes the clinic created when the directory is empty.
type DefaultTenant struct {
	Name           string
	Phone          string
	WhatsAppNumber string
}

// Directory resolves inbound transport addresses to clinics. Routing is by
// the number the message arrived on, never by the sender: a number no clinic
// claims fails closed with ErrTenantNotFound.
type Directory struct {
	repo   *Repository
	logger *logging.Logger
}

// NewDirectory creates a directory over the tenant repository.
func NewDirectory(repo *Repository, logger *logging.Logger) *Directory {
	if repo == nil {
		panic("tenancy: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Directory{repo: repo, logger: logger}
}

// Resolve returns the active clinic registered for the inbound number.
func (d *Directory) Resolve(ctx context.Context, inboundNumber string) (*Tenant, error) {
	tenant, err := d.repo.GetByNumber(ctx, inboundNumber)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			d.logger.Warn("no tenant claims inbound number", "to", inboundNumber)
		}
		return nil, err
	}
	return tenant, nil
}

// EnsureDefault creates the default clinic when zero active tenants exist.
// It runs once at startup so lookups stay free of hidden writes, and is
// idempotent across restarts.
func (d *Directory) EnsureDefault(ctx context.Context, def DefaultTenant) (*Tenant, error) {
	count, err := d.repo.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("tenancy: bootstrap count: %w", err)
	}
	if count > 0 {
		return nil, nil
	}

	number := def.WhatsAppNumber
	if number == "" {
		number = def.Phone
	}
	tenant, err := d.repo.Create(ctx, &CreateTenantRequest{
		Name:           def.Name,
		Phone:          def.Phone,
		WhatsAppNumber: number,
		Plan:           "starter",
	})
	if err != nil {
		// A concurrent boot may have won the race; that's fine.
		if errors.Is(err, ErrNumberTaken) {
			return nil, nil
		}
		return nil, fmt.Errorf("tenancy: bootstrap create: %w", err)
	}
	d.logger.Info("created default tenant", "tenant_id", tenant.ID, "name", tenant.Name)
	return tenant, nil
}
