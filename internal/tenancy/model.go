package tenancy

import "time"

// Tenant is a clinic account. All patient, conversation, and consultation
// data is partitioned by it.
type Tenant struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	WhatsAppNumber string    `json:"whatsapp_number"`
	Plan           string    `json:"plan"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateTenantRequest is the payload for registering a new clinic.
type CreateTenantRequest struct {
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	WhatsAppNumber string `json:"whatsapp_number"`
	Plan           string `json:"plan"`
}

// Validate checks the required fields before persisting.
func (r *CreateTenantRequest) Validate() error {
	if r.Name == "" {
		return ErrInvalidName
	}
	if r.WhatsAppNumber == "" {
		return ErrMissingNumber
	}
	if r.Plan == "" {
		r.Plan = "starter"
	}
	return nil
}
