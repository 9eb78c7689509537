package tenancy

import "errors"

var (
	// ErrTenantNotFound is returned when no clinic claims an inbound number.
	ErrTenantNotFound = errors.New("tenancy: no tenant for number")

	// ErrInvalidName is returned when a clinic name is missing.
	ErrInvalidName = errors.New("tenancy: name is required")

	// ErrMissingNumber is returned when the inbound WhatsApp number is missing.
	ErrMissingNumber = errors.New("tenancy: whatsapp number is required")

	// ErrNumberTaken is returned when another clinic already claims the number.
	ErrNumberTaken = errors.New("tenancy: whatsapp number already registered")
)
