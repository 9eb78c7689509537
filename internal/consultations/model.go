package consultations

import (
	"time"

	"github.com/afyacare/clinic-intake-platform/internal/triage"
)

// Consultation statuses. Only "active" is written by this service; the
// others are reachable by external processes.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusReferred  = "referred"
)

// Consultation is an append-only booking record. Rows are never mutated
// after insert.
type Consultation struct {
	ID               int64             `json:"id"`
	TenantID         string            `json:"tenant_id"`
	Phone            string            `json:"phone"`
	PatientName      string            `json:"patient_name"`
	Symptoms         string            `json:"symptoms"`
	Assessment       triage.Assessment `json:"assessment"`
	Severity         string            `json:"severity"`
	HospitalID       string            `json:"hospital_id"`
	Status           string            `json:"status"`
	ReferenceNumber  string            `json:"reference_number"`
	SHAClaimEligible bool              `json:"sha_claim_eligible"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Record is the payload for appending a consultation.
type Record struct {
	TenantID         string
	Phone            string
	PatientName      string
	Symptoms         string
	Assessment       triage.Assessment
	HospitalID       string
	ReferenceNumber  string
	SHAClaimEligible bool
}
