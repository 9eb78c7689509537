package conversation

import (
	"time"

	"github.com/afyacare/clinic-intake-platform/internal/triage"
)

// State identifies where a contact is in the intake flow.
type State string

const (
	StateGreeting          State = "greeting"
	StateAwaitingName      State = "awaiting_name"
	StateAwaitingSymptoms  State = "awaiting_symptoms"
	StateTriageComplete    State = "triage_complete"
	StateSelectingHospital State = "selecting_hospital"
	StateConfirmed         State = "confirmed"
)

// Valid reports whether s is one of the known intake states. Unknown
// values can appear after a bad migration or manual edit; the engine
// recovers by restarting the flow.
func (s State) Valid() bool {
	switch s {
	case StateGreeting, StateAwaitingName, StateAwaitingSymptoms,
		StateTriageComplete, StateSelectingHospital, StateConfirmed:
		return true
	}
	return false
}

// Context carries the per-conversation working data between turns.
// It is stored as jsonb alongside the state row. Fields are only
// meaningful in the states that set them.
type Context struct {
	PatientName string             `json:"patient_name,omitempty"`
	Symptoms    string             `json:"symptoms,omitempty"`
	Assessment  *triage.Assessment `json:"assessment,omitempty"`
	IsEmergency bool               `json:"is_emergency,omitempty"`
	HospitalID  int                `json:"hospital_id,omitempty"`
	Reference   string             `json:"reference,omitempty"`
}

// Conversation is one contact's state row, scoped to a tenant.
type Conversation struct {
	TenantID  string
	Phone     string
	State     State
	Context   Context
	Version   int64
	UpdatedAt time.Time
}
