package triage

// Severity levels returned by the assessment service.
const (
	SeverityLow       = "low"
	SeverityMedium    = "medium"
	SeverityHigh      = "high"
	SeverityEmergency = "emergency"
)

// Urgency levels for the hospital visit.
const (
	UrgencyRoutine   = "routine"
	UrgencySameDay   = "same-day"
	UrgencyEmergency = "emergency"
)

// Disclaimer is the standard not-a-diagnosis text used when the model
// omits its own.
const Disclaimer = "This is not a medical diagnosis. Please consult a doctor for proper evaluation."

// Assessment is the normalized triage record. The JSON keys match the
// structure requested from the model and are persisted verbatim with each
// consultation.
type Assessment struct {
	Severity          string  `json:"severity"`
	Confidence        float64 `json:"confidence"`
	Summary           string  `json:"assessment"`
	RecommendedAction string  `json:"recommended_action"`
	SpecialistNeeded  string  `json:"specialist_needed"`
	HospitalUrgency   string  `json:"hospital_urgency"`
	SHAClaimEligible  bool    `json:"sha_claim_eligible"`
	Disclaimer        string  `json:"disclaimer"`
}

// Fallback is the fixed assessment returned whenever the model call fails.
// Medium severity and a same-day visit keep the patient moving without
// overstating what we know.
func Fallback() Assessment {
	return Assessment{
		Severity:          SeverityMedium,
		Confidence:        0.5,
		Summary:           "Unable to fully analyze symptoms due to technical issue.",
		RecommendedAction: "Please visit the nearest hospital for proper evaluation.",
		SpecialistNeeded:  "General",
		HospitalUrgency:   UrgencySameDay,
		SHAClaimEligible:  true,
		Disclaimer:        Disclaimer,
	}
}
