package patients

import "time"

// Patient is a contact known to one clinic. The same phone number may exist
// independently under multiple tenants.
type Patient struct {
	ID        int64      `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Phone     string     `json:"phone"`
	Name      *string    `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	LastVisit *time.Time `json:"last_visit"`
}

// DisplayName returns the stored name or a neutral placeholder.
func (p *Patient) DisplayName() string {
	if p.Name != nil && *p.Name != "" {
		return *p.Name
	}
	return "Patient"
}
