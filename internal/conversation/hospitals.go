package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Hospital is one referral option shown during hospital selection.
type Hospital struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Specialty string `json:"specialty"`
}

// DefaultHospitals is the built-in Nairobi referral list, used when a
// tenant has no override stored.
var DefaultHospitals = []Hospital{
	{ID: 1, Name: "Kenyatta National Hospital", Type: "General", Specialty: "Multi-specialty"},
	{ID: 2, Name: "Nairobi Hospital", Type: "Private", Specialty: "General"},
	{ID: 3, Name: "Aga Khan University Hospital", Type: "Premium", Specialty: "Multi-specialty"},
	{ID: 4, Name: "MP Shah Hospital", Type: "General", Specialty: "Cardiac"},
}

const hospitalsKeyTTL = 0 // overrides do not expire

// HospitalDirectory resolves the referral options for a tenant.
// Overrides live in Redis; without Redis (or without an override) the
// default list applies.
type HospitalDirectory struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewHospitalDirectory builds a directory. rdb may be nil, in which
// case every tenant gets the defaults.
func NewHospitalDirectory(rdb *redis.Client, logger *slog.Logger) *HospitalDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &HospitalDirectory{rdb: rdb, logger: logger}
}

func hospitalsKey(tenantID string) string {
	return fmt.Sprintf("tenant:%s:hospitals", tenantID)
}

// ForTenant returns the tenant's referral list, sorted by ID. Redis
// failures degrade to the defaults rather than blocking the turn.
func (d *HospitalDirectory) ForTenant(ctx context.Context, tenantID string) []Hospital {
	if d == nil || d.rdb == nil {
		return DefaultHospitals
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	raw, err := d.rdb.Get(ctx, hospitalsKey(tenantID)).Result()
	if err != nil {
		if err != redis.Nil {
			d.logger.Warn("hospital directory lookup failed, using defaults",
				"tenant_id", tenantID, "error", err)
		}
		return DefaultHospitals
	}
	var hospitals []Hospital
	if err := json.Unmarshal([]byte(raw), &hospitals); err != nil || len(hospitals) == 0 {
		d.logger.Warn("hospital directory entry malformed, using defaults",
			"tenant_id", tenantID)
		return DefaultHospitals
	}
	sort.Slice(hospitals, func(i, j int) bool { return hospitals[i].ID < hospitals[j].ID })
	return hospitals
}

// SetForTenant replaces a tenant's referral list.
func (d *HospitalDirectory) SetForTenant(ctx context.Context, tenantID string, hospitals []Hospital) error {
	if d == nil || d.rdb == nil {
		return fmt.Errorf("conversation: hospital overrides require redis")
	}
	if len(hospitals) == 0 {
		return fmt.Errorf("conversation: at least one hospital required")
	}
	payload, err := json.Marshal(hospitals)
	if err != nil {
		return fmt.Errorf("conversation: encode hospitals: %w", err)
	}
	if err := d.rdb.Set(ctx, hospitalsKey(tenantID), payload, hospitalsKeyTTL).Err(); err != nil {
		return fmt.Errorf("conversation: store hospitals: %w", err)
	}
	return nil
}
