package domain

import (
	"slices"
	"strings"
	"time"
)

// NationwideZoneName is the name of the seeded zone that implicitly covers
// every pincode.
const NationwideZoneName = "nationwide"

// reservedZoneNames may never be used for a user-created zone.
var reservedZoneNames = []string{NationwideZoneName, "all", "global", "admin", "system"}

// Zone is a named grouping of pincodes.
type Zone struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"display_name"`
	Description  string    `json:"description,omitempty"`
	IsNationwide bool      `json:"is_nationwide"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NormalizeZoneName trims and lower-cases a zone name.
func NormalizeZoneName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsReservedZoneName reports whether name (in any case) is reserved.
func IsReservedZoneName(name string) bool {
	return slices.Contains(reservedZoneNames, NormalizeZoneName(name))
}

// Pincode is a six digit delivery code. ZoneID is nil when the pincode is
// covered only by the nationwide zone.
type Pincode struct {
	Code     string `json:"code"`
	City     string `json:"city"`
	State    string `json:"state"`
	IsActive bool   `json:"is_active"`
	ZoneID   *int64 `json:"zone_id,omitempty"`
}

// Deliverable reports whether the pincode can receive shipments at all.
func (p *Pincode) Deliverable() bool {
	return p != nil && p.IsActive
}

// ZoneSet is the destination zone set of a pincode: the nationwide zone plus
// its own zone, if any.
type ZoneSet []int64

// Intersects reports whether any id in s is in other.
func (s ZoneSet) Intersects(other []int64) bool {
	for _, id := range s {
		if slices.Contains(other, id) {
			return true
		}
	}
	return false
}
