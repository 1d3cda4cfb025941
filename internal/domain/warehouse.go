package domain

import (
	"slices"
	"sort"
	"time"
)

// WarehouseType distinguishes the two tiers of the hierarchy.
type WarehouseType string

const (
	WarehouseTypeZonal    WarehouseType = "zonal"
	WarehouseTypeDivision WarehouseType = "division"
)

// Valid reports whether t is one of the two permitted warehouse kinds.
func (t WarehouseType) Valid() bool {
	return t == WarehouseTypeZonal || t == WarehouseTypeDivision
}

// Warehouse is either a zonal warehouse serving whole zones or a division
// warehouse serving a subset of its parent's pincodes. Pincode is the
// warehouse's own street address code and carries no coverage meaning.
type Warehouse struct {
	ID                int64         `json:"id"`
	Name              string        `json:"name"`
	Type              WarehouseType `json:"type"`
	Address           string        `json:"address,omitempty"`
	Pincode           string        `json:"pincode,omitempty"`
	ParentWarehouseID *int64        `json:"parent_warehouse_id,omitempty"`
	ZoneIDs           []int64       `json:"zone_ids,omitempty"`
	Pincodes          []string      `json:"pincodes,omitempty"`
	IsActive          bool          `json:"is_active"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// IsZonal reports whether w is a zonal warehouse.
func (w *Warehouse) IsZonal() bool { return w.Type == WarehouseTypeZonal }

// IsDivision reports whether w is a division warehouse.
func (w *Warehouse) IsDivision() bool { return w.Type == WarehouseTypeDivision }

// Serves reports whether a division claims pincode.
func (w *Warehouse) Serves(pincode string) bool {
	return slices.Contains(w.Pincodes, pincode)
}

// WarehouseFilter narrows warehouse listings.
type WarehouseFilter struct {
	Type     WarehouseType
	ParentID *int64
	Page     int
	PerPage  int
}

// PincodeAvailability annotates a pincode in a zonal warehouse's coverage
// with whether a division may still claim it.
type PincodeAvailability struct {
	Pincode     string `json:"pincode"`
	IsAvailable bool   `json:"is_available"`
	ClaimedBy   *int64 `json:"claimed_by,omitempty"`
}

// ClaimViolation describes why a division may not claim a set of pincodes.
type ClaimViolation struct {
	OutsideCoverage []string         // not covered by the parent's zones
	Claimed         map[string]int64 // pincode -> sibling division id
}

// Empty reports whether the claim is acceptable.
func (v ClaimViolation) Empty() bool {
	return len(v.OutsideCoverage) == 0 && len(v.Claimed) == 0
}

// ConflictingSiblings returns the sibling ids involved, sorted.
func (v ClaimViolation) ConflictingSiblings() []int64 {
	ids := make([]int64, 0, len(v.Claimed))
	for _, id := range v.Claimed {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// ClaimedPincodes returns the conflicting pincodes, sorted.
func (v ClaimViolation) ClaimedPincodes() []string {
	codes := make([]string, 0, len(v.Claimed))
	for code := range v.Claimed {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// CheckDivisionClaim verifies that every requested pincode lies inside the
// parent's coverage and is not held by a sibling. siblings must exclude the
// division being edited.
func CheckDivisionClaim(pincodes []string, coverage map[string]struct{}, siblings []Warehouse) ClaimViolation {
	owner := make(map[string]int64)
	for _, s := range siblings {
		for _, code := range s.Pincodes {
			owner[code] = s.ID
		}
	}

	var v ClaimViolation
	for _, code := range pincodes {
		if _, ok := coverage[code]; !ok {
			v.OutsideCoverage = append(v.OutsideCoverage, code)
			continue
		}
		if id, taken := owner[code]; taken {
			if v.Claimed == nil {
				v.Claimed = make(map[string]int64)
			}
			v.Claimed[code] = id
		}
	}
	return v
}

// Availability lists coverage in pincode order, marking codes held by a
// division as unavailable rather than omitting them.
func Availability(coverage map[string]struct{}, divisions []Warehouse) []PincodeAvailability {
	owner := make(map[string]int64)
	for _, d := range divisions {
		for _, code := range d.Pincodes {
			owner[code] = d.ID
		}
	}

	out := make([]PincodeAvailability, 0, len(coverage))
	for code := range coverage {
		entry := PincodeAvailability{Pincode: code, IsAvailable: true}
		if id, ok := owner[code]; ok {
			entry.IsAvailable = false
			entry.ClaimedBy = &id
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pincode < out[j].Pincode })
	return out
}

// FirstDuplicate returns the first value that occurs twice in values.
func FirstDuplicate[T comparable](values []T) (T, bool) {
	seen := make(map[T]struct{}, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			return v, true
		}
		seen[v] = struct{}{}
	}
	var zero T
	return zero, false
}
