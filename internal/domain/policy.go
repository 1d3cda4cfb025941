package domain

import "slices"

// DeliveryType is the catalog's declared visibility scope of a product.
type DeliveryType string

const (
	DeliveryNationwide DeliveryType = "nationwide"
	DeliveryZonal      DeliveryType = "zonal"
)

// Valid reports whether d is a known delivery type.
func (d DeliveryType) Valid() bool {
	return d == DeliveryNationwide || d == DeliveryZonal
}

// DeliveryPolicy is the catalog's read-only view of a product needed for
// resolution. VariantIDs lists the product's known variants.
type DeliveryPolicy struct {
	ProductID      int64        `json:"product_id"`
	DeliveryType   DeliveryType `json:"delivery_type"`
	AllowedZoneIDs []int64      `json:"allowed_zone_ids,omitempty"`
	VariantIDs     []int64      `json:"variant_ids,omitempty"`
}

// Admits reports whether the policy lets the product surface in any zone of
// zones. Only a zonal policy with an explicit allow-list can refuse.
func (p DeliveryPolicy) Admits(zones ZoneSet) bool {
	if p.DeliveryType != DeliveryZonal || len(p.AllowedZoneIDs) == 0 {
		return true
	}
	return zones.Intersects(p.AllowedZoneIDs)
}

// HasVariant reports whether variantID names a variant of the product. A nil
// variant always refers to the base product.
func (p DeliveryPolicy) HasVariant(variantID *int64) bool {
	if variantID == nil {
		return true
	}
	return slices.Contains(p.VariantIDs, *variantID)
}
