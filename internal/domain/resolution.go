package domain

// Classification is the outcome of resolving availability for a destination.
type Classification string

const (
	ZoneAvailable Classification = "zone_available"
	DivisionOnly  Classification = "division_only"
	Unavailable   Classification = "unavailable"
)

// Reasons attached to an unavailable resolution.
const (
	ReasonUnknownPincode  = "unknown_pincode"
	ReasonInactivePincode = "inactive_pincode"
	ReasonUnknownProduct  = "unknown_product"
	ReasonUnknownVariant  = "unknown_variant"
	ReasonPolicy          = "delivery_policy"
	ReasonNoStock         = "no_stock"
)

// PoolEntry is one warehouse contributing positive stock. Quantities of
// different entries are reported side by side and never summed.
type PoolEntry struct {
	WarehouseID   int64         `json:"warehouse_id"`
	WarehouseName string        `json:"warehouse_name"`
	WarehouseType WarehouseType `json:"warehouse_type"`
	Quantity      int           `json:"quantity"`
}

// Resolution is the read-time availability view for one product at one
// pincode.
type Resolution struct {
	Pincode        string         `json:"pincode"`
	ProductID      int64          `json:"product_id"`
	VariantID      *int64         `json:"variant_id,omitempty"`
	Classification Classification `json:"classification"`
	ZoneIDs        ZoneSet        `json:"zone_ids,omitempty"`
	Pool           []PoolEntry    `json:"pool"`
	Reason         string         `json:"reason,omitempty"`
}

// Available reports whether any tier holds stock.
func (r *Resolution) Available() bool {
	return r.Classification != Unavailable
}

// ResolveItem is one product in a batch resolution.
type ResolveItem struct {
	ProductID int64  `json:"product_id"`
	VariantID *int64 `json:"variant_id,omitempty"`
}
