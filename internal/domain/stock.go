package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockKey identifies a ledger row. A nil VariantID is the base product.
type StockKey struct {
	WarehouseID int64  `json:"warehouse_id"`
	ProductID   int64  `json:"product_id"`
	VariantID   *int64 `json:"variant_id,omitempty"`
}

// VariantOrZero returns the variant id with 0 standing for the base product.
func (k StockKey) VariantOrZero() int64 {
	if k.VariantID == nil {
		return 0
	}
	return *k.VariantID
}

// StockAssignment is the declared quantity of a product (or variant) held by
// a warehouse. Stored rows always have a positive quantity; applying a row
// with quantity at or below zero deletes it.
type StockAssignment struct {
	StockKey
	Quantity         int             `json:"quantity"`
	MinimumThreshold int             `json:"minimum_threshold"`
	CostPerUnit      decimal.Decimal `json:"cost_per_unit"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Removes reports whether applying the row deletes the assignment.
func (s *StockAssignment) Removes() bool {
	return s.Quantity <= 0
}

// IsLowStock reports whether quantity has fallen to the minimum threshold.
func (s *StockAssignment) IsLowStock() bool {
	return s.Quantity > 0 && s.Quantity <= s.MinimumThreshold
}

// SameVariant reports whether two optional variant ids denote the same row.
func SameVariant(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// MovementReason records why a ledger row changed.
type MovementReason string

const (
	// MovementAdjustment is a direct write of one row.
	MovementAdjustment MovementReason = "adjustment"
	// MovementAssignment is a row committed by the assignment workflow.
	MovementAssignment MovementReason = "assignment"
	// MovementPurge is a row removed because its product left the catalog.
	MovementPurge MovementReason = "purge"
)

// StockMovement is one entry of the ledger audit trail. A row that did not
// exist, or was removed, counts as quantity 0.
type StockMovement struct {
	ID int64 `json:"id"`
	StockKey
	QuantityBefore int            `json:"quantity_before"`
	QuantityAfter  int            `json:"quantity_after"`
	QuantityChange int            `json:"quantity_change"`
	Reason         MovementReason `json:"reason"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NewStockMovement builds the movement of key from before to after.
func NewStockMovement(key StockKey, before, after int, reason MovementReason) StockMovement {
	return StockMovement{
		StockKey:       key,
		QuantityBefore: before,
		QuantityAfter:  after,
		QuantityChange: after - before,
		Reason:         reason,
	}
}

// StoredQuantity is the quantity a row holds after it is applied.
func (s *StockAssignment) StoredQuantity() int {
	if s.Removes() {
		return 0
	}
	return s.Quantity
}
