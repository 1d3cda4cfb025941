package repository

import (
	"context"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
)

// ZoneRepository persists zones.
type ZoneRepository interface {
	// Create inserts a zone and fills its ID and timestamps. A duplicate name
	// is reported as apperrors.ErrAlreadyExists.
	Create(ctx context.Context, zone *domain.Zone) error
	GetByID(ctx context.Context, id int64) (*domain.Zone, error)
	GetNationwide(ctx context.Context) (*domain.Zone, error)
	// GetMany returns the zones among ids that exist, in id order.
	GetMany(ctx context.Context, ids []int64) ([]domain.Zone, error)
	List(ctx context.Context, includeInactive bool) ([]domain.Zone, error)
	// Update persists display name, description and active flag.
	Update(ctx context.Context, zone *domain.Zone) error
}

// PincodeRepository persists pincodes and their zone membership.
type PincodeRepository interface {
	Get(ctx context.Context, code string) (*domain.Pincode, error)
	// Upsert writes city, state and active flag; zone membership is kept.
	Upsert(ctx context.Context, pincode *domain.Pincode) error
	// ListByZones returns pincodes whose zone is one of zoneIDs.
	ListByZones(ctx context.Context, zoneIDs []int64, activeOnly bool) ([]domain.Pincode, error)
	ListAll(ctx context.Context, activeOnly bool) ([]domain.Pincode, error)
	// SetZone moves every code to zoneID, or clears membership when zoneID is nil.
	SetZone(ctx context.Context, codes []string, zoneID *int64) error
}

// WarehouseRepository persists the two-tier warehouse hierarchy.
type WarehouseRepository interface {
	// Create inserts w with its zone set (zonal) or pincode claims
	// (division). A pincode already claimed under the same parent is reported
	// as apperrors.ErrConflict.
	Create(ctx context.Context, w *domain.Warehouse) error
	GetByID(ctx context.Context, id int64) (*domain.Warehouse, error)
	List(ctx context.Context, filter domain.WarehouseFilter) ([]domain.Warehouse, int, error)
	ListDivisions(ctx context.Context, parentID int64) ([]domain.Warehouse, error)
	// ListZonalServing returns active zonal warehouses serving any of zoneIDs.
	ListZonalServing(ctx context.Context, zoneIDs []int64) ([]domain.Warehouse, error)
	// ListDivisionsCovering returns divisions under parentIDs that claim
	// pincode, active or not. Empty parentIDs means any parent.
	ListDivisionsCovering(ctx context.Context, pincode string, parentIDs []int64) ([]domain.Warehouse, error)
	ReplaceZones(ctx context.Context, id int64, zoneIDs []int64) error
	ReplacePincodes(ctx context.Context, id int64, pincodes []string) error
	// SetActive toggles whether the resolver may draw on the warehouse.
	SetActive(ctx context.Context, id int64, active bool) error
	// Delete removes the warehouse with its coverage and stock rows. A zonal
	// warehouse that still has divisions is reported as apperrors.ErrHasDependents.
	Delete(ctx context.Context, id int64) error
}

// StockRepository persists the stock ledger.
type StockRepository interface {
	Get(ctx context.Context, key domain.StockKey) (*domain.StockAssignment, error)
	// Apply upserts every row with a positive quantity and deletes every row
	// without one, all or nothing. Each row whose stored quantity changes is
	// recorded as a movement with reason in the same transaction.
	Apply(ctx context.Context, rows []domain.StockAssignment, reason domain.MovementReason) error
	// Aggregate returns the stored quantity per warehouse for one product
	// variant. Warehouses without a row are absent from the map.
	Aggregate(ctx context.Context, warehouseIDs []int64, productID int64, variantID *int64) (map[int64]int, error)
	ListByWarehouse(ctx context.Context, warehouseID int64, page, perPage int) ([]domain.StockAssignment, int, error)
	ListLowStock(ctx context.Context, page, perPage int) ([]domain.StockAssignment, int, error)
	// DeleteByProduct removes every row of productID, recording a purge
	// movement for each, and returns the count.
	DeleteByProduct(ctx context.Context, productID int64) (int64, error)
	// ListMovements returns a warehouse's movements, newest first.
	ListMovements(ctx context.Context, warehouseID int64, page, perPage int) ([]domain.StockMovement, int, error)
}
