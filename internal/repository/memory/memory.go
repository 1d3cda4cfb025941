// Package memory is an in-process implementation of the repository
// interfaces, used by STORE_BACKEND=memory and by service tests. It enforces
// the same uniqueness and dependency rules as the postgres schema.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	"github.com/bigandbest/admin-deployed-sub000/internal/repository"
	apperrors "github.com/bigandbest/admin-deployed-sub000/pkg/errors"
	"github.com/bigandbest/admin-deployed-sub000/pkg/pagination"
)

type stockKey struct {
	warehouse, product, variant int64
}

func keyOf(k domain.StockKey) stockKey {
	return stockKey{k.WarehouseID, k.ProductID, k.VariantOrZero()}
}

// Store holds all fulfillment data behind one lock so cascades stay atomic.
type Store struct {
	mu         sync.RWMutex
	zones      map[int64]domain.Zone
	pincodes   map[string]domain.Pincode
	warehouses map[int64]domain.Warehouse
	stock      map[stockKey]domain.StockAssignment
	movements  []domain.StockMovement
	nextZone   int64
	nextWH     int64
	nextMove   int64
	now        func() time.Time
}

// New creates a store seeded with the nationwide zone.
func New() *Store {
	s := &Store{
		zones:      make(map[int64]domain.Zone),
		pincodes:   make(map[string]domain.Pincode),
		warehouses: make(map[int64]domain.Warehouse),
		stock:      make(map[stockKey]domain.StockAssignment),
		now:        func() time.Time { return time.Now().UTC() },
	}
	s.nextZone++
	now := s.now()
	s.zones[s.nextZone] = domain.Zone{
		ID:           s.nextZone,
		Name:         domain.NationwideZoneName,
		DisplayName:  "Nationwide",
		IsNationwide: true,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return s
}

// Zones returns the zone repository view of s.
func (s *Store) Zones() repository.ZoneRepository { return (*zoneRepo)(s) }

// Pincodes returns the pincode repository view of s.
func (s *Store) Pincodes() repository.PincodeRepository { return (*pincodeRepo)(s) }

// Warehouses returns the warehouse repository view of s.
func (s *Store) Warehouses() repository.WarehouseRepository { return (*warehouseRepo)(s) }

// Stock returns the stock repository view of s.
func (s *Store) Stock() repository.StockRepository { return (*stockRepo)(s) }

func idString(id int64) string { return strconv.FormatInt(id, 10) }

func page[T any](items []T, p, perPage int) ([]T, int) {
	return pagination.Window(items, pagination.Params{Page: max(p, 1), PerPage: max(perPage, 1)}), len(items)
}

// ---------------------------------------------------------------------------
// zones
// ---------------------------------------------------------------------------

type zoneRepo Store

func (r *zoneRepo) Create(_ context.Context, zone *domain.Zone) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, z := range r.zones {
		if z.Name == zone.Name {
			return apperrors.AlreadyExists("zone", "name", zone.Name)
		}
	}
	r.nextZone++
	now := r.now()
	zone.ID = r.nextZone
	zone.CreatedAt, zone.UpdatedAt = now, now
	r.zones[zone.ID] = *zone
	return nil
}

func (r *zoneRepo) GetByID(_ context.Context, id int64) (*domain.Zone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	z, ok := r.zones[id]
	if !ok {
		return nil, apperrors.NotFound("zone", idString(id))
	}
	return &z, nil
}

func (r *zoneRepo) GetNationwide(_ context.Context) (*domain.Zone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, z := range r.zones {
		if z.IsNationwide {
			return &z, nil
		}
	}
	return nil, apperrors.NotFound("zone", domain.NationwideZoneName)
}

func (r *zoneRepo) GetMany(_ context.Context, ids []int64) ([]domain.Zone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Zone, 0, len(ids))
	for _, id := range ids {
		if z, ok := r.zones[id]; ok && !slices.ContainsFunc(out, func(o domain.Zone) bool { return o.ID == id }) {
			out = append(out, z)
		}
	}
	slices.SortFunc(out, func(a, b domain.Zone) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *zoneRepo) List(_ context.Context, includeInactive bool) ([]domain.Zone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Zone, 0, len(r.zones))
	for _, z := range r.zones {
		if includeInactive || z.IsActive {
			out = append(out, z)
		}
	}
	slices.SortFunc(out, func(a, b domain.Zone) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *zoneRepo) Update(_ context.Context, zone *domain.Zone) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	z, ok := r.zones[zone.ID]
	if !ok {
		return apperrors.NotFound("zone", idString(zone.ID))
	}
	z.DisplayName = zone.DisplayName
	z.Description = zone.Description
	z.IsActive = zone.IsActive
	z.UpdatedAt = r.now()
	r.zones[z.ID] = z
	*zone = z
	return nil
}

// ---------------------------------------------------------------------------
// pincodes
// ---------------------------------------------------------------------------

type pincodeRepo Store

func (r *pincodeRepo) Get(_ context.Context, code string) (*domain.Pincode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pincodes[code]
	if !ok {
		return nil, apperrors.UnknownPincode(code)
	}
	return &p, nil
}

func (r *pincodeRepo) Upsert(_ context.Context, pincode *domain.Pincode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.pincodes[pincode.Code]; ok {
		pincode.ZoneID = existing.ZoneID
	}
	r.pincodes[pincode.Code] = *pincode
	return nil
}

func (r *pincodeRepo) ListByZones(_ context.Context, zoneIDs []int64, activeOnly bool) ([]domain.Pincode, error) {
	return r.list(func(p domain.Pincode) bool {
		return p.ZoneID != nil && slices.Contains(zoneIDs, *p.ZoneID) && (!activeOnly || p.IsActive)
	}), nil
}

func (r *pincodeRepo) ListAll(_ context.Context, activeOnly bool) ([]domain.Pincode, error) {
	return r.list(func(p domain.Pincode) bool { return !activeOnly || p.IsActive }), nil
}

func (r *pincodeRepo) list(keep func(domain.Pincode) bool) []domain.Pincode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Pincode, 0)
	for _, p := range r.pincodes {
		if keep(p) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Pincode) int { return cmp.Compare(a.Code, b.Code) })
	return out
}

func (r *pincodeRepo) SetZone(_ context.Context, codes []string, zoneID *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, code := range codes {
		if _, ok := r.pincodes[code]; !ok {
			return apperrors.UnknownPincode(code)
		}
	}
	for _, code := range codes {
		p := r.pincodes[code]
		if zoneID != nil {
			id := *zoneID
			p.ZoneID = &id
		} else {
			p.ZoneID = nil
		}
		r.pincodes[code] = p
	}
	return nil
}

// ---------------------------------------------------------------------------
// warehouses
// ---------------------------------------------------------------------------

type warehouseRepo Store

func cloneWarehouse(w domain.Warehouse) domain.Warehouse {
	w.ZoneIDs = slices.Clone(w.ZoneIDs)
	w.Pincodes = slices.Clone(w.Pincodes)
	if w.ParentWarehouseID != nil {
		id := *w.ParentWarehouseID
		w.ParentWarehouseID = &id
	}
	return w
}

func sortWarehouses(ws []domain.Warehouse) {
	slices.SortFunc(ws, func(a, b domain.Warehouse) int { return cmp.Compare(a.ID, b.ID) })
}

// claimConflict mirrors the (parent_warehouse_id, pincode) unique constraint.
// Caller holds the lock.
func (r *warehouseRepo) claimConflict(parentID, self int64, pincodes []string) error {
	for _, w := range r.warehouses {
		if w.ID == self || w.ParentWarehouseID == nil || *w.ParentWarehouseID != parentID {
			continue
		}
		for _, code := range pincodes {
			if w.Serves(code) {
				return apperrors.Conflict("pincode " + code + " is already served by division warehouse " + idString(w.ID)).
					WithDetail("pincode", code).
					WithDetail("warehouse_id", idString(w.ID))
			}
		}
	}
	return nil
}

func (r *warehouseRepo) Create(_ context.Context, w *domain.Warehouse) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w.IsDivision() {
		if w.ParentWarehouseID == nil {
			return apperrors.InvalidInput("division warehouse requires a parent")
		}
		parent, ok := r.warehouses[*w.ParentWarehouseID]
		if !ok || !parent.IsZonal() {
			return apperrors.InvalidInput("parent warehouse " + idString(*w.ParentWarehouseID) + " is not a zonal warehouse")
		}
		if err := r.claimConflict(*w.ParentWarehouseID, 0, w.Pincodes); err != nil {
			return err
		}
	}

	r.nextWH++
	now := r.now()
	w.ID = r.nextWH
	w.CreatedAt, w.UpdatedAt = now, now
	r.warehouses[w.ID] = cloneWarehouse(*w)
	return nil
}

func (r *warehouseRepo) GetByID(_ context.Context, id int64) (*domain.Warehouse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.warehouses[id]
	if !ok {
		return nil, apperrors.NotFound("warehouse", idString(id))
	}
	w = cloneWarehouse(w)
	return &w, nil
}

func (r *warehouseRepo) filter(keep func(domain.Warehouse) bool) []domain.Warehouse {
	out := make([]domain.Warehouse, 0)
	for _, w := range r.warehouses {
		if keep(w) {
			out = append(out, cloneWarehouse(w))
		}
	}
	sortWarehouses(out)
	return out
}

func (r *warehouseRepo) List(_ context.Context, f domain.WarehouseFilter) ([]domain.Warehouse, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.filter(func(w domain.Warehouse) bool {
		if f.Type != "" && w.Type != f.Type {
			return false
		}
		if f.ParentID != nil && (w.ParentWarehouseID == nil || *w.ParentWarehouseID != *f.ParentID) {
			return false
		}
		return true
	})
	items, total := page(all, f.Page, f.PerPage)
	return items, total, nil
}

func (r *warehouseRepo) ListDivisions(_ context.Context, parentID int64) ([]domain.Warehouse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filter(func(w domain.Warehouse) bool {
		return w.ParentWarehouseID != nil && *w.ParentWarehouseID == parentID
	}), nil
}

func (r *warehouseRepo) ListZonalServing(_ context.Context, zoneIDs []int64) ([]domain.Warehouse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filter(func(w domain.Warehouse) bool {
		return w.IsZonal() && w.IsActive && domain.ZoneSet(zoneIDs).Intersects(w.ZoneIDs)
	}), nil
}

func (r *warehouseRepo) ListDivisionsCovering(_ context.Context, pincode string, parentIDs []int64) ([]domain.Warehouse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filter(func(w domain.Warehouse) bool {
		if !w.IsDivision() || !w.Serves(pincode) {
			return false
		}
		return len(parentIDs) == 0 || slices.Contains(parentIDs, *w.ParentWarehouseID)
	}), nil
}

func (r *warehouseRepo) ReplaceZones(_ context.Context, id int64, zoneIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.warehouses[id]
	if !ok {
		return apperrors.NotFound("warehouse", idString(id))
	}
	w.ZoneIDs = slices.Clone(zoneIDs)
	w.UpdatedAt = r.now()
	r.warehouses[id] = w
	return nil
}

func (r *warehouseRepo) ReplacePincodes(_ context.Context, id int64, pincodes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.warehouses[id]
	if !ok {
		return apperrors.NotFound("warehouse", idString(id))
	}
	if w.ParentWarehouseID != nil {
		if err := r.claimConflict(*w.ParentWarehouseID, id, pincodes); err != nil {
			return err
		}
	}
	w.Pincodes = slices.Clone(pincodes)
	w.UpdatedAt = r.now()
	r.warehouses[id] = w
	return nil
}

func (r *warehouseRepo) SetActive(_ context.Context, id int64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.warehouses[id]
	if !ok {
		return apperrors.NotFound("warehouse", idString(id))
	}
	w.IsActive = active
	w.UpdatedAt = r.now()
	r.warehouses[id] = w
	return nil
}

func (r *warehouseRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.warehouses[id]; !ok {
		return apperrors.NotFound("warehouse", idString(id))
	}
	children := 0
	for _, w := range r.warehouses {
		if w.ParentWarehouseID != nil && *w.ParentWarehouseID == id {
			children++
		}
	}
	if children > 0 {
		return apperrors.HasDependents("warehouse", idString(id), children)
	}

	delete(r.warehouses, id)
	for k := range r.stock {
		if k.warehouse == id {
			delete(r.stock, k)
		}
	}
	r.movements = slices.DeleteFunc(r.movements, func(m domain.StockMovement) bool {
		return m.WarehouseID == id
	})
	return nil
}

// ---------------------------------------------------------------------------
// stock
// ---------------------------------------------------------------------------

type stockRepo Store

func (r *stockRepo) Get(_ context.Context, key domain.StockKey) (*domain.StockAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.stock[keyOf(key)]
	if !ok {
		return nil, apperrors.NotFound("stock assignment", idString(key.WarehouseID)+"/"+idString(key.ProductID))
	}
	return &row, nil
}

func (r *stockRepo) Apply(_ context.Context, rows []domain.StockAssignment, reason domain.MovementReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range rows {
		if _, ok := r.warehouses[row.WarehouseID]; !ok {
			return apperrors.NotFound("warehouse", idString(row.WarehouseID))
		}
	}
	now := r.now()
	for _, row := range rows {
		k := keyOf(row.StockKey)
		r.record(row.StockKey, r.stock[k].Quantity, row.StoredQuantity(), reason, now)
		if row.Removes() {
			delete(r.stock, k)
			continue
		}
		row.UpdatedAt = now
		r.stock[k] = row
	}
	return nil
}

// record appends a movement unless the quantity is unchanged. Callers hold
// the write lock.
func (r *stockRepo) record(key domain.StockKey, before, after int, reason domain.MovementReason, at time.Time) {
	if before == after {
		return
	}
	m := domain.NewStockMovement(key, before, after, reason)
	if key.VariantID != nil {
		v := *key.VariantID
		m.VariantID = &v
	}
	r.nextMove++
	m.ID = r.nextMove
	m.CreatedAt = at
	r.movements = append(r.movements, m)
}

func (r *stockRepo) Aggregate(_ context.Context, warehouseIDs []int64, productID int64, variantID *int64) (map[int64]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v := domain.StockKey{VariantID: variantID}.VariantOrZero()
	out := make(map[int64]int)
	for _, id := range warehouseIDs {
		if row, ok := r.stock[stockKey{id, productID, v}]; ok {
			out[id] = row.Quantity
		}
	}
	return out, nil
}

func (r *stockRepo) list(keep func(domain.StockAssignment) bool) []domain.StockAssignment {
	out := make([]domain.StockAssignment, 0)
	for _, row := range r.stock {
		if keep(row) {
			out = append(out, row)
		}
	}
	slices.SortFunc(out, func(a, b domain.StockAssignment) int {
		return cmp.Or(
			cmp.Compare(a.WarehouseID, b.WarehouseID),
			cmp.Compare(a.ProductID, b.ProductID),
			cmp.Compare(a.VariantOrZero(), b.VariantOrZero()),
		)
	})
	return out
}

func (r *stockRepo) ListByWarehouse(_ context.Context, warehouseID int64, p, perPage int) ([]domain.StockAssignment, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items, total := page(r.list(func(s domain.StockAssignment) bool { return s.WarehouseID == warehouseID }), p, perPage)
	return items, total, nil
}

func (r *stockRepo) ListLowStock(_ context.Context, p, perPage int) ([]domain.StockAssignment, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items, total := page(r.list(func(s domain.StockAssignment) bool { return s.IsLowStock() }), p, perPage)
	return items, total, nil
}

func (r *stockRepo) DeleteByProduct(_ context.Context, productID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		n    int64
		gone []domain.StockAssignment
	)
	for k, row := range r.stock {
		if k.product == productID {
			gone = append(gone, row)
			delete(r.stock, k)
			n++
		}
	}
	slices.SortFunc(gone, func(a, b domain.StockAssignment) int {
		return cmp.Or(
			cmp.Compare(a.WarehouseID, b.WarehouseID),
			cmp.Compare(a.VariantOrZero(), b.VariantOrZero()),
		)
	})
	now := r.now()
	for _, row := range gone {
		r.record(row.StockKey, row.Quantity, 0, domain.MovementPurge, now)
	}
	return n, nil
}

func (r *stockRepo) ListMovements(_ context.Context, warehouseID int64, p, perPage int) ([]domain.StockMovement, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.StockMovement, 0)
	for i := len(r.movements) - 1; i >= 0; i-- {
		if r.movements[i].WarehouseID == warehouseID {
			out = append(out, r.movements[i])
		}
	}
	items, total := page(out, p, perPage)
	return items, total, nil
}
