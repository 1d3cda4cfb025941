package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	"github.com/bigandbest/admin-deployed-sub000/internal/lock"
	"github.com/bigandbest/admin-deployed-sub000/internal/repository"
	apperrors "github.com/bigandbest/admin-deployed-sub000/pkg/errors"
	"github.com/bigandbest/admin-deployed-sub000/pkg/validator"
)

// HierarchyService manages zonal warehouses and their divisions.
type HierarchyService struct {
	warehouses repository.WarehouseRepository
	zones      repository.ZoneRepository
	geo        *GeographyService
	locker     lock.Locker
	lockTTL    time.Duration
	events     EventPublisher
	logger     *slog.Logger
}

// NewHierarchyService creates a new hierarchy service. Claims under one
// parent are serialized through locker for at most lockTTL.
func NewHierarchyService(
	store Store,
	geo *GeographyService,
	locker lock.Locker,
	lockTTL time.Duration,
	events EventPublisher,
	logger *slog.Logger,
) *HierarchyService {
	return &HierarchyService{
		warehouses: store.Warehouses(),
		zones:      store.Zones(),
		geo:        geo,
		locker:     locker,
		lockTTL:    lockTTL,
		events:     events,
		logger:     logger,
	}
}

// CreateZonalInput holds the fields of a new zonal warehouse.
type CreateZonalInput struct {
	Name    string
	Address string
	Pincode string
	ZoneIDs []int64
}

// CreateDivisionInput holds the fields of a new division warehouse.
type CreateDivisionInput struct {
	Name     string
	Address  string
	Pincode  string
	ParentID int64
	Pincodes []string
}

func divisionLockKey(parentID int64) string {
	return fmt.Sprintf("division-lock:%d", parentID)
}

func checkIdentity(name, pincode string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.InvalidInput("warehouse name is required")
	}
	if pincode != "" && !validator.IsPincode(pincode) {
		return apperrors.InvalidInput("warehouse pincode must be six digits not starting with 0").WithDetail("pincode", pincode)
	}
	return nil
}

// checkZones requires a non-empty set of distinct, existing, active zones.
func (s *HierarchyService) checkZones(ctx context.Context, zoneIDs []int64) error {
	if len(zoneIDs) == 0 {
		return apperrors.InvalidInput("a zonal warehouse must serve at least one zone")
	}
	if dup, ok := domain.FirstDuplicate(zoneIDs); ok {
		return apperrors.InvalidInput("zone " + idString(dup) + " is listed twice").WithDetail("zone_id", idString(dup))
	}

	zones, err := s.zones.GetMany(ctx, zoneIDs)
	if err != nil {
		return fmt.Errorf("get zones: %w", err)
	}
	found := make(map[int64]domain.Zone, len(zones))
	for _, z := range zones {
		found[z.ID] = z
	}
	for _, id := range zoneIDs {
		z, ok := found[id]
		if !ok {
			return apperrors.InvalidInput("zone " + idString(id) + " does not exist").WithDetail("zone_id", idString(id))
		}
		if !z.IsActive {
			return apperrors.InvalidInput("zone " + z.Name + " is inactive").WithDetail("zone_id", idString(id))
		}
	}
	return nil
}

// CreateZonal creates a warehouse serving whole zones.
func (s *HierarchyService) CreateZonal(ctx context.Context, in CreateZonalInput) (*domain.Warehouse, error) {
	if err := checkIdentity(in.Name, in.Pincode); err != nil {
		return nil, err
	}
	if err := s.checkZones(ctx, in.ZoneIDs); err != nil {
		return nil, err
	}

	w := &domain.Warehouse{
		Name:     strings.TrimSpace(in.Name),
		Type:     domain.WarehouseTypeZonal,
		Address:  strings.TrimSpace(in.Address),
		Pincode:  in.Pincode,
		ZoneIDs:  slices.Clone(in.ZoneIDs),
		IsActive: true,
	}
	if err := s.warehouses.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("create zonal warehouse: %w", err)
	}

	s.logger.InfoContext(ctx, "zonal warehouse created",
		slog.Int64("warehouse_id", w.ID),
		slog.Any("zone_ids", w.ZoneIDs),
	)
	s.publishCreated(ctx, w)
	return w, nil
}

// parentOf loads a warehouse that must be zonal to accept divisions.
func (s *HierarchyService) parentOf(ctx context.Context, parentID int64) (*domain.Warehouse, error) {
	parent, err := s.warehouses.GetByID(ctx, parentID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.InvalidInput("parent warehouse " + idString(parentID) + " does not exist").
				WithDetail("parent_warehouse_id", idString(parentID))
		}
		return nil, fmt.Errorf("get parent warehouse: %w", err)
	}
	if !parent.IsZonal() {
		return nil, apperrors.InvalidInput("parent warehouse " + idString(parentID) + " is not a zonal warehouse").
			WithDetail("parent_warehouse_id", idString(parentID))
	}
	return parent, nil
}

// checkClaim verifies pincodes against the parent's coverage and its other
// divisions. self is the division being edited, or 0.
func (s *HierarchyService) checkClaim(ctx context.Context, parent *domain.Warehouse, self int64, pincodes []string) error {
	if len(pincodes) == 0 {
		return apperrors.InvalidInput("a division warehouse must claim at least one pincode")
	}
	if dup, ok := domain.FirstDuplicate(pincodes); ok {
		return apperrors.InvalidInput("pincode " + dup + " is listed twice").WithDetail("pincode", dup)
	}

	coverage, err := s.geo.CoverageOf(ctx, parent.ZoneIDs)
	if err != nil {
		return err
	}
	siblings, err := s.warehouses.ListDivisions(ctx, parent.ID)
	if err != nil {
		return fmt.Errorf("list divisions of %d: %w", parent.ID, err)
	}
	siblings = slices.DeleteFunc(siblings, func(w domain.Warehouse) bool { return w.ID == self })

	v := domain.CheckDivisionClaim(pincodes, coverage, siblings)
	if len(v.OutsideCoverage) > 0 {
		return apperrors.InvalidInput(fmt.Sprintf("pincodes %s are outside the zones of warehouse %d",
			strings.Join(v.OutsideCoverage, ", "), parent.ID)).
			WithDetail("pincode", v.OutsideCoverage[0])
	}
	if len(v.Claimed) > 0 {
		codes := v.ClaimedPincodes()
		return apperrors.Conflict(fmt.Sprintf("pincode %s is already served by division warehouse %d",
			codes[0], v.Claimed[codes[0]])).
			WithDetail("pincode", codes[0]).
			WithDetail("warehouse_id", idString(v.Claimed[codes[0]]))
	}
	return nil
}

// withParentLock runs fn while holding the claim lock of parentID.
func (s *HierarchyService) withParentLock(ctx context.Context, parentID int64, fn func() error) error {
	release, err := s.locker.Obtain(ctx, divisionLockKey(parentID), s.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotObtained) {
			return apperrors.Conflict("concurrent division change").WithDetail("parent_warehouse_id", idString(parentID))
		}
		return fmt.Errorf("obtain division lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "failed to release division lock",
				slog.Int64("parent_warehouse_id", parentID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return fn()
}

// CreateDivision creates a division claiming a subset of its parent's
// coverage not held by any sibling.
func (s *HierarchyService) CreateDivision(ctx context.Context, in CreateDivisionInput) (*domain.Warehouse, error) {
	if err := checkIdentity(in.Name, in.Pincode); err != nil {
		return nil, err
	}
	parent, err := s.parentOf(ctx, in.ParentID)
	if err != nil {
		return nil, err
	}

	w := &domain.Warehouse{
		Name:              strings.TrimSpace(in.Name),
		Type:              domain.WarehouseTypeDivision,
		Address:           strings.TrimSpace(in.Address),
		Pincode:           in.Pincode,
		ParentWarehouseID: &parent.ID,
		Pincodes:          slices.Clone(in.Pincodes),
		IsActive:          true,
	}
	err = s.withParentLock(ctx, parent.ID, func() error {
		if err := s.checkClaim(ctx, parent, 0, in.Pincodes); err != nil {
			return err
		}
		return s.warehouses.Create(ctx, w)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "division warehouse created",
		slog.Int64("warehouse_id", w.ID),
		slog.Int64("parent_warehouse_id", parent.ID),
		slog.Int("pincodes", len(w.Pincodes)),
	)
	s.publishCreated(ctx, w)
	return w, nil
}

func (s *HierarchyService) GetWarehouse(ctx context.Context, id int64) (*domain.Warehouse, error) {
	return s.warehouses.GetByID(ctx, id)
}

func (s *HierarchyService) ListWarehouses(ctx context.Context, filter domain.WarehouseFilter) ([]domain.Warehouse, int, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, 0, apperrors.InvalidInput("type must be zonal or division")
	}
	items, total, err := s.warehouses.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list warehouses: %w", err)
	}
	return items, total, nil
}

// DivisionsOf lists the divisions under a zonal warehouse.
func (s *HierarchyService) DivisionsOf(ctx context.Context, zonalID int64) ([]domain.Warehouse, error) {
	w, err := s.warehouses.GetByID(ctx, zonalID)
	if err != nil {
		return nil, err
	}
	if !w.IsZonal() {
		return nil, apperrors.InvalidInput("warehouse " + idString(zonalID) + " is not a zonal warehouse")
	}
	divisions, err := s.warehouses.ListDivisions(ctx, zonalID)
	if err != nil {
		return nil, fmt.Errorf("list divisions of %d: %w", zonalID, err)
	}
	return divisions, nil
}

// SiblingsCovering returns the divisions sharing a parent with excluding that
// claim pincode, excluding itself. Passing a zonal id lists its divisions.
func (s *HierarchyService) SiblingsCovering(ctx context.Context, pincode string, excluding int64) ([]domain.Warehouse, error) {
	w, err := s.warehouses.GetByID(ctx, excluding)
	if err != nil {
		return nil, err
	}
	parentID := w.ID
	if w.IsDivision() {
		parentID = *w.ParentWarehouseID
	}

	covering, err := s.warehouses.ListDivisionsCovering(ctx, pincode, []int64{parentID})
	if err != nil {
		return nil, fmt.Errorf("list divisions covering %s: %w", pincode, err)
	}
	return slices.DeleteFunc(covering, func(d domain.Warehouse) bool { return d.ID == excluding }), nil
}

// CoverageOf lists, in order, the pincodes a zonal warehouse covers.
func (s *HierarchyService) CoverageOf(ctx context.Context, zonalID int64) ([]string, error) {
	w, err := s.warehouses.GetByID(ctx, zonalID)
	if err != nil {
		return nil, err
	}
	if !w.IsZonal() {
		return nil, apperrors.InvalidInput("warehouse " + idString(zonalID) + " is not a zonal warehouse")
	}
	coverage, err := s.geo.CoverageOf(ctx, w.ZoneIDs)
	if err != nil {
		return nil, err
	}
	return sortedCodes(coverage), nil
}

// AvailablePincodesFor lists a zonal warehouse's coverage with each pincode
// marked available or claimed. Claims of excluding are treated as free, so
// an edited division sees its own pincodes as selectable.
func (s *HierarchyService) AvailablePincodesFor(ctx context.Context, zonalID int64, excluding *int64) ([]domain.PincodeAvailability, error) {
	w, err := s.warehouses.GetByID(ctx, zonalID)
	if err != nil {
		return nil, err
	}
	if !w.IsZonal() {
		return nil, apperrors.InvalidInput("warehouse " + idString(zonalID) + " is not a zonal warehouse")
	}

	coverage, err := s.geo.CoverageOf(ctx, w.ZoneIDs)
	if err != nil {
		return nil, err
	}
	divisions, err := s.warehouses.ListDivisions(ctx, zonalID)
	if err != nil {
		return nil, fmt.Errorf("list divisions of %d: %w", zonalID, err)
	}
	if excluding != nil {
		divisions = slices.DeleteFunc(divisions, func(d domain.Warehouse) bool { return d.ID == *excluding })
	}
	return domain.Availability(coverage, divisions), nil
}

// UpdateZonalZones replaces a zonal warehouse's zone set. The change is
// refused when a division would be left claiming uncovered pincodes.
func (s *HierarchyService) UpdateZonalZones(ctx context.Context, id int64, zoneIDs []int64) (*domain.Warehouse, error) {
	w, err := s.warehouses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !w.IsZonal() {
		return nil, apperrors.InvalidInput("warehouse " + idString(id) + " is not a zonal warehouse")
	}
	if err := s.checkZones(ctx, zoneIDs); err != nil {
		return nil, err
	}

	err = s.withParentLock(ctx, id, func() error {
		coverage, err := s.geo.CoverageOf(ctx, zoneIDs)
		if err != nil {
			return err
		}
		divisions, err := s.warehouses.ListDivisions(ctx, id)
		if err != nil {
			return fmt.Errorf("list divisions of %d: %w", id, err)
		}
		for _, d := range divisions {
			for _, code := range d.Pincodes {
				if _, ok := coverage[code]; !ok {
					return apperrors.Conflict(fmt.Sprintf("division warehouse %d still serves pincode %s", d.ID, code)).
						WithDetail("warehouse_id", idString(d.ID)).
						WithDetail("pincode", code)
				}
			}
		}
		return s.warehouses.ReplaceZones(ctx, id, zoneIDs)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "zonal warehouse zones replaced",
		slog.Int64("warehouse_id", id),
		slog.Any("zone_ids", zoneIDs),
	)
	return s.warehouses.GetByID(ctx, id)
}

// UpdateDivisionPincodes replaces a division's claimed pincodes under the
// same rules as creation.
func (s *HierarchyService) UpdateDivisionPincodes(ctx context.Context, id int64, pincodes []string) (*domain.Warehouse, error) {
	w, err := s.warehouses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !w.IsDivision() {
		return nil, apperrors.InvalidInput("warehouse " + idString(id) + " is not a division warehouse")
	}
	parent, err := s.parentOf(ctx, *w.ParentWarehouseID)
	if err != nil {
		return nil, err
	}

	err = s.withParentLock(ctx, parent.ID, func() error {
		if err := s.checkClaim(ctx, parent, id, pincodes); err != nil {
			return err
		}
		return s.warehouses.ReplacePincodes(ctx, id, pincodes)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "division pincodes replaced",
		slog.Int64("warehouse_id", id),
		slog.Int("pincodes", len(pincodes)),
	)
	return s.warehouses.GetByID(ctx, id)
}

// SetActive enables or disables a warehouse. Inactive warehouses keep their
// stock and claims but are skipped by the resolver.
func (s *HierarchyService) SetActive(ctx context.Context, id int64, active bool) (*domain.Warehouse, error) {
	if err := s.warehouses.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "warehouse active flag changed",
		slog.Int64("warehouse_id", id),
		slog.Bool("is_active", active),
	)
	return s.warehouses.GetByID(ctx, id)
}

// Delete removes a warehouse together with its stock and claims. A zonal
// warehouse that still has divisions cannot be deleted.
func (s *HierarchyService) Delete(ctx context.Context, id int64) error {
	w, err := s.warehouses.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.warehouses.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "warehouse deleted",
		slog.Int64("warehouse_id", id),
		slog.String("type", string(w.Type)),
	)
	if err := s.events.PublishWarehouseDeleted(ctx, w); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish warehouse.deleted event",
			slog.Int64("warehouse_id", id),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (s *HierarchyService) publishCreated(ctx context.Context, w *domain.Warehouse) {
	if err := s.events.PublishWarehouseCreated(ctx, w); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish warehouse.created event",
			slog.Int64("warehouse_id", w.ID),
			slog.String("error", err.Error()),
		)
	}
}
