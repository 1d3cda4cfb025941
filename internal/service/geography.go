package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	"github.com/bigandbest/admin-deployed-sub000/internal/repository"
	apperrors "github.com/bigandbest/admin-deployed-sub000/pkg/errors"
	"github.com/bigandbest/admin-deployed-sub000/pkg/validator"
)

// GeographyService owns zones and pincode membership.
type GeographyService struct {
	zones      repository.ZoneRepository
	pincodes   repository.PincodeRepository
	warehouses repository.WarehouseRepository
	logger     *slog.Logger
}

// NewGeographyService creates a new geography service.
func NewGeographyService(store Store, logger *slog.Logger) *GeographyService {
	return &GeographyService{
		zones:      store.Zones(),
		pincodes:   store.Pincodes(),
		warehouses: store.Warehouses(),
		logger:     logger,
	}
}

// CreateZoneInput holds the fields of a new zone.
type CreateZoneInput struct {
	Name        string
	DisplayName string
	Description string
}

// UpdateZoneInput holds optional zone edits. Nil fields are left unchanged.
type UpdateZoneInput struct {
	DisplayName *string
	Description *string
	IsActive    *bool
}

// NationwideZone returns the seeded zone that covers every pincode.
func (s *GeographyService) NationwideZone(ctx context.Context) (*domain.Zone, error) {
	z, err := s.zones.GetNationwide(ctx)
	if err != nil {
		return nil, fmt.Errorf("get nationwide zone: %w", err)
	}
	return z, nil
}

func (s *GeographyService) ListZones(ctx context.Context, includeInactive bool) ([]domain.Zone, error) {
	zones, err := s.zones.List(ctx, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	return zones, nil
}

func (s *GeographyService) GetZone(ctx context.Context, id int64) (*domain.Zone, error) {
	return s.zones.GetByID(ctx, id)
}

// CreateZone adds a zone. Names are stored lower-cased; reserved and taken
// names are a conflict.
func (s *GeographyService) CreateZone(ctx context.Context, in CreateZoneInput) (*domain.Zone, error) {
	name := domain.NormalizeZoneName(in.Name)
	if name == "" {
		return nil, apperrors.InvalidInput("zone name is required")
	}
	if domain.IsReservedZoneName(name) {
		return nil, apperrors.Conflict(fmt.Sprintf("zone name %q is reserved", name)).WithDetail("name", name)
	}

	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = name
	}
	zone := &domain.Zone{
		Name:        name,
		DisplayName: displayName,
		Description: strings.TrimSpace(in.Description),
		IsActive:    true,
	}
	if err := s.zones.Create(ctx, zone); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, apperrors.Conflict(fmt.Sprintf("zone name %q is already taken", name)).WithDetail("name", name)
		}
		return nil, fmt.Errorf("create zone: %w", err)
	}

	s.logger.InfoContext(ctx, "zone created",
		slog.Int64("zone_id", zone.ID),
		slog.String("name", zone.Name),
	)
	return zone, nil
}

// UpdateZone edits display fields and the active flag. The nationwide zone
// can never be deactivated.
func (s *GeographyService) UpdateZone(ctx context.Context, id int64, in UpdateZoneInput) (*domain.Zone, error) {
	zone, err := s.zones.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.IsActive != nil && !*in.IsActive && zone.IsNationwide {
		return nil, apperrors.Conflict("the nationwide zone cannot be deactivated").WithDetail("zone_id", idString(id))
	}
	if in.DisplayName != nil {
		dn := strings.TrimSpace(*in.DisplayName)
		if dn == "" {
			return nil, apperrors.InvalidInput("display_name cannot be empty")
		}
		zone.DisplayName = dn
	}
	if in.Description != nil {
		zone.Description = strings.TrimSpace(*in.Description)
	}
	if in.IsActive != nil {
		if zone.IsActive && !*in.IsActive {
			members, err := s.pincodes.ListByZones(ctx, []int64{id}, true)
			if err != nil {
				return nil, fmt.Errorf("list pincodes of zone %d: %w", id, err)
			}
			if err := s.guardClaims(ctx, pincodeCodes(members), true); err != nil {
				return nil, err
			}
		}
		zone.IsActive = *in.IsActive
	}

	if err := s.zones.Update(ctx, zone); err != nil {
		return nil, fmt.Errorf("update zone: %w", err)
	}
	s.logger.InfoContext(ctx, "zone updated",
		slog.Int64("zone_id", zone.ID),
		slog.Bool("is_active", zone.IsActive),
	)
	return zone, nil
}

// UpsertPincode creates or edits a pincode record. Zone membership is not
// touched. An active pincode claimed by a division cannot be deactivated.
func (s *GeographyService) UpsertPincode(ctx context.Context, p domain.Pincode) (*domain.Pincode, error) {
	if !validator.IsPincode(p.Code) {
		return nil, apperrors.InvalidInput("pincode must be six digits not starting with 0").WithDetail("pincode", p.Code)
	}
	p.City = strings.TrimSpace(p.City)
	p.State = strings.TrimSpace(p.State)
	p.ZoneID = nil

	if !p.IsActive {
		existing, err := s.pincodes.Get(ctx, p.Code)
		if err != nil && !apperrors.IsNotFound(err) {
			return nil, fmt.Errorf("get pincode %s: %w", p.Code, err)
		}
		if err == nil && existing.IsActive {
			if err := s.guardClaims(ctx, []string{p.Code}, false); err != nil {
				return nil, err
			}
		}
	}

	if err := s.pincodes.Upsert(ctx, &p); err != nil {
		return nil, fmt.Errorf("upsert pincode: %w", err)
	}
	return &p, nil
}

// ZoneOf returns the pincode's own zone when it is active, otherwise the
// nationwide zone.
func (s *GeographyService) ZoneOf(ctx context.Context, code string) (*domain.Zone, error) {
	p, err := s.pincodes.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if p.ZoneID != nil {
		zone, err := s.zones.GetByID(ctx, *p.ZoneID)
		if err != nil && !apperrors.IsNotFound(err) {
			return nil, fmt.Errorf("get zone of %s: %w", code, err)
		}
		if err == nil && zone.IsActive {
			return zone, nil
		}
	}
	return s.NationwideZone(ctx)
}

// ZoneSetFor returns the destination zone set of code, the nationwide zone
// first, together with the pincode record.
func (s *GeographyService) ZoneSetFor(ctx context.Context, code string) (domain.ZoneSet, *domain.Pincode, error) {
	p, err := s.pincodes.Get(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	nationwide, err := s.NationwideZone(ctx)
	if err != nil {
		return nil, nil, err
	}

	set := domain.ZoneSet{nationwide.ID}
	if p.ZoneID != nil && *p.ZoneID != nationwide.ID {
		zone, err := s.zones.GetByID(ctx, *p.ZoneID)
		if err != nil && !apperrors.IsNotFound(err) {
			return nil, nil, fmt.Errorf("get zone of %s: %w", code, err)
		}
		if err == nil && zone.IsActive {
			set = append(set, zone.ID)
		}
	}
	return set, p, nil
}

// PincodesOf lists the active pincodes of a zone. The nationwide zone holds
// every active pincode.
func (s *GeographyService) PincodesOf(ctx context.Context, zoneID int64) ([]domain.Pincode, error) {
	zone, err := s.zones.GetByID(ctx, zoneID)
	if err != nil {
		return nil, err
	}

	var pins []domain.Pincode
	if zone.IsNationwide {
		pins, err = s.pincodes.ListAll(ctx, true)
	} else {
		pins, err = s.pincodes.ListByZones(ctx, []int64{zoneID}, true)
	}
	if err != nil {
		return nil, fmt.Errorf("list pincodes of zone %d: %w", zoneID, err)
	}
	return pins, nil
}

// CoverageOf returns the active pincodes reachable through the active zones
// among zoneIDs.
func (s *GeographyService) CoverageOf(ctx context.Context, zoneIDs []int64) (map[string]struct{}, error) {
	zones, err := s.zones.GetMany(ctx, zoneIDs)
	if err != nil {
		return nil, fmt.Errorf("get zones: %w", err)
	}

	active := make([]int64, 0, len(zones))
	nationwide := false
	for _, z := range zones {
		if !z.IsActive {
			continue
		}
		if z.IsNationwide {
			nationwide = true
		}
		active = append(active, z.ID)
	}

	var pins []domain.Pincode
	switch {
	case nationwide:
		pins, err = s.pincodes.ListAll(ctx, true)
	case len(active) > 0:
		pins, err = s.pincodes.ListByZones(ctx, active, true)
	}
	if err != nil {
		return nil, fmt.Errorf("list coverage pincodes: %w", err)
	}

	coverage := make(map[string]struct{}, len(pins))
	for _, p := range pins {
		coverage[p.Code] = struct{}{}
	}
	return coverage, nil
}

// AssignPincodes moves unzoned pincodes into a zone. A pincode already in a
// different zone must be unassigned first.
func (s *GeographyService) AssignPincodes(ctx context.Context, zoneID int64, codes []string) error {
	if len(codes) == 0 {
		return apperrors.InvalidInput("at least one pincode is required")
	}
	if dup, ok := domain.FirstDuplicate(codes); ok {
		return apperrors.InvalidInput("pincode " + dup + " is listed twice").WithDetail("pincode", dup)
	}

	zone, err := s.zones.GetByID(ctx, zoneID)
	if err != nil {
		return err
	}
	if zone.IsNationwide {
		return apperrors.InvalidInput("the nationwide zone covers every pincode and takes no explicit members")
	}

	for _, code := range codes {
		p, err := s.pincodes.Get(ctx, code)
		if err != nil {
			return err
		}
		if p.ZoneID != nil && *p.ZoneID != zoneID {
			return apperrors.Conflict(fmt.Sprintf("pincode %s already belongs to zone %d", code, *p.ZoneID)).
				WithDetail("pincode", code).
				WithDetail("zone_id", idString(*p.ZoneID))
		}
	}

	if err := s.pincodes.SetZone(ctx, codes, &zoneID); err != nil {
		return fmt.Errorf("assign pincodes: %w", err)
	}
	s.logger.InfoContext(ctx, "pincodes assigned to zone",
		slog.Int64("zone_id", zoneID),
		slog.Int("count", len(codes)),
	)
	return nil
}

// UnassignPincode drops a pincode's zone membership. It is refused while a
// division claims the pincode through a parent that would lose coverage.
func (s *GeographyService) UnassignPincode(ctx context.Context, code string) error {
	p, err := s.pincodes.Get(ctx, code)
	if err != nil {
		return err
	}
	if p.ZoneID == nil {
		return nil
	}

	if err := s.guardClaims(ctx, []string{code}, true); err != nil {
		return err
	}

	if err := s.pincodes.SetZone(ctx, []string{code}, nil); err != nil {
		return fmt.Errorf("unassign pincode: %w", err)
	}
	s.logger.InfoContext(ctx, "pincode unassigned from zone",
		slog.String("pincode", code),
		slog.Int64("zone_id", *p.ZoneID),
	)
	return nil
}

// guardClaims refuses a change that takes codes out of their zone coverage
// while a division still claims one of them. When viaNationwide is set, a
// division whose parent serves the nationwide zone keeps the pincode.
func (s *GeographyService) guardClaims(ctx context.Context, codes []string, viaNationwide bool) error {
	var nationwideID int64
	for _, code := range codes {
		claimants, err := s.warehouses.ListDivisionsCovering(ctx, code, nil)
		if err != nil {
			return fmt.Errorf("list divisions covering %s: %w", code, err)
		}
		for _, d := range claimants {
			if viaNationwide {
				if nationwideID == 0 {
					nationwide, err := s.NationwideZone(ctx)
					if err != nil {
						return err
					}
					nationwideID = nationwide.ID
				}
				parent, err := s.warehouses.GetByID(ctx, *d.ParentWarehouseID)
				if err != nil {
					return fmt.Errorf("get parent of division %d: %w", d.ID, err)
				}
				if slices.Contains(parent.ZoneIDs, nationwideID) {
					continue
				}
			}
			return apperrors.Conflict(fmt.Sprintf("pincode %s is still served by division warehouse %d", code, d.ID)).
				WithDetail("pincode", code).
				WithDetail("warehouse_id", idString(d.ID))
		}
	}
	return nil
}

func pincodeCodes(pincodes []domain.Pincode) []string {
	codes := make([]string, 0, len(pincodes))
	for _, p := range pincodes {
		codes = append(codes, p.Code)
	}
	return codes
}

// sortedCodes returns the keys of a coverage set in order.
func sortedCodes(coverage map[string]struct{}) []string {
	codes := make([]string, 0, len(coverage))
	for code := range coverage {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
