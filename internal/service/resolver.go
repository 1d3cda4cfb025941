package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/bigandbest/admin-deployed-sub000/internal/catalog"
	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	"github.com/bigandbest/admin-deployed-sub000/internal/repository"
	apperrors "github.com/bigandbest/admin-deployed-sub000/pkg/errors"
	"github.com/bigandbest/admin-deployed-sub000/pkg/validator"
)

var resolutionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fulfillment_resolutions_total",
		Help: "Total number of availability resolutions by classification",
	},
	[]string{"classification"},
)

// Resolver answers whether a product can be delivered to a pincode and from
// which warehouses. It never writes.
type Resolver struct {
	warehouses     repository.WarehouseRepository
	stock          repository.StockRepository
	geo            *GeographyService
	catalog        catalog.Catalog
	maxConcurrency int
	logger         *slog.Logger
}

// NewResolver creates a resolver. maxConcurrency bounds the lookups a batch
// runs at once; values below 1 mean no bound.
func NewResolver(store Store, geo *GeographyService, cat catalog.Catalog, maxConcurrency int, logger *slog.Logger) *Resolver {
	if maxConcurrency < 1 {
		maxConcurrency = -1
	}
	return &Resolver{
		warehouses:     store.Warehouses(),
		stock:          store.Stock(),
		geo:            geo,
		catalog:        cat,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// Resolve classifies the availability of a product variant at pincode.
// Unknown or undeliverable inputs yield an unavailable resolution with a
// reason; only infrastructure failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, pincode string, productID int64, variantID *int64) (*domain.Resolution, error) {
	if !validator.IsPincode(pincode) {
		return nil, apperrors.InvalidInput("pincode must be six digits not starting with 0").WithDetail("pincode", pincode)
	}

	res, err := r.resolve(ctx, pincode, productID, variantID)
	if err != nil {
		return nil, err
	}
	resolutionsTotal.WithLabelValues(string(res.Classification)).Inc()
	r.logger.DebugContext(ctx, "availability resolved",
		slog.String("pincode", pincode),
		slog.Int64("product_id", productID),
		slog.String("classification", string(res.Classification)),
		slog.String("reason", res.Reason),
	)
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, pincode string, productID int64, variantID *int64) (*domain.Resolution, error) {
	res := &domain.Resolution{
		Pincode:        pincode,
		ProductID:      productID,
		VariantID:      variantID,
		Classification: domain.Unavailable,
		Pool:           []domain.PoolEntry{},
	}

	var (
		policy *domain.DeliveryPolicy
		zones  domain.ZoneSet
		pin    *domain.Pincode
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := r.catalog.Policy(gctx, productID)
		if err != nil && !apperrors.IsNotFound(err) {
			return fmt.Errorf("get delivery policy: %w", err)
		}
		policy = p
		return nil
	})
	g.Go(func() error {
		z, p, err := r.geo.ZoneSetFor(gctx, pincode)
		if err != nil && !apperrors.IsNotFound(err) {
			return fmt.Errorf("get zone set: %w", err)
		}
		zones, pin = z, p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	switch {
	case pin == nil:
		res.Reason = domain.ReasonUnknownPincode
		return res, nil
	case !pin.Deliverable():
		res.Reason = domain.ReasonInactivePincode
		return res, nil
	case policy == nil:
		res.Reason = domain.ReasonUnknownProduct
		return res, nil
	case !policy.HasVariant(variantID):
		res.Reason = domain.ReasonUnknownVariant
		return res, nil
	}
	res.ZoneIDs = zones
	if !policy.Admits(zones) {
		res.Reason = domain.ReasonPolicy
		return res, nil
	}

	zonals, err := r.warehouses.ListZonalServing(ctx, zones)
	if err != nil {
		return nil, fmt.Errorf("list zonal warehouses: %w", err)
	}
	if len(zonals) == 0 {
		res.Reason = domain.ReasonNoStock
		return res, nil
	}
	zonalIDs := warehouseIDs(zonals)

	var (
		zonalStock map[int64]int
		divisions  []domain.Warehouse
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		zonalStock, err = r.stock.Aggregate(gctx, zonalIDs, productID, variantID)
		if err != nil {
			return fmt.Errorf("aggregate zonal stock: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		covering, err := r.warehouses.ListDivisionsCovering(gctx, pincode, zonalIDs)
		if err != nil {
			return fmt.Errorf("list divisions covering %s: %w", pincode, err)
		}
		divisions = slices.DeleteFunc(covering, func(w domain.Warehouse) bool { return !w.IsActive })
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if pool := poolOf(zonals, zonalStock); len(pool) > 0 {
		res.Classification = domain.ZoneAvailable
		res.Pool = pool
		return res, nil
	}

	if len(divisions) > 0 {
		divisionStock, err := r.stock.Aggregate(ctx, warehouseIDs(divisions), productID, variantID)
		if err != nil {
			return nil, fmt.Errorf("aggregate division stock: %w", err)
		}
		if pool := poolOf(divisions, divisionStock); len(pool) > 0 {
			res.Classification = domain.DivisionOnly
			res.Pool = pool
			return res, nil
		}
	}

	res.Reason = domain.ReasonNoStock
	return res, nil
}

// ResolveBatch resolves several products for one destination. Results keep
// the order of items.
func (r *Resolver) ResolveBatch(ctx context.Context, pincode string, items []domain.ResolveItem) ([]*domain.Resolution, error) {
	if len(items) == 0 {
		return nil, apperrors.InvalidInput("at least one item is required")
	}
	if !validator.IsPincode(pincode) {
		return nil, apperrors.InvalidInput("pincode must be six digits not starting with 0").WithDetail("pincode", pincode)
	}

	out := make([]*domain.Resolution, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrency)
	for i, item := range items {
		g.Go(func() error {
			res, err := r.Resolve(gctx, pincode, item.ProductID, item.VariantID)
			if err != nil {
				return fmt.Errorf("resolve product %d: %w", item.ProductID, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func warehouseIDs(ws []domain.Warehouse) []int64 {
	ids := make([]int64, len(ws))
	for i, w := range ws {
		ids[i] = w.ID
	}
	return ids
}

// poolOf lists the warehouses with positive stock in id order.
func poolOf(ws []domain.Warehouse, stock map[int64]int) []domain.PoolEntry {
	var pool []domain.PoolEntry
	for _, w := range ws {
		if qty := stock[w.ID]; qty > 0 {
			pool = append(pool, domain.PoolEntry{
				WarehouseID:   w.ID,
				WarehouseName: w.Name,
				WarehouseType: w.Type,
				Quantity:      qty,
			})
		}
	}
	slices.SortFunc(pool, func(a, b domain.PoolEntry) int {
		return cmp.Compare(a.WarehouseID, b.WarehouseID)
	})
	return pool
}
