package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	"github.com/bigandbest/admin-deployed-sub000/internal/repository"
	apperrors "github.com/bigandbest/admin-deployed-sub000/pkg/errors"
)

// LedgerService owns the declared stock of every warehouse.
type LedgerService struct {
	stock      repository.StockRepository
	warehouses repository.WarehouseRepository
	events     EventPublisher
	logger     *slog.Logger
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(store Store, events EventPublisher, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		stock:      store.Stock(),
		warehouses: store.Warehouses(),
		events:     events,
		logger:     logger,
	}
}

func checkRow(row domain.StockAssignment) error {
	if row.ProductID <= 0 {
		return apperrors.InvalidInput("product_id is required")
	}
	if row.VariantID != nil && *row.VariantID <= 0 {
		return apperrors.InvalidInput("variant_id must be positive")
	}
	if row.MinimumThreshold < 0 {
		return apperrors.InvalidInput("minimum_threshold must be non-negative")
	}
	if row.CostPerUnit.IsNegative() {
		return apperrors.InvalidInput("cost_per_unit must be non-negative")
	}
	if !row.CostPerUnit.Equal(row.CostPerUnit.Truncate(2)) {
		return apperrors.InvalidInput("cost_per_unit must have at most 2 decimal places").
			WithDetail("cost_per_unit", row.CostPerUnit.String())
	}
	return nil
}

// SetStock writes one ledger row. A quantity at or below zero removes the
// row and the returned assignment is nil.
func (s *LedgerService) SetStock(ctx context.Context, row domain.StockAssignment) (*domain.StockAssignment, error) {
	if err := checkRow(row); err != nil {
		return nil, err
	}
	if _, err := s.warehouses.GetByID(ctx, row.WarehouseID); err != nil {
		return nil, err
	}
	if err := s.stock.Apply(ctx, []domain.StockAssignment{row}, domain.MovementAdjustment); err != nil {
		return nil, fmt.Errorf("set stock: %w", err)
	}

	stored, err := s.reload(ctx, row.StockKey)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, row.StockKey, stored)
	return stored, nil
}

// SetMany writes several rows atomically, as submitted by the assignment
// workflow. Rows with a quantity at or below zero are removed.
func (s *LedgerService) SetMany(ctx context.Context, rows []domain.StockAssignment) ([]*domain.StockAssignment, error) {
	for _, row := range rows {
		if err := checkRow(row); err != nil {
			return nil, err
		}
	}
	if err := s.stock.Apply(ctx, rows, domain.MovementAssignment); err != nil {
		return nil, fmt.Errorf("set stock rows: %w", err)
	}

	out := make([]*domain.StockAssignment, 0, len(rows))
	for _, row := range rows {
		stored, err := s.reload(ctx, row.StockKey)
		if err != nil {
			return nil, err
		}
		s.announce(ctx, row.StockKey, stored)
		out = append(out, stored)
	}
	return out, nil
}

// reload returns the stored row or nil when there is none.
func (s *LedgerService) reload(ctx context.Context, key domain.StockKey) (*domain.StockAssignment, error) {
	stored, err := s.stock.Get(ctx, key)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reload stock: %w", err)
	}
	return stored, nil
}

func (s *LedgerService) announce(ctx context.Context, key domain.StockKey, stored *domain.StockAssignment) {
	if err := s.events.PublishStockUpdated(ctx, key, stored); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish stock.updated event",
			slog.Int64("warehouse_id", key.WarehouseID),
			slog.Int64("product_id", key.ProductID),
			slog.String("error", err.Error()),
		)
	}
	if stored == nil || !stored.IsLowStock() {
		return
	}
	s.logger.WarnContext(ctx, "stock at or below threshold",
		slog.Int64("warehouse_id", key.WarehouseID),
		slog.Int64("product_id", key.ProductID),
		slog.Int("quantity", stored.Quantity),
		slog.Int("minimum_threshold", stored.MinimumThreshold),
	)
	if err := s.events.PublishStockLow(ctx, stored); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish stock.low event",
			slog.Int64("warehouse_id", key.WarehouseID),
			slog.Int64("product_id", key.ProductID),
			slog.String("error", err.Error()),
		)
	}
}

// GetStock returns the declared quantity, 0 when no row exists.
func (s *LedgerService) GetStock(ctx context.Context, key domain.StockKey) (int, error) {
	if _, err := s.warehouses.GetByID(ctx, key.WarehouseID); err != nil {
		return 0, err
	}
	row, err := s.stock.Get(ctx, key)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get stock: %w", err)
	}
	return row.Quantity, nil
}

// AggregateStock returns the quantity of one product variant in each of
// warehouseIDs. Every requested warehouse is present, with 0 for no row.
func (s *LedgerService) AggregateStock(ctx context.Context, warehouseIDs []int64, productID int64, variantID *int64) (map[int64]int, error) {
	found, err := s.stock.Aggregate(ctx, warehouseIDs, productID, variantID)
	if err != nil {
		return nil, fmt.Errorf("aggregate stock: %w", err)
	}
	out := make(map[int64]int, len(warehouseIDs))
	for _, id := range warehouseIDs {
		out[id] = found[id]
	}
	return out, nil
}

func (s *LedgerService) ListWarehouseStock(ctx context.Context, warehouseID int64, page, perPage int) ([]domain.StockAssignment, int, error) {
	if _, err := s.warehouses.GetByID(ctx, warehouseID); err != nil {
		return nil, 0, err
	}
	rows, total, err := s.stock.ListByWarehouse(ctx, warehouseID, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list warehouse stock: %w", err)
	}
	return rows, total, nil
}

func (s *LedgerService) ListLowStock(ctx context.Context, page, perPage int) ([]domain.StockAssignment, int, error) {
	rows, total, err := s.stock.ListLowStock(ctx, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list low stock: %w", err)
	}
	return rows, total, nil
}

// ListMovements returns the audit trail of a warehouse's ledger rows, most
// recent first.
func (s *LedgerService) ListMovements(ctx context.Context, warehouseID int64, page, perPage int) ([]domain.StockMovement, int, error) {
	if _, err := s.warehouses.GetByID(ctx, warehouseID); err != nil {
		return nil, 0, err
	}
	moves, total, err := s.stock.ListMovements(ctx, warehouseID, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list stock movements: %w", err)
	}
	return moves, total, nil
}

// PurgeProduct removes every ledger row of a product deleted from the
// catalog.
func (s *LedgerService) PurgeProduct(ctx context.Context, productID int64) (int64, error) {
	n, err := s.stock.DeleteByProduct(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("purge product %d: %w", productID, err)
	}
	s.logger.InfoContext(ctx, "product stock purged",
		slog.Int64("product_id", productID),
		slog.Int64("rows", n),
	)
	return n, nil
}
