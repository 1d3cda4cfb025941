// Package service implements the fulfillment engine on top of the
// repository interfaces.
package service

import (
	"context"
	"strconv"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	"github.com/bigandbest/admin-deployed-sub000/internal/repository"
)

// Store groups the repositories. Both the postgres and the in-memory stores
// satisfy it.
type Store interface {
	Zones() repository.ZoneRepository
	Pincodes() repository.PincodeRepository
	Warehouses() repository.WarehouseRepository
	Stock() repository.StockRepository
}

// EventPublisher announces hierarchy and ledger changes.
// *event.Producer satisfies it.
type EventPublisher interface {
	PublishStockUpdated(ctx context.Context, key domain.StockKey, row *domain.StockAssignment) error
	PublishStockLow(ctx context.Context, row *domain.StockAssignment) error
	PublishWarehouseCreated(ctx context.Context, w *domain.Warehouse) error
	PublishWarehouseDeleted(ctx context.Context, w *domain.Warehouse) error
}

func idString(id int64) string { return strconv.FormatInt(id, 10) }
