// Package postgres implements the repository interfaces on PostgreSQL via pgx.
package postgres

import (
	"strconv"

	"github.com/bigandbest/admin-deployed-sub000/internal/repository"
	"github.com/bigandbest/admin-deployed-sub000/pkg/database"
	"github.com/bigandbest/admin-deployed-sub000/pkg/pagination"
)

// Store bundles the four repositories over one connection pool.
type Store struct {
	zones      *ZoneRepository
	pincodes   *PincodeRepository
	warehouses *WarehouseRepository
	stock      *StockRepository
}

// NewStore creates every repository over db.
func NewStore(db database.DBTX) *Store {
	return &Store{
		zones:      NewZoneRepository(db),
		pincodes:   NewPincodeRepository(db),
		warehouses: NewWarehouseRepository(db),
		stock:      NewStockRepository(db),
	}
}

func (s *Store) Zones() repository.ZoneRepository           { return s.zones }
func (s *Store) Pincodes() repository.PincodeRepository     { return s.pincodes }
func (s *Store) Warehouses() repository.WarehouseRepository { return s.warehouses }
func (s *Store) Stock() repository.StockRepository          { return s.stock }

func idString(id int64) string { return strconv.FormatInt(id, 10) }

func window(page, perPage int) pagination.Params {
	return pagination.Params{Page: max(page, 1), PerPage: max(perPage, 1)}
}
