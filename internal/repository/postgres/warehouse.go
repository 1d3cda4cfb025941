package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	"github.com/bigandbest/admin-deployed-sub000/pkg/database"
	apperrors "github.com/bigandbest/admin-deployed-sub000/pkg/errors"
)

// claimConstraint keeps sibling divisions from sharing a pincode.
const claimConstraint = "division_pincodes_parent_pincode_key"

const warehouseSelect = `
	SELECT w.id, w.name, w.type, w.address, w.pincode, w.parent_warehouse_id,
		w.is_active, w.created_at, w.updated_at,
		COALESCE((SELECT array_agg(wz.zone_id ORDER BY wz.zone_id)
			FROM warehouse_zones wz WHERE wz.warehouse_id = w.id), '{}') AS zone_ids,
		COALESCE((SELECT array_agg(dp.pincode ORDER BY dp.pincode)
			FROM division_pincodes dp WHERE dp.warehouse_id = w.id), '{}') AS pincodes
	FROM warehouses w`

// WarehouseRepository implements repository.WarehouseRepository.
type WarehouseRepository struct {
	pool database.DBTX
}

// NewWarehouseRepository creates a PostgreSQL-backed warehouse repository.
func NewWarehouseRepository(pool database.DBTX) *WarehouseRepository {
	return &WarehouseRepository{pool: pool}
}

func scanWarehouse(row pgx.Row) (*domain.Warehouse, error) {
	var (
		w   domain.Warehouse
		typ string
	)
	err := row.Scan(
		&w.ID,
		&w.Name,
		&typ,
		&w.Address,
		&w.Pincode,
		&w.ParentWarehouseID,
		&w.IsActive,
		&w.CreatedAt,
		&w.UpdatedAt,
		&w.ZoneIDs,
		&w.Pincodes,
	)
	if err != nil {
		return nil, err
	}
	w.Type = domain.WarehouseType(typ)
	return &w, nil
}

func (r *WarehouseRepository) Create(ctx context.Context, w *domain.Warehouse) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateWarehouse", "warehouses")
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if w.IsDivision() {
		if w.ParentWarehouseID == nil {
			return apperrors.InvalidInput("division warehouse requires a parent")
		}
		// FOR SHARE blocks a concurrent delete of the parent.
		var parentType string
		err = tx.QueryRow(ctx, `SELECT type FROM warehouses WHERE id = $1 FOR SHARE`, *w.ParentWarehouseID).Scan(&parentType)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && parentType != string(domain.WarehouseTypeZonal)) {
			return apperrors.InvalidInput("parent warehouse " + idString(*w.ParentWarehouseID) + " is not a zonal warehouse")
		}
		if err != nil {
			return fmt.Errorf("lock parent warehouse: %w", err)
		}
	}

	query := `
		INSERT INTO warehouses (name, type, address, pincode, parent_warehouse_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRow(ctx, query, w.Name, string(w.Type), w.Address, w.Pincode, w.ParentWarehouseID, w.IsActive).
		Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert warehouse: %w", err)
	}

	if w.IsZonal() {
		err = insertZones(ctx, tx, w.ID, w.ZoneIDs)
	} else {
		err = insertPincodes(ctx, tx, w.ID, *w.ParentWarehouseID, w.Pincodes)
	}
	if err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertZones(ctx context.Context, tx pgx.Tx, id int64, zoneIDs []int64) error {
	if len(zoneIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO warehouse_zones (warehouse_id, zone_id) SELECT $1, unnest($2::bigint[])`,
		id, zoneIDs)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperrors.InvalidInput("warehouse references an unknown zone")
		}
		return fmt.Errorf("insert warehouse zones: %w", err)
	}
	return nil
}

func insertPincodes(ctx context.Context, tx pgx.Tx, id, parentID int64, pincodes []string) error {
	if len(pincodes) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO division_pincodes (warehouse_id, parent_warehouse_id, pincode) SELECT $1, $2, unnest($3::text[])`,
		id, parentID, pincodes)
	if err != nil {
		if database.IsUniqueViolation(err, claimConstraint) {
			return apperrors.Conflict("a requested pincode is already served by a sibling division warehouse").
				WithDetail("parent_warehouse_id", idString(parentID))
		}
		if database.IsForeignKeyViolation(err) {
			return apperrors.InvalidInput("division references an unknown pincode")
		}
		return fmt.Errorf("insert division pincodes: %w", err)
	}
	return nil
}

func (r *WarehouseRepository) GetByID(ctx context.Context, id int64) (*domain.Warehouse, error) {
	w, err := scanWarehouse(r.pool.QueryRow(ctx, warehouseSelect+` WHERE w.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("warehouse", idString(id))
		}
		return nil, fmt.Errorf("get warehouse: %w", err)
	}
	return w, nil
}

func (r *WarehouseRepository) List(ctx context.Context, f domain.WarehouseFilter) ([]domain.Warehouse, int, error) {
	where := ` WHERE ($1 = '' OR w.type = $1) AND ($2::bigint IS NULL OR w.parent_warehouse_id = $2)`

	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM warehouses w`+where, string(f.Type), f.ParentID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count warehouses: %w", err)
	}

	p := window(f.Page, f.PerPage)
	items, err := r.list(ctx, warehouseSelect+where+` ORDER BY w.id LIMIT $3 OFFSET $4`,
		string(f.Type), f.ParentID, p.PerPage, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *WarehouseRepository) ListDivisions(ctx context.Context, parentID int64) ([]domain.Warehouse, error) {
	return r.list(ctx, warehouseSelect+` WHERE w.parent_warehouse_id = $1 ORDER BY w.id`, parentID)
}

func (r *WarehouseRepository) ListZonalServing(ctx context.Context, zoneIDs []int64) (_ []domain.Warehouse, err error) {
	ctx, end := database.TraceQuery(ctx, "ListZonalServing", "warehouses")
	defer func() { end(err) }()

	query := warehouseSelect + `
		WHERE w.type = 'zonal' AND w.is_active
			AND EXISTS (SELECT 1 FROM warehouse_zones wz WHERE wz.warehouse_id = w.id AND wz.zone_id = ANY($1))
		ORDER BY w.id`
	return r.list(ctx, query, zoneIDs)
}

func (r *WarehouseRepository) ListDivisionsCovering(ctx context.Context, pincode string, parentIDs []int64) (_ []domain.Warehouse, err error) {
	ctx, end := database.TraceQuery(ctx, "ListDivisionsCovering", "warehouses")
	defer func() { end(err) }()

	query := warehouseSelect + `
		WHERE w.type = 'division'
			AND EXISTS (SELECT 1 FROM division_pincodes dp WHERE dp.warehouse_id = w.id AND dp.pincode = $1)
			AND (COALESCE(cardinality($2::bigint[]), 0) = 0 OR w.parent_warehouse_id = ANY($2))
		ORDER BY w.id`
	return r.list(ctx, query, pincode, parentIDs)
}

func (r *WarehouseRepository) list(ctx context.Context, query string, args ...any) ([]domain.Warehouse, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list warehouses: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Warehouse, 0)
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan warehouse: %w", err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate warehouses: %w", err)
	}
	return out, nil
}

// lockWarehouse takes a row lock on id and returns its parent.
func lockWarehouse(ctx context.Context, tx pgx.Tx, id int64) (*int64, error) {
	var parentID *int64
	err := tx.QueryRow(ctx, `SELECT parent_warehouse_id FROM warehouses WHERE id = $1 FOR UPDATE`, id).Scan(&parentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("warehouse", idString(id))
		}
		return nil, fmt.Errorf("lock warehouse: %w", err)
	}
	return parentID, nil
}

func touch(ctx context.Context, tx pgx.Tx, id int64) error {
	if _, err := tx.Exec(ctx, `UPDATE warehouses SET updated_at = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("touch warehouse: %w", err)
	}
	return nil
}

func (r *WarehouseRepository) ReplaceZones(ctx context.Context, id int64, zoneIDs []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockWarehouse(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM warehouse_zones WHERE warehouse_id = $1`, id); err != nil {
		return fmt.Errorf("clear warehouse zones: %w", err)
	}
	if err := insertZones(ctx, tx, id, zoneIDs); err != nil {
		return err
	}
	if err := touch(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *WarehouseRepository) ReplacePincodes(ctx context.Context, id int64, pincodes []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	parentID, err := lockWarehouse(ctx, tx, id)
	if err != nil {
		return err
	}
	if parentID == nil {
		return apperrors.InvalidInput("warehouse " + idString(id) + " is not a division warehouse")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM division_pincodes WHERE warehouse_id = $1`, id); err != nil {
		return fmt.Errorf("clear division pincodes: %w", err)
	}
	if err := insertPincodes(ctx, tx, id, *parentID, pincodes); err != nil {
		return err
	}
	if err := touch(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *WarehouseRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE warehouses SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set warehouse active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("warehouse", idString(id))
	}
	return nil
}

// Delete relies on ON DELETE CASCADE for zones, pincode claims, stock and
// its movements.
func (r *WarehouseRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var children int
	err = tx.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM warehouses c WHERE c.parent_warehouse_id = w.id)
		FROM warehouses w WHERE w.id = $1 FOR UPDATE`, id).Scan(&children)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("warehouse", idString(id))
		}
		return fmt.Errorf("count child warehouses: %w", err)
	}
	if children > 0 {
		return apperrors.HasDependents("warehouse", idString(id), children)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM warehouses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete warehouse: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
