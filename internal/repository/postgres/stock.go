package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	"github.com/bigandbest/admin-deployed-sub000/pkg/database"
	apperrors "github.com/bigandbest/admin-deployed-sub000/pkg/errors"
)

// cost_per_unit travels as text so decimal precision survives the driver.
const stockColumns = `warehouse_id, product_id, variant_id, quantity, minimum_threshold, cost_per_unit::text, updated_at`

const stockOrder = ` ORDER BY warehouse_id, product_id, COALESCE(variant_id, 0)`

// StockRepository implements repository.StockRepository.
type StockRepository struct {
	pool database.DBTX
}

// NewStockRepository creates a PostgreSQL-backed stock ledger.
func NewStockRepository(pool database.DBTX) *StockRepository {
	return &StockRepository{pool: pool}
}

func scanStock(row pgx.Row) (*domain.StockAssignment, error) {
	var (
		s    domain.StockAssignment
		cost string
	)
	err := row.Scan(
		&s.WarehouseID,
		&s.ProductID,
		&s.VariantID,
		&s.Quantity,
		&s.MinimumThreshold,
		&cost,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if s.CostPerUnit, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("parse cost_per_unit %q: %w", cost, err)
	}
	return &s, nil
}

func (r *StockRepository) Get(ctx context.Context, key domain.StockKey) (*domain.StockAssignment, error) {
	query := `SELECT ` + stockColumns + ` FROM stock_assignments
		WHERE warehouse_id = $1 AND product_id = $2 AND COALESCE(variant_id, 0) = $3`

	s, err := scanStock(r.pool.QueryRow(ctx, query, key.WarehouseID, key.ProductID, key.VariantOrZero()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("stock assignment", idString(key.WarehouseID)+"/"+idString(key.ProductID))
		}
		return nil, fmt.Errorf("get stock assignment: %w", err)
	}
	return s, nil
}

// Apply writes rows and their movements in one transaction. Every referenced
// warehouse must exist, including those of rows being removed.
func (r *StockRepository) Apply(ctx context.Context, rows []domain.StockAssignment, reason domain.MovementReason) (err error) {
	ctx, end := database.TraceQuery(ctx, "ApplyStock", "stock_assignments")
	defer func() { end(err) }()

	if len(rows) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err = requireWarehouses(ctx, tx, rows); err != nil {
		return err
	}

	upsert := `
		INSERT INTO stock_assignments (warehouse_id, product_id, variant_id, quantity, minimum_threshold, cost_per_unit, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, NOW())
		ON CONFLICT (warehouse_id, product_id, (COALESCE(variant_id, 0))) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			minimum_threshold = EXCLUDED.minimum_threshold,
			cost_per_unit = EXCLUDED.cost_per_unit,
			updated_at = EXCLUDED.updated_at`
	remove := `
		DELETE FROM stock_assignments
		WHERE warehouse_id = $1 AND product_id = $2 AND COALESCE(variant_id, 0) = $3`

	for _, row := range rows {
		var before int
		if before, err = lockedQuantity(ctx, tx, row.StockKey); err != nil {
			return err
		}

		if row.Removes() {
			_, err = tx.Exec(ctx, remove, row.WarehouseID, row.ProductID, row.VariantOrZero())
		} else {
			_, err = tx.Exec(ctx, upsert,
				row.WarehouseID,
				row.ProductID,
				row.VariantID,
				row.Quantity,
				row.MinimumThreshold,
				row.CostPerUnit.StringFixed(2),
			)
		}
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return apperrors.NotFound("warehouse", idString(row.WarehouseID))
			}
			return fmt.Errorf("apply stock assignment: %w", err)
		}

		if err = insertMovement(ctx, tx, domain.NewStockMovement(row.StockKey, before, row.StoredQuantity(), reason)); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// lockedQuantity returns the stored quantity of key, 0 when there is no row,
// and locks the row until the transaction ends.
func lockedQuantity(ctx context.Context, tx pgx.Tx, key domain.StockKey) (int, error) {
	query := `SELECT quantity FROM stock_assignments
		WHERE warehouse_id = $1 AND product_id = $2 AND COALESCE(variant_id, 0) = $3
		FOR UPDATE`

	var qty int
	err := tx.QueryRow(ctx, query, key.WarehouseID, key.ProductID, key.VariantOrZero()).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read stock quantity: %w", err)
	}
	return qty, nil
}

// insertMovement records m unless the quantity did not change.
func insertMovement(ctx context.Context, tx pgx.Tx, m domain.StockMovement) error {
	if m.QuantityChange == 0 {
		return nil
	}
	query := `
		INSERT INTO stock_movements (warehouse_id, product_id, variant_id, quantity_before, quantity_after, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query,
		m.WarehouseID,
		m.ProductID,
		m.VariantID,
		m.QuantityBefore,
		m.QuantityAfter,
		string(m.Reason),
	)
	if err != nil {
		return fmt.Errorf("insert stock movement: %w", err)
	}
	return nil
}

func requireWarehouses(ctx context.Context, tx pgx.Tx, rows []domain.StockAssignment) error {
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.WarehouseID)
	}

	found, err := tx.Query(ctx, `SELECT id FROM warehouses WHERE id = ANY($1) FOR SHARE`, ids)
	if err != nil {
		return fmt.Errorf("check warehouses: %w", err)
	}
	existing := make(map[int64]struct{}, len(ids))
	for found.Next() {
		var id int64
		if err := found.Scan(&id); err != nil {
			found.Close()
			return fmt.Errorf("scan warehouse id: %w", err)
		}
		existing[id] = struct{}{}
	}
	found.Close()
	if err := found.Err(); err != nil {
		return fmt.Errorf("check warehouses: %w", err)
	}

	for _, id := range ids {
		if _, ok := existing[id]; !ok {
			return apperrors.NotFound("warehouse", idString(id))
		}
	}
	return nil
}

func (r *StockRepository) Aggregate(ctx context.Context, warehouseIDs []int64, productID int64, variantID *int64) (_ map[int64]int, err error) {
	ctx, end := database.TraceQuery(ctx, "AggregateStock", "stock_assignments")
	defer func() { end(err) }()

	out := make(map[int64]int, len(warehouseIDs))
	if len(warehouseIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT warehouse_id, quantity FROM stock_assignments
		WHERE warehouse_id = ANY($1) AND product_id = $2 AND COALESCE(variant_id, 0) = $3`

	variant := domain.StockKey{VariantID: variantID}.VariantOrZero()
	rows, err := r.pool.Query(ctx, query, warehouseIDs, productID, variant)
	if err != nil {
		return nil, fmt.Errorf("aggregate stock: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  int64
			qty int
		)
		if err = rows.Scan(&id, &qty); err != nil {
			return nil, fmt.Errorf("scan stock quantity: %w", err)
		}
		out[id] = qty
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock quantities: %w", err)
	}
	return out, nil
}

func (r *StockRepository) ListByWarehouse(ctx context.Context, warehouseID int64, page, perPage int) ([]domain.StockAssignment, int, error) {
	return r.page(ctx, `warehouse_id = $1`, []any{warehouseID}, page, perPage)
}

func (r *StockRepository) ListLowStock(ctx context.Context, page, perPage int) ([]domain.StockAssignment, int, error) {
	return r.page(ctx, `quantity <= minimum_threshold`, nil, page, perPage)
}

func (r *StockRepository) page(ctx context.Context, where string, args []any, page, perPage int) ([]domain.StockAssignment, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_assignments WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count stock assignments: %w", err)
	}

	p := window(page, perPage)
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM stock_assignments WHERE %s%s LIMIT $%d OFFSET $%d`,
		stockColumns, where, stockOrder, n+1, n+2)

	rows, err := r.pool.Query(ctx, query, append(args, p.PerPage, p.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list stock assignments: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StockAssignment, 0)
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan stock assignment: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate stock assignments: %w", err)
	}
	return out, total, nil
}

// DeleteByProduct removes the rows and records their purge movements in one
// statement.
func (r *StockRepository) DeleteByProduct(ctx context.Context, productID int64) (_ int64, err error) {
	ctx, end := database.TraceQuery(ctx, "PurgeStock", "stock_assignments")
	defer func() { end(err) }()

	query := `
		WITH gone AS (
			DELETE FROM stock_assignments WHERE product_id = $1
			RETURNING warehouse_id, product_id, variant_id, quantity
		)
		INSERT INTO stock_movements (warehouse_id, product_id, variant_id, quantity_before, quantity_after, reason)
		SELECT warehouse_id, product_id, variant_id, quantity, 0, $2 FROM gone
		ORDER BY warehouse_id, COALESCE(variant_id, 0)`

	tag, err := r.pool.Exec(ctx, query, productID, string(domain.MovementPurge))
	if err != nil {
		return 0, fmt.Errorf("delete product stock: %w", err)
	}
	return tag.RowsAffected(), nil
}

const movementColumns = `id, warehouse_id, product_id, variant_id, quantity_before, quantity_after, reason, created_at`

func (r *StockRepository) ListMovements(ctx context.Context, warehouseID int64, page, perPage int) ([]domain.StockMovement, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE warehouse_id = $1`, warehouseID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count stock movements: %w", err)
	}

	p := window(page, perPage)
	query := `SELECT ` + movementColumns + ` FROM stock_movements
		WHERE warehouse_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, warehouseID, p.PerPage, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list stock movements: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StockMovement, 0)
	for rows.Next() {
		var (
			m      domain.StockMovement
			reason string
		)
		err := rows.Scan(
			&m.ID,
			&m.WarehouseID,
			&m.ProductID,
			&m.VariantID,
			&m.QuantityBefore,
			&m.QuantityAfter,
			&reason,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan stock movement: %w", err)
		}
		m.Reason = domain.MovementReason(reason)
		m.QuantityChange = m.QuantityAfter - m.QuantityBefore
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate stock movements: %w", err)
	}
	return out, total, nil
}
