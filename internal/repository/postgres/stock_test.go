package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	apperrors "github.com/bigandbest/admin-deployed-sub000/pkg/errors"
)

var stockCols = []string{
	"warehouse_id", "product_id", "variant_id", "quantity", "minimum_threshold", "cost_per_unit", "updated_at",
}

func TestStockRepository_Get(t *testing.T) {
	mock := newMock(t)
	repo := NewStockRepository(mock)

	mock.ExpectQuery(`SELECT .+ FROM stock_assignments`).
		WithArgs(int64(10), int64(500), int64(7)).
		WillReturnRows(pgxmock.NewRows(stockCols).AddRow(int64(10), int64(500), ptr(int64(7)), 40, 5, "12.50", testTime))

	s, err := repo.Get(context.Background(), domain.StockKey{WarehouseID: 10, ProductID: 500, VariantID: ptr(int64(7))})
	require.NoError(t, err)
	assert.Equal(t, 40, s.Quantity)
	assert.True(t, s.CostPerUnit.Equal(decimal.RequireFromString("12.5")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepository_Get_BaseProductNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewStockRepository(mock)

	mock.ExpectQuery(`SELECT .+ FROM stock_assignments`).
		WithArgs(int64(10), int64(500), int64(0)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), domain.StockKey{WarehouseID: 10, ProductID: 500})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStockRepository_Apply_UpsertsAndDeletes(t *testing.T) {
	mock := newMock(t)
	repo := NewStockRepository(mock)

	rows := []domain.StockAssignment{
		{StockKey: domain.StockKey{WarehouseID: 10, ProductID: 500}, Quantity: 40, MinimumThreshold: 5, CostPerUnit: decimal.NewFromFloat(12.5)},
		{StockKey: domain.StockKey{WarehouseID: 12, ProductID: 500}, Quantity: 0},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM warehouses WHERE id = ANY\(\$1\) FOR SHARE`).
		WithArgs([]int64{10, 12}).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(10)).AddRow(int64(12)))
	mock.ExpectQuery(`SELECT quantity FROM stock_assignments .+ FOR UPDATE`).
		WithArgs(int64(10), int64(500), int64(0)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO stock_assignments`).
		WithArgs(int64(10), int64(500), (*int64)(nil), 40, 5, "12.50").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO stock_movements`).
		WithArgs(int64(10), int64(500), (*int64)(nil), 0, 40, "assignment").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT quantity FROM stock_assignments .+ FOR UPDATE`).
		WithArgs(int64(12), int64(500), int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"quantity"}).AddRow(7))
	mock.ExpectExec(`DELETE FROM stock_assignments`).
		WithArgs(int64(12), int64(500), int64(0)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO stock_movements`).
		WithArgs(int64(12), int64(500), (*int64)(nil), 7, 0, "assignment").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Apply(context.Background(), rows, domain.MovementAssignment))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepository_Apply_UnchangedQuantityRecordsNoMovement(t *testing.T) {
	mock := newMock(t)
	repo := NewStockRepository(mock)

	rows := []domain.StockAssignment{
		{StockKey: domain.StockKey{WarehouseID: 10, ProductID: 500}, Quantity: 40, MinimumThreshold: 9},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM warehouses`).
		WithArgs([]int64{10}).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectQuery(`SELECT quantity FROM stock_assignments .+ FOR UPDATE`).
		WithArgs(int64(10), int64(500), int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"quantity"}).AddRow(40))
	mock.ExpectExec(`INSERT INTO stock_assignments`).
		WithArgs(int64(10), int64(500), (*int64)(nil), 40, 9, "0.00").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Apply(context.Background(), rows, domain.MovementAdjustment))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepository_Apply_MovementFailureRollsBack(t *testing.T) {
	mock := newMock(t)
	repo := NewStockRepository(mock)

	rows := []domain.StockAssignment{
		{StockKey: domain.StockKey{WarehouseID: 10, ProductID: 500}, Quantity: -1},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM warehouses`).
		WithArgs([]int64{10}).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectQuery(`SELECT quantity FROM stock_assignments .+ FOR UPDATE`).
		WithArgs(int64(10), int64(500), int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"quantity"}).AddRow(8))
	mock.ExpectExec(`DELETE FROM stock_assignments`).
		WithArgs(int64(10), int64(500), int64(0)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO stock_movements`).
		WithArgs(int64(10), int64(500), (*int64)(nil), 8, 0, "adjustment").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Apply(context.Background(), rows, domain.MovementAdjustment)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert stock movement")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepository_Apply_UnknownWarehouseWritesNothing(t *testing.T) {
	mock := newMock(t)
	repo := NewStockRepository(mock)

	rows := []domain.StockAssignment{
		{StockKey: domain.StockKey{WarehouseID: 10, ProductID: 500}, Quantity: 4},
		{StockKey: domain.StockKey{WarehouseID: 77, ProductID: 500}, Quantity: 4},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM warehouses`).
		WithArgs([]int64{10, 77}).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectRollback()

	err := repo.Apply(context.Background(), rows, domain.MovementAdjustment)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "77")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepository_Apply_Empty(t *testing.T) {
	mock := newMock(t)
	require.NoError(t, NewStockRepository(mock).Apply(context.Background(), nil, domain.MovementAdjustment))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepository_Aggregate(t *testing.T) {
	mock := newMock(t)
	repo := NewStockRepository(mock)

	mock.ExpectQuery(`SELECT warehouse_id, quantity FROM stock_assignments`).
		WithArgs([]int64{10, 11}, int64(500), int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"warehouse_id", "quantity"}).AddRow(int64(11), 8))

	got, err := repo.Aggregate(context.Background(), []int64{10, 11}, 500, nil)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{11: 8}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepository_Aggregate_NoWarehousesSkipsQuery(t *testing.T) {
	mock := newMock(t)

	got, err := NewStockRepository(mock).Aggregate(context.Background(), nil, 500, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepository_ListLowStock(t *testing.T) {
	mock := newMock(t)
	repo := NewStockRepository(mock)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM stock_assignments WHERE quantity <= minimum_threshold`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`WHERE quantity <= minimum_threshold ORDER BY .+ LIMIT \$1 OFFSET \$2`).
		WithArgs(20, 0).
		WillReturnRows(pgxmock.NewRows(stockCols).AddRow(int64(10), int64(500), (*int64)(nil), 3, 5, "0.00", testTime))

	items, total, err := repo.ListLowStock(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.True(t, items[0].IsLowStock())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepository_DeleteByProduct(t *testing.T) {
	mock := newMock(t)
	repo := NewStockRepository(mock)

	mock.ExpectExec(`DELETE FROM stock_assignments WHERE product_id = \$1\s+RETURNING .+INSERT INTO stock_movements`).
		WithArgs(int64(500), "purge").
		WillReturnResult(pgxmock.NewResult("INSERT", 3))

	n, err := repo.DeleteByProduct(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var movementCols = []string{
	"id", "warehouse_id", "product_id", "variant_id", "quantity_before", "quantity_after", "reason", "created_at",
}

func TestStockRepository_ListMovements(t *testing.T) {
	mock := newMock(t)
	repo := NewStockRepository(mock)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM stock_movements WHERE warehouse_id = \$1`).
		WithArgs(int64(10)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`FROM stock_movements\s+WHERE warehouse_id = \$1 ORDER BY id DESC LIMIT \$2 OFFSET \$3`).
		WithArgs(int64(10), 20, 0).
		WillReturnRows(pgxmock.NewRows(movementCols).
			AddRow(int64(2), int64(10), int64(500), (*int64)(nil), 8, 0, "purge", testTime).
			AddRow(int64(1), int64(10), int64(500), (*int64)(nil), 0, 8, "adjustment", testTime))

	moves, total, err := repo.ListMovements(context.Background(), 10, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, moves, 2)
	assert.Equal(t, domain.MovementPurge, moves[0].Reason)
	assert.Equal(t, -8, moves[0].QuantityChange)
	assert.Equal(t, 8, moves[1].QuantityChange)
	assert.NoError(t, mock.ExpectationsWereMet())
}
