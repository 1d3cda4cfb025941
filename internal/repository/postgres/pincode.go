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

const pincodeColumns = `code, city, state, is_active, zone_id`

// PincodeRepository implements repository.PincodeRepository.
type PincodeRepository struct {
	pool database.DBTX
}

// NewPincodeRepository creates a PostgreSQL-backed pincode repository.
func NewPincodeRepository(pool database.DBTX) *PincodeRepository {
	return &PincodeRepository{pool: pool}
}

func (r *PincodeRepository) Get(ctx context.Context, code string) (_ *domain.Pincode, err error) {
	ctx, end := database.TraceQuery(ctx, "GetPincode", "pincodes")
	defer func() { end(err) }()

	var p domain.Pincode
	err = r.pool.QueryRow(ctx, `SELECT `+pincodeColumns+` FROM pincodes WHERE code = $1`, code).
		Scan(&p.Code, &p.City, &p.State, &p.IsActive, &p.ZoneID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.UnknownPincode(code)
		}
		return nil, fmt.Errorf("get pincode: %w", err)
	}
	return &p, nil
}

func (r *PincodeRepository) Upsert(ctx context.Context, pincode *domain.Pincode) error {
	query := `
		INSERT INTO pincodes (code, city, state, is_active, zone_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE SET
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			is_active = EXCLUDED.is_active
		RETURNING zone_id`

	err := r.pool.QueryRow(ctx, query, pincode.Code, pincode.City, pincode.State, pincode.IsActive, pincode.ZoneID).
		Scan(&pincode.ZoneID)
	if err != nil {
		if database.IsForeignKeyViolation(err) && pincode.ZoneID != nil {
			return apperrors.NotFound("zone", idString(*pincode.ZoneID))
		}
		return fmt.Errorf("upsert pincode: %w", err)
	}
	return nil
}

func (r *PincodeRepository) ListByZones(ctx context.Context, zoneIDs []int64, activeOnly bool) ([]domain.Pincode, error) {
	query := `SELECT ` + pincodeColumns + ` FROM pincodes
		WHERE zone_id = ANY($1) AND (NOT $2 OR is_active)
		ORDER BY code`
	return r.list(ctx, query, zoneIDs, activeOnly)
}

func (r *PincodeRepository) ListAll(ctx context.Context, activeOnly bool) ([]domain.Pincode, error) {
	return r.list(ctx, `SELECT `+pincodeColumns+` FROM pincodes WHERE NOT $1 OR is_active ORDER BY code`, activeOnly)
}

func (r *PincodeRepository) list(ctx context.Context, query string, args ...any) ([]domain.Pincode, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pincodes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Pincode, 0)
	for rows.Next() {
		var p domain.Pincode
		if err := rows.Scan(&p.Code, &p.City, &p.State, &p.IsActive, &p.ZoneID); err != nil {
			return nil, fmt.Errorf("scan pincode: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pincodes: %w", err)
	}
	return out, nil
}

// SetZone updates every code in one statement and fails with the first
// unknown code when any is missing.
func (r *PincodeRepository) SetZone(ctx context.Context, codes []string, zoneID *int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `UPDATE pincodes SET zone_id = $2 WHERE code = ANY($1) RETURNING code`, codes, zoneID)
	if err != nil {
		if database.IsForeignKeyViolation(err) && zoneID != nil {
			return apperrors.NotFound("zone", idString(*zoneID))
		}
		return fmt.Errorf("set pincode zone: %w", err)
	}
	updated := make(map[string]struct{}, len(codes))
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			rows.Close()
			return fmt.Errorf("scan pincode: %w", err)
		}
		updated[code] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		if database.IsForeignKeyViolation(err) && zoneID != nil {
			return apperrors.NotFound("zone", idString(*zoneID))
		}
		return fmt.Errorf("set pincode zone: %w", err)
	}

	for _, code := range codes {
		if _, ok := updated[code]; !ok {
			return apperrors.UnknownPincode(code)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
