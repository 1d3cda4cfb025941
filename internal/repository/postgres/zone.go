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

const zoneColumns = `id, name, display_name, description, is_nationwide, is_active, created_at, updated_at`

// ZoneRepository implements repository.ZoneRepository.
type ZoneRepository struct {
	pool database.DBTX
}

// NewZoneRepository creates a PostgreSQL-backed zone repository.
func NewZoneRepository(pool database.DBTX) *ZoneRepository {
	return &ZoneRepository{pool: pool}
}

func scanZone(row pgx.Row) (*domain.Zone, error) {
	var z domain.Zone
	err := row.Scan(
		&z.ID,
		&z.Name,
		&z.DisplayName,
		&z.Description,
		&z.IsNationwide,
		&z.IsActive,
		&z.CreatedAt,
		&z.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &z, nil
}

func (r *ZoneRepository) Create(ctx context.Context, zone *domain.Zone) error {
	query := `
		INSERT INTO zones (name, display_name, description, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_nationwide, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query, zone.Name, zone.DisplayName, zone.Description, zone.IsActive).
		Scan(&zone.ID, &zone.IsNationwide, &zone.CreatedAt, &zone.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "zones_name_key") {
			return apperrors.AlreadyExists("zone", "name", zone.Name)
		}
		return fmt.Errorf("create zone: %w", err)
	}
	return nil
}

func (r *ZoneRepository) GetByID(ctx context.Context, id int64) (*domain.Zone, error) {
	z, err := scanZone(r.pool.QueryRow(ctx, `SELECT `+zoneColumns+` FROM zones WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("zone", idString(id))
		}
		return nil, fmt.Errorf("get zone: %w", err)
	}
	return z, nil
}

func (r *ZoneRepository) GetNationwide(ctx context.Context) (*domain.Zone, error) {
	z, err := scanZone(r.pool.QueryRow(ctx, `SELECT `+zoneColumns+` FROM zones WHERE is_nationwide`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("zone", domain.NationwideZoneName)
		}
		return nil, fmt.Errorf("get nationwide zone: %w", err)
	}
	return z, nil
}

func (r *ZoneRepository) GetMany(ctx context.Context, ids []int64) ([]domain.Zone, error) {
	return r.list(ctx, `SELECT `+zoneColumns+` FROM zones WHERE id = ANY($1) ORDER BY id`, ids)
}

func (r *ZoneRepository) List(ctx context.Context, includeInactive bool) ([]domain.Zone, error) {
	return r.list(ctx, `SELECT `+zoneColumns+` FROM zones WHERE $1 OR is_active ORDER BY id`, includeInactive)
}

func (r *ZoneRepository) list(ctx context.Context, query string, args ...any) ([]domain.Zone, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	defer rows.Close()

	zones := make([]domain.Zone, 0)
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		zones = append(zones, *z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate zones: %w", err)
	}
	return zones, nil
}

func (r *ZoneRepository) Update(ctx context.Context, zone *domain.Zone) error {
	query := `
		UPDATE zones
		SET display_name = $2, description = $3, is_active = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + zoneColumns

	z, err := scanZone(r.pool.QueryRow(ctx, query, zone.ID, zone.DisplayName, zone.Description, zone.IsActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("zone", idString(zone.ID))
		}
		return fmt.Errorf("update zone: %w", err)
	}
	*zone = *z
	return nil
}
