package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrMedicineNotFound  = errors.New("medicine not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	// AdjustStock atomically applies current_quantity += delta, guarded by
	// current_quantity + delta >= 0, and returns the updated medicine.
	// Inactive medicines are treated as not found.
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Medicine, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	query := `
		SELECT id, pharmacy_id, name, price, current_quantity, min_threshold, unit, active, created_at, updated_at
		FROM pharmalink.medicines
		WHERE id = $1
	`

	var m Medicine
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.PharmacyID,
		&m.Name,
		&m.Price,
		&m.Stock.CurrentQuantity,
		&m.Stock.MinThreshold,
		&m.Stock.Unit,
		&m.Active,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMedicineNotFound
		}
		return nil, fmt.Errorf("repository: failed to select medicine by id %s: %w", id, err)
	}

	return &m, nil
}

func (r *postgresRepository) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Medicine, error) {
	// The guard and the write are a single conditional UPDATE, so two
	// concurrent decrements against the same medicine cannot both pass the
	// guard on a stale value.
	query := `
		UPDATE pharmalink.medicines
		SET current_quantity = current_quantity + $2, updated_at = $3
		WHERE id = $1 AND active AND current_quantity + $2 >= 0
		RETURNING id, pharmacy_id, name, price, current_quantity, min_threshold, unit, active, created_at, updated_at
	`

	var m Medicine
	err := r.db.QueryRow(ctx, query, id, delta, time.Now().UTC()).Scan(
		&m.ID,
		&m.PharmacyID,
		&m.Name,
		&m.Price,
		&m.Stock.CurrentQuantity,
		&m.Stock.MinThreshold,
		&m.Stock.Unit,
		&m.Active,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err == nil {
		return &m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("repository: failed to adjust stock for medicine %s: %w", id, err)
	}

	// Zero rows: either the medicine is missing/inactive or the guard failed.
	var active bool
	err = r.db.QueryRow(ctx, `SELECT active FROM pharmalink.medicines WHERE id = $1`, id).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMedicineNotFound
		}
		return nil, fmt.Errorf("repository: failed to check medicine %s after guard failure: %w", id, err)
	}
	if !active {
		return nil, ErrMedicineNotFound
	}

	log.Warn().Stringer("medicine_id", id).Int("delta", delta).Msg("repository: stock adjustment rejected by guard")
	return nil, ErrInsufficientStock
}
