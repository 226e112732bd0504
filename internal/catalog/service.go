package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/UsmanShaikh24/pharmalink/internal/auth"
)

type Operation string

const (
	OperationAdd      Operation = "add"
	OperationSubtract Operation = "subtract"
)

// ErrInvalidAdjustment means the adjustment request itself is malformed:
// a non-positive quantity or an unknown operation.
var ErrInvalidAdjustment = errors.New("invalid stock adjustment")

// StockAdjustment is the result of an administrative stock correction.
type StockAdjustment struct {
	MedicineID  uuid.UUID `json:"medicine_id"`
	NewQuantity int       `json:"new_quantity"`
	IsLowStock  bool      `json:"is_low_stock"`
}

type Service interface {
	GetMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error)
	AdjustStock(ctx context.Context, id uuid.UUID, quantity int, op Operation, principal auth.Principal) (*StockAdjustment, error)
}

type service struct {
	medicines Repository
}

func NewService(medicines Repository) Service {
	return &service{medicines: medicines}
}

// GetMedicine returns an active medicine. Inactive medicines are reported as
// not found: they must not be orderable.
func (s *service) GetMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	m, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrMedicineNotFound) {
			return nil, ErrMedicineNotFound
		}
		log.Error().Err(err).Stringer("medicine_id", id).Msg("service: failed to fetch medicine in repository")
		return nil, fmt.Errorf("service: failed to fetch medicine: %w", err)
	}
	if !m.Active {
		return nil, ErrMedicineNotFound
	}
	return m, nil
}

func (s *service) AdjustStock(ctx context.Context, id uuid.UUID, quantity int, op Operation, principal auth.Principal) (*StockAdjustment, error) {
	if !principal.IsAdmin() {
		log.Warn().Stringer("principal_id", principal.ID).Str("role", string(principal.Role)).Msg("service: non-admin attempted stock adjustment")
		return nil, auth.ErrNotAuthorized
	}

	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be greater than zero, got %d: %w", quantity, ErrInvalidAdjustment)
	}

	var delta int
	switch op {
	case OperationAdd:
		delta = quantity
	case OperationSubtract:
		delta = -quantity
	default:
		return nil, fmt.Errorf("unknown stock operation %q: %w", op, ErrInvalidAdjustment)
	}

	m, err := s.medicines.AdjustStock(ctx, id, delta)
	if err != nil {
		if errors.Is(err, ErrMedicineNotFound) || errors.Is(err, ErrInsufficientStock) {
			return nil, err
		}
		log.Error().Err(err).Stringer("medicine_id", id).Int("delta", delta).Msg("service: failed to adjust stock in repository")
		return nil, fmt.Errorf("service: failed to adjust stock: %w", err)
	}

	log.Info().
		Stringer("medicine_id", id).
		Int("delta", delta).
		Int("new_quantity", m.Stock.CurrentQuantity).
		Bool("is_low_stock", m.IsLowStock()).
		Msg("service: stock adjusted")

	return &StockAdjustment{
		MedicineID:  m.ID,
		NewQuantity: m.Stock.CurrentQuantity,
		IsLowStock:  m.IsLowStock(),
	}, nil
}
