package reservation

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/UsmanShaikh24/pharmalink/internal/catalog"
)

// Line is one medicine/quantity pair of a reservation batch.
type Line struct {
	MedicineID uuid.UUID
	Quantity   int
}

// Coordinator applies a batch of per-medicine stock decrements as one logical
// unit. The catalog offers no multi-record transaction across medicines, so a
// failed batch is undone by compensating increments for the lines already
// applied.
type Coordinator struct {
	medicines catalog.Repository
}

func NewCoordinator(medicines catalog.Repository) *Coordinator {
	return &Coordinator{medicines: medicines}
}

// Reserve decrements stock line by line, in the order given. On the first
// failure every previously applied line is restored and the original error is
// returned, wrapped with the offending medicine id. Nothing partially
// reserved survives a failed batch.
func (c *Coordinator) Reserve(ctx context.Context, lines []Line) error {
	applied := make([]Line, 0, len(lines))

	for _, line := range lines {
		_, err := c.medicines.AdjustStock(ctx, line.MedicineID, -line.Quantity)
		if err != nil {
			c.compensate(ctx, applied)
			return fmt.Errorf("reserve medicine %s: %w", line.MedicineID, err)
		}
		applied = append(applied, line)
	}

	return nil
}

func (c *Coordinator) compensate(ctx context.Context, applied []Line) {
	for i := len(applied) - 1; i >= 0; i-- {
		line := applied[i]
		if _, err := c.medicines.AdjustStock(ctx, line.MedicineID, line.Quantity); err != nil {
			// Под-восстановленный остаток чинится вне этого пути; исходную
			// ошибку резервирования не маскируем.
			log.Error().Err(err).
				Stringer("medicine_id", line.MedicineID).
				Int("quantity", line.Quantity).
				Msg("reservation: failed to compensate applied line")
		}
	}
}

// Release restores stock for every line, best-effort: a line that can no
// longer be restored (medicine deleted since) is logged and skipped, the
// remaining lines are still released.
func (c *Coordinator) Release(ctx context.Context, lines []Line) {
	for _, line := range lines {
		if _, err := c.medicines.AdjustStock(ctx, line.MedicineID, line.Quantity); err != nil {
			log.Error().Err(err).
				Stringer("medicine_id", line.MedicineID).
				Int("quantity", line.Quantity).
				Msg("reservation: failed to release line, continuing")
		}
	}
}
