package catalog

import (
	"time"

	"github.com/gofrs/uuid"
)

// Stock is the per-medicine inventory counter. CurrentQuantity is never
// negative; it is mutated only through Repository.AdjustStock.
type Stock struct {
	CurrentQuantity int    `json:"current_quantity" db:"current_quantity"`
	MinThreshold    int    `json:"min_threshold" db:"min_threshold"`
	Unit            string `json:"unit" db:"unit"`
}

type Medicine struct {
	ID         uuid.UUID `json:"id" db:"id"`
	PharmacyID uuid.UUID `json:"pharmacy_id" db:"pharmacy_id"`
	Name       string    `json:"name" db:"name"`
	Price      float64   `json:"price" db:"price"` // Используем float64 для денег, или специальный тип decimal
	Stock      Stock     `json:"stock" db:"-"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// IsLowStock reports whether the quantity has dropped to the reorder threshold.
func (m *Medicine) IsLowStock() bool {
	return m.Stock.CurrentQuantity <= m.Stock.MinThreshold
}
