package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

// MemoryRepository хранит лекарства в памяти; мутекс сериализует проверку
// и запись остатка, как условный UPDATE в Postgres.
type MemoryRepository struct {
	mu        sync.Mutex
	medicines map[uuid.UUID]Medicine
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{medicines: make(map[uuid.UUID]Medicine)}
}

// Put inserts or replaces a medicine record.
func (r *MemoryRepository) Put(m Medicine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
		m.UpdatedAt = m.CreatedAt
	}
	r.medicines[m.ID] = m
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.medicines[id]
	if !ok {
		return nil, ErrMedicineNotFound
	}
	cp := m
	return &cp, nil
}

func (r *MemoryRepository) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Medicine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.medicines[id]
	if !ok || !m.Active {
		return nil, ErrMedicineNotFound
	}
	if m.Stock.CurrentQuantity+delta < 0 {
		return nil, ErrInsufficientStock
	}

	m.Stock.CurrentQuantity += delta
	m.UpdatedAt = time.Now().UTC()
	r.medicines[id] = m

	cp := m
	return &cp, nil
}
