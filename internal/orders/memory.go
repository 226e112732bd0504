package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

// MemoryRepository keeps orders in process memory with the same observable
// semantics as the Postgres repository, including the version guard on Update.
type MemoryRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]Order
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[uuid.UUID]Order)}
}

func (r *MemoryRepository) Create(ctx context.Context, order *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	for i := range order.Lines {
		line := &order.Lines[i]
		lineID, err := uuid.NewV4()
		if err != nil {
			return err
		}
		line.ID = lineID
		line.OrderID = order.ID
		line.Position = i
		line.CreatedAt = now
	}

	r.orders[order.ID] = copyOrder(*order)
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := copyOrder(order)
	return &cp, nil
}

func (r *MemoryRepository) Update(ctx context.Context, order *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	if !ok {
		return ErrOrderNotFound
	}
	if stored.Version != order.Version {
		return ErrVersionConflict
	}

	stored.Status = order.Status
	stored.PaymentStatus = order.PaymentStatus
	stored.ActualDeliveryTime = order.ActualDeliveryTime
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	r.orders[order.ID] = stored

	order.Version = stored.Version
	order.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *MemoryRepository) AppendTracking(ctx context.Context, entry *TrackingEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[entry.OrderID]
	if !ok {
		return ErrOrderNotFound
	}
	order.Tracking = append(order.Tracking, *entry)
	r.orders[entry.OrderID] = order
	return nil
}

func (r *MemoryRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	return r.list(func(o Order) bool { return o.CustomerID == customerID }), nil
}

func (r *MemoryRepository) ListByPharmacy(ctx context.Context, pharmacyID uuid.UUID) ([]Order, error) {
	return r.list(func(o Order) bool { return o.PharmacyID == pharmacyID }), nil
}

func (r *MemoryRepository) list(match func(Order) bool) []Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Order, 0)
	for _, order := range r.orders {
		if match(order) {
			result = append(result, copyOrder(order))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func copyOrder(o Order) Order {
	cp := o
	cp.Lines = append([]OrderLine(nil), o.Lines...)
	// Reads materialize the same ordering the database would: lines come back
	// by stored position, not by whatever order the slice happens to hold.
	sort.Slice(cp.Lines, func(i, j int) bool {
		return cp.Lines[i].Position < cp.Lines[j].Position
	})
	cp.Tracking = append([]TrackingEntry(nil), o.Tracking...)
	return cp
}
