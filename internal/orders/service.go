package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/UsmanShaikh24/pharmalink/internal/auth"
	"github.com/UsmanShaikh24/pharmalink/internal/catalog"
	"github.com/UsmanShaikh24/pharmalink/internal/reservation"
)

var (
	ErrEmptyCart                = errors.New("order must contain at least one item")
	ErrCrossPharmacyMix         = errors.New("all order items must belong to a single pharmacy")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	ErrInvalidStateTransition   = errors.New("invalid order status transition")
)

// CartLine is one requested medicine/quantity pair of a checkout.
type CartLine struct {
	MedicineID uuid.UUID
	Quantity   int
}

type CreateOrderInput struct {
	CustomerID      uuid.UUID
	Lines           []CartLine
	DeliveryType    DeliveryType
	DeliveryAddress DeliveryAddress
	PaymentMethod   PaymentMethod
}

type TrackingInput struct {
	Status    string
	Latitude  *float64
	Longitude *float64
}

type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error)
	GetOrder(ctx context.Context, id uuid.UUID, principal auth.Principal) (*Order, error)
	ListOrders(ctx context.Context, principal auth.Principal) ([]Order, error)
	SetStatus(ctx context.Context, id uuid.UUID, newStatus OrderStatus, principal auth.Principal) (*Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID, principal auth.Principal) (*Order, error)
	AppendTracking(ctx context.Context, id uuid.UUID, input TrackingInput, principal auth.Principal) (*Order, error)
}

type service struct {
	orders       Repository
	medicines    catalog.Service
	reservations *reservation.Coordinator
}

func NewService(orders Repository, medicines catalog.Service, reservations *reservation.Coordinator) Service {
	return &service{
		orders:       orders,
		medicines:    medicines,
		reservations: reservations,
	}
}

// CreateOrder turns a cart into a persisted order. Stock is reserved as one
// compensated batch: no failure path leaves a partial reservation behind, and
// nothing is persisted unless every line was reserved.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if len(input.Lines) == 0 {
		log.Warn().Stringer("customer_id", input.CustomerID).Msg("service: attempt to create order with no items")
		return nil, ErrEmptyCart
	}

	switch input.DeliveryType {
	case DeliveryEmergency, DeliveryStandard:
	default:
		return nil, fmt.Errorf("service: unknown delivery type %q", input.DeliveryType)
	}

	// Resolve every line against the catalog. Prices come from the catalog
	// only; anything the client sent is ignored.
	var pharmacyID uuid.UUID
	lines := make([]OrderLine, 0, len(input.Lines))
	reserveLines := make([]reservation.Line, 0, len(input.Lines))
	subtotal := 0.0

	for _, cartLine := range input.Lines {
		if cartLine.Quantity <= 0 {
			return nil, fmt.Errorf("service: quantity for medicine %s must be greater than zero", cartLine.MedicineID)
		}

		// GetMedicine already reports inactive medicines as not found.
		medicine, err := s.medicines.GetMedicine(ctx, cartLine.MedicineID)
		if err != nil {
			if errors.Is(err, catalog.ErrMedicineNotFound) {
				return nil, fmt.Errorf("medicine %s: %w", cartLine.MedicineID, catalog.ErrMedicineNotFound)
			}
			log.Error().Err(err).Stringer("medicine_id", cartLine.MedicineID).Msg("service: failed to resolve cart line")
			return nil, fmt.Errorf("service: failed to resolve cart line: %w", err)
		}

		if pharmacyID == uuid.Nil {
			pharmacyID = medicine.PharmacyID
		} else if pharmacyID != medicine.PharmacyID {
			log.Warn().
				Stringer("customer_id", input.CustomerID).
				Stringer("pharmacy_id", pharmacyID).
				Stringer("other_pharmacy_id", medicine.PharmacyID).
				Msg("service: cart mixes medicines from different pharmacies")
			return nil, ErrCrossPharmacyMix
		}

		lines = append(lines, OrderLine{
			MedicineID: medicine.ID,
			Quantity:   cartLine.Quantity,
			UnitPrice:  medicine.Price,
		})
		reserveLines = append(reserveLines, reservation.Line{
			MedicineID: medicine.ID,
			Quantity:   cartLine.Quantity,
		})
		subtotal += float64(cartLine.Quantity) * medicine.Price
	}

	if input.PaymentMethod != PaymentMethodCOD {
		return nil, fmt.Errorf("payment method %q: %w", input.PaymentMethod, ErrUnsupportedPaymentMethod)
	}

	if err := s.reservations.Reserve(ctx, reserveLines); err != nil {
		return nil, err
	}

	orderID, err := uuid.NewV4()
	if err != nil {
		s.reservations.Release(ctx, reserveLines)
		return nil, fmt.Errorf("service: failed to generate order ID: %w", err)
	}

	now := time.Now().UTC()
	tax := subtotal * taxRate
	fee := deliveryFee(input.DeliveryType)

	order := &Order{
		ID:                    orderID,
		CustomerID:            input.CustomerID,
		PharmacyID:            pharmacyID,
		Lines:                 lines,
		Subtotal:              subtotal,
		Tax:                   tax,
		DeliveryFee:           fee,
		TotalAmount:           subtotal + tax + fee,
		DeliveryType:          input.DeliveryType,
		DeliveryAddress:       input.DeliveryAddress,
		Status:                StatusPending,
		PaymentMethod:         input.PaymentMethod,
		PaymentStatus:         PaymentPending,
		EstimatedDeliveryTime: EstimatedDelivery(input.DeliveryType, now),
		Tracking:              []TrackingEntry{},
	}

	if err := s.orders.Create(ctx, order); err != nil {
		// The reservation already went through; give the stock back before
		// surfacing the persistence failure.
		s.reservations.Release(ctx, reserveLines)
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to persist order, reservation released")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().
		Stringer("order_id", order.ID).
		Stringer("customer_id", order.CustomerID).
		Stringer("pharmacy_id", order.PharmacyID).
		Float64("total_amount", order.TotalAmount).
		Msg("service: order created")

	return order, nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID, principal auth.Principal) (*Order, error) {
	order, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if !canViewOrder(order, principal) {
		log.Warn().Stringer("order_id", id).Stringer("principal_id", principal.ID).Msg("service: principal may not view order")
		return nil, auth.ErrNotAuthorized
	}

	return order, nil
}

func (s *service) ListOrders(ctx context.Context, principal auth.Principal) ([]Order, error) {
	switch principal.Role {
	case auth.RoleCustomer:
		return s.orders.ListByCustomer(ctx, principal.ID)
	case auth.RolePharmacy:
		return s.orders.ListByPharmacy(ctx, principal.ID)
	default:
		return nil, auth.ErrNotAuthorized
	}
}

// SetStatus drives an order through its lifecycle. The repository's version
// guard serializes concurrent transitions for the same order; the loser of a
// race gets ErrVersionConflict and must re-read.
func (s *service) SetStatus(ctx context.Context, id uuid.UUID, newStatus OrderStatus, principal auth.Principal) (*Order, error) {
	order, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if newStatus == StatusCancelled {
		if !canCancelOrder(order, principal) {
			return nil, auth.ErrNotAuthorized
		}
	} else if !canManageOrder(order, principal) {
		return nil, auth.ErrNotAuthorized
	}

	if order.Status.Terminal() {
		return nil, fmt.Errorf("order %s is already %s: %w", id, order.Status, ErrInvalidStateTransition)
	}
	if !CanTransition(order.Status, newStatus) {
		log.Warn().
			Stringer("order_id", order.ID).
			Stringer("current_status", order.Status).
			Stringer("new_status", newStatus).
			Msg("service: invalid status transition attempt")
		return nil, fmt.Errorf("cannot transition from %s to %s: %w", order.Status, newStatus, ErrInvalidStateTransition)
	}

	oldStatus := order.Status
	order.Status = newStatus

	if newStatus == StatusDelivered {
		deliveredAt := time.Now().UTC()
		order.ActualDeliveryTime = &deliveredAt
		order.PaymentStatus = PaymentCompleted
	}

	if err := s.orders.Update(ctx, order); err != nil {
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		log.Error().Err(err).Stringer("order_id", id).Stringer("new_status", newStatus).Msg("service: failed to update order status in repository")
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}

	// Restock only after the transition is durable, so a lost race never
	// releases stock for an order that was not actually cancelled.
	if newStatus == StatusCancelled {
		s.reservations.Release(ctx, releaseLines(order))
	}

	log.Info().
		Stringer("order_id", order.ID).
		Stringer("old_status", oldStatus).
		Stringer("new_status", newStatus).
		Msg("service: order status updated")

	return order, nil
}

func (s *service) CancelOrder(ctx context.Context, id uuid.UUID, principal auth.Principal) (*Order, error) {
	return s.SetStatus(ctx, id, StatusCancelled, principal)
}

func (s *service) AppendTracking(ctx context.Context, id uuid.UUID, input TrackingInput, principal auth.Principal) (*Order, error) {
	order, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if principal.Role != auth.RolePharmacy || principal.ID != order.PharmacyID {
		log.Warn().Stringer("order_id", id).Stringer("principal_id", principal.ID).Msg("service: only the owning pharmacy may append tracking")
		return nil, auth.ErrNotAuthorized
	}

	entryID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate tracking entry ID: %w", err)
	}

	entry := TrackingEntry{
		ID:        entryID,
		OrderID:   order.ID,
		Status:    input.Status,
		Latitude:  input.Latitude,
		Longitude: input.Longitude,
		Timestamp: time.Now().UTC(),
	}

	if err := s.orders.AppendTracking(ctx, &entry); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to append tracking entry in repository")
		return nil, fmt.Errorf("service: failed to append tracking entry: %w", err)
	}

	order.Tracking = append(order.Tracking, entry)
	return order, nil
}

func (s *service) loadOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order in repository")
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}
	return order, nil
}

func canViewOrder(order *Order, p auth.Principal) bool {
	switch p.Role {
	case auth.RoleAdmin:
		return true
	case auth.RoleCustomer:
		return p.ID == order.CustomerID
	case auth.RolePharmacy:
		return p.ID == order.PharmacyID
	}
	return false
}

// Status changes are a fulfillment concern: owning pharmacy or administrator.
func canManageOrder(order *Order, p auth.Principal) bool {
	if p.Role == auth.RoleAdmin {
		return true
	}
	return p.Role == auth.RolePharmacy && p.ID == order.PharmacyID
}

// Cancellation belongs to the two parties of the order: the customer who
// placed it or the pharmacy that owns it.
func canCancelOrder(order *Order, p auth.Principal) bool {
	switch p.Role {
	case auth.RoleCustomer:
		return p.ID == order.CustomerID
	case auth.RolePharmacy:
		return p.ID == order.PharmacyID
	}
	return false
}

func releaseLines(order *Order) []reservation.Line {
	lines := make([]reservation.Line, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, reservation.Line{MedicineID: line.MedicineID, Quantity: line.Quantity})
	}
	return lines
}
