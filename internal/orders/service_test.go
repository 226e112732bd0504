package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UsmanShaikh24/pharmalink/internal/auth"
	"github.com/UsmanShaikh24/pharmalink/internal/catalog"
	"github.com/UsmanShaikh24/pharmalink/internal/orders"
	"github.com/UsmanShaikh24/pharmalink/internal/reservation"
)

type fixture struct {
	medicines *catalog.MemoryRepository
	orderRepo *orders.MemoryRepository
	svc       orders.Service
	customer  auth.Principal
	pharmacy  auth.Principal
	admin     auth.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	medicines := catalog.NewMemoryRepository()
	orderRepo := orders.NewMemoryRepository()
	coordinator := reservation.NewCoordinator(medicines)

	return &fixture{
		medicines: medicines,
		orderRepo: orderRepo,
		svc:       orders.NewService(orderRepo, catalog.NewService(medicines), coordinator),
		customer:  auth.Principal{ID: mustUUID(t), Role: auth.RoleCustomer},
		pharmacy:  auth.Principal{ID: mustUUID(t), Role: auth.RolePharmacy},
		admin:     auth.Principal{ID: mustUUID(t), Role: auth.RoleAdmin},
	}
}

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewV4()
	require.NoError(t, err)
	return id
}

func (f *fixture) seedMedicine(t *testing.T, pharmacyID uuid.UUID, price float64, quantity int) uuid.UUID {
	t.Helper()
	id := mustUUID(t)
	f.medicines.Put(catalog.Medicine{
		ID:         id,
		PharmacyID: pharmacyID,
		Name:       "Amoxicillin 250mg",
		Price:      price,
		Stock:      catalog.Stock{CurrentQuantity: quantity, MinThreshold: 2, Unit: "strip"},
		Active:     true,
	})
	return id
}

func (f *fixture) quantityOf(t *testing.T, id uuid.UUID) int {
	t.Helper()
	m, err := f.medicines.GetByID(context.Background(), id)
	require.NoError(t, err)
	return m.Stock.CurrentQuantity
}

func validAddress() orders.DeliveryAddress {
	return orders.DeliveryAddress{Line1: "12 Hill Road", City: "Mumbai", PostalCode: "400050"}
}

func (f *fixture) createInput(lines ...orders.CartLine) orders.CreateOrderInput {
	return orders.CreateOrderInput{
		CustomerID:      f.customer.ID,
		Lines:           lines,
		DeliveryType:    orders.DeliveryStandard,
		DeliveryAddress: validAddress(),
		PaymentMethod:   orders.PaymentMethodCOD,
	}
}

func TestService_CreateOrder(t *testing.T) {
	t.Run("success_decrements_stock_and_computes_totals", func(t *testing.T) {
		f := newFixture(t)
		medA := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
		medB := f.seedMedicine(t, f.pharmacy.ID, 5, 10)

		order, err := f.svc.CreateOrder(context.Background(), f.createInput(
			orders.CartLine{MedicineID: medA, Quantity: 3},
			orders.CartLine{MedicineID: medB, Quantity: 2},
		))
		require.NoError(t, err)

		assert.Equal(t, f.pharmacy.ID, order.PharmacyID)
		assert.Equal(t, orders.StatusPending, order.Status)
		assert.Equal(t, orders.PaymentPending, order.PaymentStatus)
		assert.Equal(t, 40.0, order.Subtotal)
		assert.InDelta(t, 2.0, order.Tax, 1e-9)
		assert.Equal(t, 50.0, order.DeliveryFee)
		assert.InDelta(t, 92.0, order.TotalAmount, 1e-9)
		assert.Len(t, order.Lines, 2)
		assert.Equal(t, 10.0, order.Lines[0].UnitPrice)
		assert.Equal(t, 5.0, order.Lines[1].UnitPrice)

		assert.Equal(t, 7, f.quantityOf(t, medA))
		assert.Equal(t, 8, f.quantityOf(t, medB))

		persisted, err := f.orderRepo.GetByID(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusPending, persisted.Status)
	})

	t.Run("estimated_delivery_time", func(t *testing.T) {
		f := newFixture(t)
		med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)

		input := f.createInput(orders.CartLine{MedicineID: med, Quantity: 1})
		input.DeliveryType = orders.DeliveryEmergency

		before := time.Now().UTC()
		order, err := f.svc.CreateOrder(context.Background(), input)
		require.NoError(t, err)

		assert.WithinDuration(t, before.Add(10*time.Minute), order.EstimatedDeliveryTime, 5*time.Second)

		input = f.createInput(orders.CartLine{MedicineID: med, Quantity: 1})
		order, err = f.svc.CreateOrder(context.Background(), input)
		require.NoError(t, err)
		assert.WithinDuration(t, before.Add(45*time.Minute), order.EstimatedDeliveryTime, 5*time.Second)
	})

	t.Run("empty_cart", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateOrder(context.Background(), f.createInput())
		assert.ErrorIs(t, err, orders.ErrEmptyCart)
	})

	t.Run("unsupported_payment_method", func(t *testing.T) {
		f := newFixture(t)
		med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)

		input := f.createInput(orders.CartLine{MedicineID: med, Quantity: 1})
		input.PaymentMethod = orders.PaymentMethod("card")

		_, err := f.svc.CreateOrder(context.Background(), input)
		assert.ErrorIs(t, err, orders.ErrUnsupportedPaymentMethod)
		assert.Equal(t, 10, f.quantityOf(t, med))
	})

	t.Run("cross_pharmacy_mix_leaves_stock_untouched", func(t *testing.T) {
		f := newFixture(t)
		otherPharmacy := mustUUID(t)
		medP := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
		medQ := f.seedMedicine(t, otherPharmacy, 5, 10)

		_, err := f.svc.CreateOrder(context.Background(), f.createInput(
			orders.CartLine{MedicineID: medP, Quantity: 1},
			orders.CartLine{MedicineID: medQ, Quantity: 1},
		))
		assert.ErrorIs(t, err, orders.ErrCrossPharmacyMix)
		assert.Equal(t, 10, f.quantityOf(t, medP))
		assert.Equal(t, 10, f.quantityOf(t, medQ))
	})

	t.Run("unknown_medicine", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateOrder(context.Background(), f.createInput(
			orders.CartLine{MedicineID: mustUUID(t), Quantity: 1},
		))
		assert.ErrorIs(t, err, catalog.ErrMedicineNotFound)
	})

	t.Run("inactive_medicine", func(t *testing.T) {
		f := newFixture(t)
		id := mustUUID(t)
		f.medicines.Put(catalog.Medicine{
			ID:         id,
			PharmacyID: f.pharmacy.ID,
			Price:      10,
			Stock:      catalog.Stock{CurrentQuantity: 10},
			Active:     false,
		})

		_, err := f.svc.CreateOrder(context.Background(), f.createInput(
			orders.CartLine{MedicineID: id, Quantity: 1},
		))
		assert.ErrorIs(t, err, catalog.ErrMedicineNotFound)
	})

	t.Run("insufficient_stock_rolls_back_applied_lines", func(t *testing.T) {
		f := newFixture(t)
		medA := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
		medB := f.seedMedicine(t, f.pharmacy.ID, 5, 10)

		_, err := f.svc.CreateOrder(context.Background(), f.createInput(
			orders.CartLine{MedicineID: medA, Quantity: 3},
			orders.CartLine{MedicineID: medB, Quantity: 12}, // stock is 10
		))
		require.Error(t, err)
		assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
		assert.Contains(t, err.Error(), medB.String())

		// the first line's decrement was compensated, nothing persisted
		assert.Equal(t, 10, f.quantityOf(t, medA))
		assert.Equal(t, 10, f.quantityOf(t, medB))
		list, err := f.orderRepo.ListByCustomer(context.Background(), f.customer.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("lines_reload_in_cart_order", func(t *testing.T) {
		f := newFixture(t)

		var cart []orders.CartLine
		var medicineIDs []uuid.UUID
		for i := 0; i < 5; i++ {
			id := f.seedMedicine(t, f.pharmacy.ID, float64(i+1), 10)
			medicineIDs = append(medicineIDs, id)
			cart = append(cart, orders.CartLine{MedicineID: id, Quantity: 1})
		}

		order, err := f.svc.CreateOrder(context.Background(), f.createInput(cart...))
		require.NoError(t, err)

		reloaded, err := f.svc.GetOrder(context.Background(), order.ID, f.customer)
		require.NoError(t, err)
		require.Len(t, reloaded.Lines, len(cart))
		for i, line := range reloaded.Lines {
			assert.Equal(t, medicineIDs[i], line.MedicineID)
			assert.Equal(t, i, line.Position)
		}
	})

	t.Run("zero_quantity_rejected", func(t *testing.T) {
		f := newFixture(t)
		med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)

		_, err := f.svc.CreateOrder(context.Background(), f.createInput(
			orders.CartLine{MedicineID: med, Quantity: 0},
		))
		assert.Error(t, err)
		assert.Equal(t, 10, f.quantityOf(t, med))
	})
}

func (f *fixture) placeOrder(t *testing.T, lines ...orders.CartLine) *orders.Order {
	t.Helper()
	order, err := f.svc.CreateOrder(context.Background(), f.createInput(lines...))
	require.NoError(t, err)
	return order
}

func TestService_SetStatus(t *testing.T) {
	t.Run("happy_path_transitions", func(t *testing.T) {
		f := newFixture(t)
		med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
		order := f.placeOrder(t, orders.CartLine{MedicineID: med, Quantity: 1})

		for _, status := range []orders.OrderStatus{
			orders.StatusConfirmed,
			orders.StatusProcessing,
			orders.StatusOutForDelivery,
		} {
			updated, err := f.svc.SetStatus(context.Background(), order.ID, status, f.pharmacy)
			require.NoError(t, err)
			assert.Equal(t, status, updated.Status)
		}
	})

	t.Run("skipping_states_rejected", func(t *testing.T) {
		f := newFixture(t)
		med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
		order := f.placeOrder(t, orders.CartLine{MedicineID: med, Quantity: 1})

		_, err := f.svc.SetStatus(context.Background(), order.ID, orders.StatusDelivered, f.pharmacy)
		assert.ErrorIs(t, err, orders.ErrInvalidStateTransition)
	})

	t.Run("delivered_completes_payment_and_stamps_time", func(t *testing.T) {
		f := newFixture(t)
		med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
		order := f.placeOrder(t, orders.CartLine{MedicineID: med, Quantity: 1})

		for _, status := range []orders.OrderStatus{
			orders.StatusConfirmed,
			orders.StatusProcessing,
			orders.StatusOutForDelivery,
		} {
			_, err := f.svc.SetStatus(context.Background(), order.ID, status, f.pharmacy)
			require.NoError(t, err)
		}

		updated, err := f.svc.SetStatus(context.Background(), order.ID, orders.StatusDelivered, f.admin)
		require.NoError(t, err)

		assert.Equal(t, orders.StatusDelivered, updated.Status)
		assert.Equal(t, orders.PaymentCompleted, updated.PaymentStatus)
		require.NotNil(t, updated.ActualDeliveryTime)
		assert.WithinDuration(t, time.Now().UTC(), *updated.ActualDeliveryTime, 5*time.Second)

		// delivery does not restock
		assert.Equal(t, 9, f.quantityOf(t, med))
	})

	t.Run("terminal_states_are_closed", func(t *testing.T) {
		f := newFixture(t)
		med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
		order := f.placeOrder(t, orders.CartLine{MedicineID: med, Quantity: 1})

		_, err := f.svc.CancelOrder(context.Background(), order.ID, f.customer)
		require.NoError(t, err)

		_, err = f.svc.SetStatus(context.Background(), order.ID, orders.StatusConfirmed, f.pharmacy)
		assert.ErrorIs(t, err, orders.ErrInvalidStateTransition)

		_, err = f.svc.CancelOrder(context.Background(), order.ID, f.customer)
		assert.ErrorIs(t, err, orders.ErrInvalidStateTransition)
	})

	t.Run("foreign_pharmacy_rejected", func(t *testing.T) {
		f := newFixture(t)
		med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
		order := f.placeOrder(t, orders.CartLine{MedicineID: med, Quantity: 1})

		stranger := auth.Principal{ID: mustUUID(t), Role: auth.RolePharmacy}
		_, err := f.svc.SetStatus(context.Background(), order.ID, orders.StatusConfirmed, stranger)
		assert.ErrorIs(t, err, auth.ErrNotAuthorized)
	})

	t.Run("customer_cannot_set_fulfillment_status", func(t *testing.T) {
		f := newFixture(t)
		med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
		order := f.placeOrder(t, orders.CartLine{MedicineID: med, Quantity: 1})

		_, err := f.svc.SetStatus(context.Background(), order.ID, orders.StatusConfirmed, f.customer)
		assert.ErrorIs(t, err, auth.ErrNotAuthorized)
	})

	t.Run("unknown_order", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.SetStatus(context.Background(), mustUUID(t), orders.StatusConfirmed, f.admin)
		assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	})
}

func TestService_CancelOrder(t *testing.T) {
	t.Run("cancellation_restores_stock", func(t *testing.T) {
		f := newFixture(t)
		medA := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
		medB := f.seedMedicine(t, f.pharmacy.ID, 5, 10)
		order := f.placeOrder(t,
			orders.CartLine{MedicineID: medA, Quantity: 3},
			orders.CartLine{MedicineID: medB, Quantity: 2},
		)

		assert.Equal(t, 7, f.quantityOf(t, medA))
		assert.Equal(t, 8, f.quantityOf(t, medB))

		cancelled, err := f.svc.CancelOrder(context.Background(), order.ID, f.customer)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusCancelled, cancelled.Status)

		assert.Equal(t, 10, f.quantityOf(t, medA))
		assert.Equal(t, 10, f.quantityOf(t, medB))
	})

	t.Run("pharmacy_can_cancel_in_processing", func(t *testing.T) {
		f := newFixture(t)
		med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
		order := f.placeOrder(t, orders.CartLine{MedicineID: med, Quantity: 2})

		_, err := f.svc.SetStatus(context.Background(), order.ID, orders.StatusConfirmed, f.pharmacy)
		require.NoError(t, err)
		_, err = f.svc.SetStatus(context.Background(), order.ID, orders.StatusProcessing, f.pharmacy)
		require.NoError(t, err)

		cancelled, err := f.svc.CancelOrder(context.Background(), order.ID, f.pharmacy)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusCancelled, cancelled.Status)
		assert.Equal(t, 10, f.quantityOf(t, med))
	})

	t.Run("admin_cannot_cancel", func(t *testing.T) {
		f := newFixture(t)
		med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
		order := f.placeOrder(t, orders.CartLine{MedicineID: med, Quantity: 1})

		_, err := f.svc.CancelOrder(context.Background(), order.ID, f.admin)
		assert.ErrorIs(t, err, auth.ErrNotAuthorized)
	})

	t.Run("foreign_customer_cannot_cancel", func(t *testing.T) {
		f := newFixture(t)
		med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
		order := f.placeOrder(t, orders.CartLine{MedicineID: med, Quantity: 1})

		stranger := auth.Principal{ID: mustUUID(t), Role: auth.RoleCustomer}
		_, err := f.svc.CancelOrder(context.Background(), order.ID, stranger)
		assert.ErrorIs(t, err, auth.ErrNotAuthorized)
	})
}

func TestService_GetOrder(t *testing.T) {
	f := newFixture(t)
	med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
	order := f.placeOrder(t, orders.CartLine{MedicineID: med, Quantity: 1})

	tests := []struct {
		name      string
		principal auth.Principal
		wantErrIs error
	}{
		{name: "customer_owner", principal: f.customer},
		{name: "owning_pharmacy", principal: f.pharmacy},
		{name: "admin", principal: f.admin},
		{name: "foreign_customer", principal: auth.Principal{ID: mustUUID(t), Role: auth.RoleCustomer}, wantErrIs: auth.ErrNotAuthorized},
		{name: "foreign_pharmacy", principal: auth.Principal{ID: mustUUID(t), Role: auth.RolePharmacy}, wantErrIs: auth.ErrNotAuthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.GetOrder(context.Background(), order.ID, tt.principal)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, order.ID, got.ID)
		})
	}
}

func TestService_ListOrders(t *testing.T) {
	f := newFixture(t)
	med := f.seedMedicine(t, f.pharmacy.ID, 10, 100)
	f.placeOrder(t, orders.CartLine{MedicineID: med, Quantity: 1})
	f.placeOrder(t, orders.CartLine{MedicineID: med, Quantity: 2})

	customerOrders, err := f.svc.ListOrders(context.Background(), f.customer)
	require.NoError(t, err)
	assert.Len(t, customerOrders, 2)

	pharmacyOrders, err := f.svc.ListOrders(context.Background(), f.pharmacy)
	require.NoError(t, err)
	assert.Len(t, pharmacyOrders, 2)

	_, err = f.svc.ListOrders(context.Background(), f.admin)
	assert.ErrorIs(t, err, auth.ErrNotAuthorized)
}

func TestService_AppendTracking(t *testing.T) {
	t.Run("owning_pharmacy_appends_in_order", func(t *testing.T) {
		f := newFixture(t)
		med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
		order := f.placeOrder(t, orders.CartLine{MedicineID: med, Quantity: 1})

		lat := 19.0596
		lng := 72.8295
		updated, err := f.svc.AppendTracking(context.Background(), order.ID, orders.TrackingInput{
			Status: "packed",
		}, f.pharmacy)
		require.NoError(t, err)
		require.Len(t, updated.Tracking, 1)

		updated, err = f.svc.AppendTracking(context.Background(), order.ID, orders.TrackingInput{
			Status:   "courier en route",
			Latitude: &lat, Longitude: &lng,
		}, f.pharmacy)
		require.NoError(t, err)
		require.Len(t, updated.Tracking, 2)

		assert.Equal(t, "packed", updated.Tracking[0].Status)
		assert.Equal(t, "courier en route", updated.Tracking[1].Status)
		assert.WithinDuration(t, time.Now().UTC(), updated.Tracking[1].Timestamp, 5*time.Second)
		assert.False(t, updated.Tracking[1].Timestamp.Before(updated.Tracking[0].Timestamp))
	})

	t.Run("customer_cannot_append", func(t *testing.T) {
		f := newFixture(t)
		med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
		order := f.placeOrder(t, orders.CartLine{MedicineID: med, Quantity: 1})

		_, err := f.svc.AppendTracking(context.Background(), order.ID, orders.TrackingInput{Status: "packed"}, f.customer)
		assert.ErrorIs(t, err, auth.ErrNotAuthorized)
	})

	t.Run("foreign_pharmacy_cannot_append", func(t *testing.T) {
		f := newFixture(t)
		med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
		order := f.placeOrder(t, orders.CartLine{MedicineID: med, Quantity: 1})

		stranger := auth.Principal{ID: mustUUID(t), Role: auth.RolePharmacy}
		_, err := f.svc.AppendTracking(context.Background(), order.ID, orders.TrackingInput{Status: "packed"}, stranger)
		assert.ErrorIs(t, err, auth.ErrNotAuthorized)
	})
}

// A transition computed against a stale read must lose to the one that
// committed first.
func TestService_SetStatus_ConcurrentTransitionConflict(t *testing.T) {
	f := newFixture(t)
	med := f.seedMedicine(t, f.pharmacy.ID, 10, 10)
	order := f.placeOrder(t, orders.CartLine{MedicineID: med, Quantity: 1})

	stale, err := f.orderRepo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)

	_, err = f.svc.SetStatus(context.Background(), order.ID, orders.StatusConfirmed, f.pharmacy)
	require.NoError(t, err)

	// replay the stale snapshot directly against the repository
	stale.Status = orders.StatusCancelled
	err = f.orderRepo.Update(context.Background(), stale)
	assert.ErrorIs(t, err, orders.ErrVersionConflict)
}
