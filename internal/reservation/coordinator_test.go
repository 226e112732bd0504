package reservation_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UsmanShaikh24/pharmalink/internal/catalog"
	"github.com/UsmanShaikh24/pharmalink/internal/reservation"
)

func seedMedicine(t *testing.T, repo *catalog.MemoryRepository, quantity int) uuid.UUID {
	t.Helper()
	id, err := uuid.NewV4()
	require.NoError(t, err)
	pharmacyID, err := uuid.NewV4()
	require.NoError(t, err)
	repo.Put(catalog.Medicine{
		ID:         id,
		PharmacyID: pharmacyID,
		Name:       "Ibuprofen 200mg",
		Price:      5,
		Stock:      catalog.Stock{CurrentQuantity: quantity, MinThreshold: 1, Unit: "strip"},
		Active:     true,
	})
	return id
}

func quantityOf(t *testing.T, repo *catalog.MemoryRepository, id uuid.UUID) int {
	t.Helper()
	m, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return m.Stock.CurrentQuantity
}

func TestCoordinator_Reserve(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	coordinator := reservation.NewCoordinator(repo)

	medA := seedMedicine(t, repo, 10)
	medB := seedMedicine(t, repo, 10)

	err := coordinator.Reserve(context.Background(), []reservation.Line{
		{MedicineID: medA, Quantity: 3},
		{MedicineID: medB, Quantity: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, 7, quantityOf(t, repo, medA))
	assert.Equal(t, 8, quantityOf(t, repo, medB))
}

// A batch failing at line k must restore every line applied before it.
func TestCoordinator_Reserve_RollbackOnFailure(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	coordinator := reservation.NewCoordinator(repo)

	medA := seedMedicine(t, repo, 10)
	medB := seedMedicine(t, repo, 10)
	medC := seedMedicine(t, repo, 5)

	err := coordinator.Reserve(context.Background(), []reservation.Line{
		{MedicineID: medA, Quantity: 4},
		{MedicineID: medB, Quantity: 1},
		{MedicineID: medC, Quantity: 12}, // exceeds stock
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	assert.Contains(t, err.Error(), medC.String())

	assert.Equal(t, 10, quantityOf(t, repo, medA))
	assert.Equal(t, 10, quantityOf(t, repo, medB))
	assert.Equal(t, 5, quantityOf(t, repo, medC))
}

func TestCoordinator_Reserve_NotFoundRollsBack(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	coordinator := reservation.NewCoordinator(repo)

	medA := seedMedicine(t, repo, 10)
	unknown, err := uuid.NewV4()
	require.NoError(t, err)

	err = coordinator.Reserve(context.Background(), []reservation.Line{
		{MedicineID: medA, Quantity: 2},
		{MedicineID: unknown, Quantity: 1},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrMedicineNotFound)

	assert.Equal(t, 10, quantityOf(t, repo, medA))
}

// Release is best-effort: a line that cannot be restored does not stop the
// remaining lines from being released.
func TestCoordinator_Release_BestEffort(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	coordinator := reservation.NewCoordinator(repo)

	medA := seedMedicine(t, repo, 7)
	medB := seedMedicine(t, repo, 8)
	deleted, err := uuid.NewV4()
	require.NoError(t, err)

	coordinator.Release(context.Background(), []reservation.Line{
		{MedicineID: medA, Quantity: 3},
		{MedicineID: deleted, Quantity: 2},
		{MedicineID: medB, Quantity: 2},
	})

	assert.Equal(t, 10, quantityOf(t, repo, medA))
	assert.Equal(t, 10, quantityOf(t, repo, medB))
}
