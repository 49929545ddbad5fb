package application

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/saga-system/inventory-service/domain"
	"github.com/orderflow/saga-system/inventory-service/infrastructure"
	"github.com/orderflow/saga-system/shared/events"
	"github.com/orderflow/saga-system/shared/models"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *capturingPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evts...)
	return nil
}

type inventoryFixture struct {
	reserve *ReserveStock
	release *ReleaseStock
	confirm *ConfirmReservation
	stock   *infrastructure.MemoryInventoryRepository
}

func newInventoryFixture(t *testing.T) *inventoryFixture {
	t.Helper()

	stock := infrastructure.NewMemoryInventoryRepository()
	stock.Seed(
		domain.NewInventoryItem("PROD001", "Laptop", 10),
		domain.NewInventoryItem("PROD002", "Mouse", 2),
	)
	reservations := infrastructure.NewMemoryReservationRepository()
	publisher := &capturingPublisher{}

	return &inventoryFixture{
		reserve: NewReserveStock(stock, reservations, publisher),
		release: NewReleaseStock(stock, reservations, publisher),
		confirm: NewConfirmReservation(stock, reservations),
		stock:   stock,
	}
}

func (f *inventoryFixture) levels(t *testing.T, productID string) (available, reserved int) {
	t.Helper()
	item, err := f.stock.FindByProductID(context.Background(), productID)
	require.NoError(t, err)
	require.NotNil(t, item)
	return item.Available, item.Reserved
}

func TestReserveStock(t *testing.T) {
	ctx := context.Background()

	t.Run("holds all requested lines", func(t *testing.T) {
		f := newInventoryFixture(t)

		response, err := f.reserve.Execute(ctx, &ReserveStockCommand{
			Reference: models.GenerateUUID().String(),
			Items: []ReserveItemInput{
				{ProductID: "PROD001", Quantity: 2},
				{ProductID: "PROD002", Quantity: 1},
			},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, response.ReservationID)
		assert.Equal(t, string(domain.ReservationStatusActive), response.Status)

		available, reserved := f.levels(t, "PROD001")
		assert.Equal(t, 8, available)
		assert.Equal(t, 2, reserved)
	})

	t.Run("all lines or none", func(t *testing.T) {
		f := newInventoryFixture(t)

		_, err := f.reserve.Execute(ctx, &ReserveStockCommand{
			Reference: models.GenerateUUID().String(),
			Items: []ReserveItemInput{
				{ProductID: "PROD001", Quantity: 2},
				{ProductID: "PROD002", Quantity: 5},
			},
		})
		require.Error(t, err)
		assert.Equal(t, domain.ErrInsufficientStock, errors.Cause(err))

		// The line that could have been held was not touched.
		available, reserved := f.levels(t, "PROD001")
		assert.Equal(t, 10, available)
		assert.Equal(t, 0, reserved)
	})

	t.Run("retry with the same reference holds once", func(t *testing.T) {
		f := newInventoryFixture(t)
		cmd := &ReserveStockCommand{
			Reference: models.GenerateUUID().String(),
			Items:     []ReserveItemInput{{ProductID: "PROD001", Quantity: 2}},
		}

		first, err := f.reserve.Execute(ctx, cmd)
		require.NoError(t, err)
		second, err := f.reserve.Execute(ctx, cmd)
		require.NoError(t, err)

		assert.Equal(t, first.ReservationID, second.ReservationID)
		available, _ := f.levels(t, "PROD001")
		assert.Equal(t, 8, available)
	})

	t.Run("unknown product is not a decline", func(t *testing.T) {
		f := newInventoryFixture(t)

		_, err := f.reserve.Execute(ctx, &ReserveStockCommand{
			Reference: models.GenerateUUID().String(),
			Items:     []ReserveItemInput{{ProductID: "PROD999", Quantity: 1}},
		})
		require.Error(t, err)
		assert.NotEqual(t, domain.ErrInsufficientStock, errors.Cause(err))
	})
}

func TestReleaseStock(t *testing.T) {
	ctx := context.Background()

	t.Run("release restores the held stock", func(t *testing.T) {
		f := newInventoryFixture(t)
		reference := models.GenerateUUID().String()

		reserved, err := f.reserve.Execute(ctx, &ReserveStockCommand{
			Reference: reference,
			Items:     []ReserveItemInput{{ProductID: "PROD001", Quantity: 3}},
		})
		require.NoError(t, err)

		response, err := f.release.Execute(ctx, &ReleaseStockCommand{ReservationID: reserved.ReservationID})
		require.NoError(t, err)
		assert.Equal(t, string(domain.ReservationStatusReleased), response.Status)

		available, held := f.levels(t, "PROD001")
		assert.Equal(t, 10, available)
		assert.Equal(t, 0, held)
	})

	t.Run("releasing twice restores once", func(t *testing.T) {
		f := newInventoryFixture(t)
		reference := models.GenerateUUID().String()

		_, err := f.reserve.Execute(ctx, &ReserveStockCommand{
			Reference: reference,
			Items:     []ReserveItemInput{{ProductID: "PROD001", Quantity: 3}},
		})
		require.NoError(t, err)

		_, err = f.release.Execute(ctx, &ReleaseStockCommand{Reference: reference})
		require.NoError(t, err)
		_, err = f.release.Execute(ctx, &ReleaseStockCommand{Reference: reference})
		require.NoError(t, err)

		available, _ := f.levels(t, "PROD001")
		assert.Equal(t, 10, available)
	})

	t.Run("releasing a reservation that never existed succeeds", func(t *testing.T) {
		f := newInventoryFixture(t)

		response, err := f.release.Execute(ctx, &ReleaseStockCommand{
			Reference: models.GenerateUUID().String(),
		})
		require.NoError(t, err)
		assert.Equal(t, string(domain.ReservationStatusReleased), response.Status)
	})

	t.Run("a confirmed reservation cannot be released", func(t *testing.T) {
		f := newInventoryFixture(t)
		reference := models.GenerateUUID().String()

		reserved, err := f.reserve.Execute(ctx, &ReserveStockCommand{
			Reference: reference,
			Items:     []ReserveItemInput{{ProductID: "PROD001", Quantity: 3}},
		})
		require.NoError(t, err)

		_, err = f.confirm.Execute(ctx, &ConfirmReservationCommand{ReservationID: reserved.ReservationID})
		require.NoError(t, err)

		_, err = f.release.Execute(ctx, &ReleaseStockCommand{ReservationID: reserved.ReservationID})
		require.Error(t, err)
	})
}

func TestConfirmReservation(t *testing.T) {
	ctx := context.Background()

	f := newInventoryFixture(t)
	reserved, err := f.reserve.Execute(ctx, &ReserveStockCommand{
		Reference: models.GenerateUUID().String(),
		Items:     []ReserveItemInput{{ProductID: "PROD001", Quantity: 3}},
	})
	require.NoError(t, err)

	response, err := f.confirm.Execute(ctx, &ConfirmReservationCommand{ReservationID: reserved.ReservationID})
	require.NoError(t, err)
	assert.Equal(t, string(domain.ReservationStatusConfirmed), response.Status)

	// The hold became a permanent deduction.
	available, held := f.levels(t, "PROD001")
	assert.Equal(t, 7, available)
	assert.Equal(t, 0, held)

	// Confirming twice is a no-op.
	_, err = f.confirm.Execute(ctx, &ConfirmReservationCommand{ReservationID: reserved.ReservationID})
	require.NoError(t, err)
	available, held = f.levels(t, "PROD001")
	assert.Equal(t, 7, available)
	assert.Equal(t, 0, held)
}
