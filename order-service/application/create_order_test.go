package application

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/saga-system/order-service/domain"
	"github.com/orderflow/saga-system/order-service/infrastructure"
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

func (p *capturingPublisher) topics() []events.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	topics := make([]events.Topic, len(p.events))
	for i, event := range p.events {
		topics[i] = event.Topic
	}
	return topics
}

type orderFixture struct {
	create    *CreateOrder
	confirm   *ConfirmOrder
	cancel    *CancelOrder
	publisher *capturingPublisher
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()

	repository := infrastructure.NewMemoryOrderRepository()
	publisher := &capturingPublisher{}

	return &orderFixture{
		create:    NewCreateOrder(repository, publisher),
		confirm:   NewConfirmOrder(repository, publisher),
		cancel:    NewCancelOrder(repository, publisher),
		publisher: publisher,
	}
}

func laptopOrder(reference string) *CreateOrderCommand {
	return &CreateOrderCommand{
		Reference:  reference,
		CustomerID: "CUST001",
		Items: []OrderItemInput{
			{ProductID: "PROD001", Quantity: 2, UnitPrice: 3000, Currency: "USD"},
		},
	}
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pending order with the line total", func(t *testing.T) {
		f := newOrderFixture(t)

		response, err := f.create.Execute(ctx, laptopOrder(models.GenerateUUID().String()))
		require.NoError(t, err)

		assert.NotEmpty(t, response.OrderID)
		assert.Equal(t, string(domain.OrderStatusPending), response.Status)
		assert.Equal(t, models.NewMoney(6000, "USD"), response.Total)
		assert.Equal(t, []events.Topic{events.OrderCreatedTopic}, f.publisher.topics())
	})

	t.Run("retry with the same reference returns the existing order", func(t *testing.T) {
		f := newOrderFixture(t)
		reference := models.GenerateUUID().String()

		first, err := f.create.Execute(ctx, laptopOrder(reference))
		require.NoError(t, err)
		second, err := f.create.Execute(ctx, laptopOrder(reference))
		require.NoError(t, err)

		assert.Equal(t, first.OrderID, second.OrderID)
		assert.Len(t, f.publisher.events, 1)
	})

	t.Run("rejects an order without items", func(t *testing.T) {
		f := newOrderFixture(t)

		_, err := f.create.Execute(ctx, &CreateOrderCommand{
			Reference:  models.GenerateUUID().String(),
			CustomerID: "CUST001",
		})
		require.Error(t, err)
	})
}

func TestConfirmOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("confirms a pending order", func(t *testing.T) {
		f := newOrderFixture(t)
		created, err := f.create.Execute(ctx, laptopOrder(models.GenerateUUID().String()))
		require.NoError(t, err)

		response, err := f.confirm.Execute(ctx, &ConfirmOrderCommand{OrderID: created.OrderID})
		require.NoError(t, err)
		assert.Equal(t, string(domain.OrderStatusConfirmed), response.Status)

		// Confirming again is a no-op.
		_, err = f.confirm.Execute(ctx, &ConfirmOrderCommand{OrderID: created.OrderID})
		require.NoError(t, err)
	})

	t.Run("cannot confirm a cancelled order", func(t *testing.T) {
		f := newOrderFixture(t)
		created, err := f.create.Execute(ctx, laptopOrder(models.GenerateUUID().String()))
		require.NoError(t, err)

		_, err = f.cancel.Execute(ctx, &CancelOrderCommand{OrderID: created.OrderID, Reason: "out of stock"})
		require.NoError(t, err)

		_, err = f.confirm.Execute(ctx, &ConfirmOrderCommand{OrderID: created.OrderID})
		require.Error(t, err)
	})

	t.Run("confirming a missing order is an error", func(t *testing.T) {
		f := newOrderFixture(t)

		_, err := f.confirm.Execute(ctx, &ConfirmOrderCommand{
			OrderID: models.GenerateUUID().String(),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "order not found")
	})
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels a pending order", func(t *testing.T) {
		f := newOrderFixture(t)
		created, err := f.create.Execute(ctx, laptopOrder(models.GenerateUUID().String()))
		require.NoError(t, err)

		response, err := f.cancel.Execute(ctx, &CancelOrderCommand{OrderID: created.OrderID, Reason: "payment declined"})
		require.NoError(t, err)
		assert.Equal(t, string(domain.OrderStatusCancelled), response.Status)

		// Cancelling again is a no-op.
		_, err = f.cancel.Execute(ctx, &CancelOrderCommand{OrderID: created.OrderID})
		require.NoError(t, err)
	})

	t.Run("cancelling a missing order succeeds", func(t *testing.T) {
		f := newOrderFixture(t)

		response, err := f.cancel.Execute(ctx, &CancelOrderCommand{
			OrderID: models.GenerateUUID().String(),
		})
		require.NoError(t, err)
		assert.Equal(t, string(domain.OrderStatusCancelled), response.Status)
	})

	t.Run("cannot cancel a confirmed order", func(t *testing.T) {
		f := newOrderFixture(t)
		created, err := f.create.Execute(ctx, laptopOrder(models.GenerateUUID().String()))
		require.NoError(t, err)

		_, err = f.confirm.Execute(ctx, &ConfirmOrderCommand{OrderID: created.OrderID})
		require.NoError(t, err)

		_, err = f.cancel.Execute(ctx, &CancelOrderCommand{OrderID: created.OrderID})
		require.Error(t, err)
	})
}
