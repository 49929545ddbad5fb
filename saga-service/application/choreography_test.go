package application

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invapp "github.com/orderflow/saga-system/inventory-service/application"
	invdomain "github.com/orderflow/saga-system/inventory-service/domain"
	invhandlers "github.com/orderflow/saga-system/inventory-service/handlers"
	invinfra "github.com/orderflow/saga-system/inventory-service/infrastructure"
	orderapp "github.com/orderflow/saga-system/order-service/application"
	orderdomain "github.com/orderflow/saga-system/order-service/domain"
	orderhandlers "github.com/orderflow/saga-system/order-service/handlers"
	orderinfra "github.com/orderflow/saga-system/order-service/infrastructure"
	payapp "github.com/orderflow/saga-system/payment-service/application"
	paydomain "github.com/orderflow/saga-system/payment-service/domain"
	payhandlers "github.com/orderflow/saga-system/payment-service/handlers"
	payinfra "github.com/orderflow/saga-system/payment-service/infrastructure"
	"github.com/orderflow/saga-system/shared/infrastructure"
	"github.com/orderflow/saga-system/shared/models"
	"github.com/orderflow/saga-system/shared/saga"
)

// newChoreographyFixture runs the same three services behind the event bus:
// the saga publishes command events and the services answer with completion
// or failure events, exactly as they would over SNS/SQS.
func newChoreographyFixture(t *testing.T) *fulfillmentFixture {
	t.Helper()

	bus := infrastructure.NewMemoryEventBus()
	t.Cleanup(bus.Close)

	orders := orderinfra.NewMemoryOrderRepository()
	bus.Subscribe("order.#", orderhandlers.NewOrderEventHandlers(
		orderapp.NewCreateOrder(orders, bus),
		orderapp.NewConfirmOrder(orders, bus),
		orderapp.NewCancelOrder(orders, bus),
		bus,
	))

	stock := invinfra.NewMemoryInventoryRepository()
	stock.Seed(
		invdomain.NewInventoryItem("PROD001", "Laptop", 10),
		invdomain.NewInventoryItem("PROD002", "Mouse", 2),
	)
	reservations := invinfra.NewMemoryReservationRepository()
	bus.Subscribe("inventory.#", invhandlers.NewInventoryEventHandlers(
		invapp.NewReserveStock(stock, reservations, bus),
		invapp.NewReleaseStock(stock, reservations, bus),
		bus,
	))

	accounts := payinfra.NewMemoryAccountRepository()
	accounts.Seed(
		paydomain.NewAccount("CUST001", models.NewMoney(10000, "USD")),
		paydomain.NewAccount("CUST002", models.NewMoney(50, "USD")),
	)
	payments := payinfra.NewMemoryPaymentRepository()
	bus.Subscribe("payment.#", payhandlers.NewPaymentEventHandlers(
		payapp.NewProcessPayment(accounts, payments, bus),
		payapp.NewRefundPayment(accounts, payments, bus),
		bus,
	))

	quiet := log.New(io.Discard, "", 0)
	router := saga.NewEventRouter(bus, saga.WithRouterLogger(quiet))
	bus.Subscribe("#", router)

	definition, err := NewChoreographedFulfillment(router)
	require.NoError(t, err)

	store := saga.NewMemoryTransactionStore()
	engine := saga.NewEngine(store,
		saga.WithLogger(quiet),
		saga.WithStepTimeout(5*time.Second),
	)

	return &fulfillmentFixture{
		startSaga: NewStartSaga(engine, definition),
		store:     store,
		orders:    orders,
		stock:     stock,
		accounts:  accounts,
	}
}

func TestChoreographedFulfillmentCompletes(t *testing.T) {
	f := newChoreographyFixture(t)

	txn, err := f.startSaga.Execute(context.Background(), &StartSagaCommand{
		CustomerID: "CUST001",
		Items: []SagaItemInput{
			{ProductID: "PROD001", Quantity: 2, UnitPrice: 3000, Currency: "USD"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, saga.PhaseCompleted, txn.State.Phase)
	assert.Equal(t, []string{
		StepOrderCreated, StepInventoryReserved, StepPaymentProcessed, StepOrderConfirmed,
	}, txn.ExecutedSteps)

	order := f.orderFor(t, txn)
	assert.Equal(t, orderdomain.OrderStatusConfirmed, order.Status)

	available, reserved := f.stockLevels(t, "PROD001")
	assert.Equal(t, 8, available)
	assert.Equal(t, 2, reserved)

	assert.Equal(t, int64(4000), f.balanceOf(t, "CUST001"))
}

func TestChoreographedFulfillmentCompensatesOnDecline(t *testing.T) {
	f := newChoreographyFixture(t)

	txn, err := f.startSaga.Execute(context.Background(), &StartSagaCommand{
		CustomerID: "CUST002",
		Items: []SagaItemInput{
			{ProductID: "PROD001", Quantity: 1, UnitPrice: 2500, Currency: "USD"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, saga.PhaseCompensated, txn.State.Phase)
	assert.Equal(t, []string{StepOrderCreated, StepInventoryReserved}, txn.ExecutedSteps)
	assert.Equal(t, []string{StepInventoryReleased, StepOrderCancelled}, txn.CompensatedSteps)
	assert.Contains(t, txn.ErrorMessage, "step PaymentProcessed declined")
	assert.Contains(t, txn.ErrorMessage, "insufficient funds")

	order := f.orderFor(t, txn)
	assert.Equal(t, orderdomain.OrderStatusCancelled, order.Status)

	available, reserved := f.stockLevels(t, "PROD001")
	assert.Equal(t, 10, available)
	assert.Equal(t, 0, reserved)

	assert.Equal(t, int64(50), f.balanceOf(t, "CUST002"))
}
