package application

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invapp "github.com/orderflow/saga-system/inventory-service/application"
	invdomain "github.com/orderflow/saga-system/inventory-service/domain"
	invinfra "github.com/orderflow/saga-system/inventory-service/infrastructure"
	orderapp "github.com/orderflow/saga-system/order-service/application"
	orderdomain "github.com/orderflow/saga-system/order-service/domain"
	orderinfra "github.com/orderflow/saga-system/order-service/infrastructure"
	payapp "github.com/orderflow/saga-system/payment-service/application"
	paydomain "github.com/orderflow/saga-system/payment-service/domain"
	payinfra "github.com/orderflow/saga-system/payment-service/infrastructure"
	"github.com/orderflow/saga-system/saga-service/infrastructure"
	"github.com/orderflow/saga-system/shared/events"
	"github.com/orderflow/saga-system/shared/models"
	"github.com/orderflow/saga-system/shared/saga"
)

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	return nil
}

// fulfillmentFixture wires the three services in process behind local
// participants, the way the single-binary deployment does.
type fulfillmentFixture struct {
	startSaga *StartSaga
	store     *saga.MemoryTransactionStore

	orders   *orderinfra.MemoryOrderRepository
	stock    *invinfra.MemoryInventoryRepository
	accounts *payinfra.MemoryAccountRepository
}

func newFulfillmentFixture(t *testing.T) *fulfillmentFixture {
	t.Helper()

	publisher := &nopPublisher{}

	orders := orderinfra.NewMemoryOrderRepository()
	createOrder := orderapp.NewCreateOrder(orders, publisher)
	cancelOrder := orderapp.NewCancelOrder(orders, publisher)
	confirmOrder := orderapp.NewConfirmOrder(orders, publisher)

	stock := invinfra.NewMemoryInventoryRepository()
	stock.Seed(
		invdomain.NewInventoryItem("PROD001", "Laptop", 10),
		invdomain.NewInventoryItem("PROD002", "Mouse", 2),
	)
	reservations := invinfra.NewMemoryReservationRepository()
	reserveStock := invapp.NewReserveStock(stock, reservations, publisher)
	releaseStock := invapp.NewReleaseStock(stock, reservations, publisher)

	accounts := payinfra.NewMemoryAccountRepository()
	accounts.Seed(
		paydomain.NewAccount("CUST001", models.NewMoney(10000, "USD")),
		paydomain.NewAccount("CUST002", models.NewMoney(50, "USD")),
	)
	payments := payinfra.NewMemoryPaymentRepository()
	processPayment := payapp.NewProcessPayment(accounts, payments, publisher)
	refundPayment := payapp.NewRefundPayment(accounts, payments, publisher)

	definition, err := NewFulfillmentDefinition(FulfillmentParticipants{
		Order:        infrastructure.NewLocalOrderParticipant(createOrder, cancelOrder),
		Inventory:    infrastructure.NewLocalInventoryParticipant(reserveStock, releaseStock),
		Payment:      infrastructure.NewLocalPaymentParticipant(processPayment, refundPayment),
		OrderConfirm: infrastructure.NewLocalOrderConfirmParticipant(confirmOrder),
	})
	require.NoError(t, err)

	store := saga.NewMemoryTransactionStore()
	engine := saga.NewEngine(store, saga.WithLogger(log.New(io.Discard, "", 0)))

	return &fulfillmentFixture{
		startSaga: NewStartSaga(engine, definition),
		store:     store,
		orders:    orders,
		stock:     stock,
		accounts:  accounts,
	}
}

func (f *fulfillmentFixture) orderFor(t *testing.T, txn *saga.Transaction) *orderdomain.Order {
	t.Helper()
	order, err := f.orders.FindByReference(context.Background(), txn.ID.String())
	require.NoError(t, err)
	require.NotNil(t, order)
	return order
}

func (f *fulfillmentFixture) stockLevels(t *testing.T, productID string) (available, reserved int) {
	t.Helper()
	item, err := f.stock.FindByProductID(context.Background(), productID)
	require.NoError(t, err)
	require.NotNil(t, item)
	return item.Available, item.Reserved
}

func (f *fulfillmentFixture) balanceOf(t *testing.T, customerID string) int64 {
	t.Helper()
	account, err := f.accounts.FindByCustomerID(context.Background(), customerID)
	require.NoError(t, err)
	require.NotNil(t, account)
	return account.Balance.Amount
}

func TestStartSagaCompletesFulfillment(t *testing.T) {
	f := newFulfillmentFixture(t)

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
	assert.Empty(t, txn.CompensatedSteps)
	assert.Empty(t, txn.ErrorMessage)
	require.NotNil(t, txn.CompletedAt)

	order := f.orderFor(t, txn)
	assert.Equal(t, orderdomain.OrderStatusConfirmed, order.Status)
	assert.Equal(t, models.NewMoney(6000, "USD"), order.Total)

	available, reserved := f.stockLevels(t, "PROD001")
	assert.Equal(t, 8, available)
	assert.Equal(t, 2, reserved)

	assert.Equal(t, int64(4000), f.balanceOf(t, "CUST001"))

	stored, err := f.store.Get(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, saga.PhaseCompleted, stored.State.Phase)
}

func TestStartSagaCompensatesWhenPaymentDeclines(t *testing.T) {
	f := newFulfillmentFixture(t)

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
	assert.Empty(t, txn.CompensationErrors)
	assert.Contains(t, txn.ErrorMessage, "step PaymentProcessed declined")
	assert.Contains(t, txn.ErrorMessage, "insufficient funds")

	// Every side effect was rolled back.
	order := f.orderFor(t, txn)
	assert.Equal(t, orderdomain.OrderStatusCancelled, order.Status)

	available, reserved := f.stockLevels(t, "PROD001")
	assert.Equal(t, 10, available)
	assert.Equal(t, 0, reserved)

	assert.Equal(t, int64(50), f.balanceOf(t, "CUST002"))
}

func TestStartSagaCompensatesWhenStockRunsOut(t *testing.T) {
	f := newFulfillmentFixture(t)

	txn, err := f.startSaga.Execute(context.Background(), &StartSagaCommand{
		CustomerID: "CUST001",
		Items: []SagaItemInput{
			{ProductID: "PROD002", Quantity: 5, UnitPrice: 100, Currency: "USD"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, saga.PhaseCompensated, txn.State.Phase)
	assert.Equal(t, []string{StepOrderCreated}, txn.ExecutedSteps)
	assert.Equal(t, []string{StepOrderCancelled}, txn.CompensatedSteps)
	assert.Contains(t, txn.ErrorMessage, "step InventoryReserved declined")
	assert.Contains(t, txn.ErrorMessage, "insufficient stock")

	order := f.orderFor(t, txn)
	assert.Equal(t, orderdomain.OrderStatusCancelled, order.Status)

	available, reserved := f.stockLevels(t, "PROD002")
	assert.Equal(t, 2, available)
	assert.Equal(t, 0, reserved)

	assert.Equal(t, int64(10000), f.balanceOf(t, "CUST001"))
}

func TestStartSagaRejectsInvalidCommands(t *testing.T) {
	f := newFulfillmentFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  *StartSagaCommand
	}{
		{"missing customer", &StartSagaCommand{
			Items: []SagaItemInput{{ProductID: "PROD001", Quantity: 1, UnitPrice: 100, Currency: "USD"}},
		}},
		{"no items", &StartSagaCommand{CustomerID: "CUST001"}},
		{"mixed currencies", &StartSagaCommand{
			CustomerID: "CUST001",
			Items: []SagaItemInput{
				{ProductID: "PROD001", Quantity: 1, UnitPrice: 100, Currency: "USD"},
				{ProductID: "PROD002", Quantity: 1, UnitPrice: 100, Currency: "EUR"},
			},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.startSaga.Execute(ctx, tt.cmd)
			require.Error(t, err)
		})
	}
}

func TestGetAndListTransactions(t *testing.T) {
	f := newFulfillmentFixture(t)
	ctx := context.Background()

	completed, err := f.startSaga.Execute(ctx, &StartSagaCommand{
		CustomerID: "CUST001",
		Items: []SagaItemInput{
			{ProductID: "PROD001", Quantity: 1, UnitPrice: 100, Currency: "USD"},
		},
	})
	require.NoError(t, err)

	compensated, err := f.startSaga.Execute(ctx, &StartSagaCommand{
		CustomerID: "CUST002",
		Items: []SagaItemInput{
			{ProductID: "PROD001", Quantity: 1, UnitPrice: 2500, Currency: "USD"},
		},
	})
	require.NoError(t, err)

	get := NewGetTransaction(f.store)
	found, err := get.Execute(ctx, completed.ID.String())
	require.NoError(t, err)
	assert.Equal(t, saga.PhaseCompleted, found.State.Phase)

	_, err = get.Execute(ctx, models.GenerateUUID().String())
	require.Error(t, err)

	list := NewListTransactions(f.store)
	all, err := list.Execute(ctx, &ListTransactionsQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyCompensated, err := list.Execute(ctx, &ListTransactionsQuery{Phase: string(saga.PhaseCompensated)})
	require.NoError(t, err)
	require.Len(t, onlyCompensated, 1)
	assert.Equal(t, compensated.ID, onlyCompensated[0].ID)
}
