package infrastructure

import (
	"context"

	invapp "github.com/orderflow/saga-system/inventory-service/application"
	orderapp "github.com/orderflow/saga-system/order-service/application"
	payapp "github.com/orderflow/saga-system/payment-service/application"
	"github.com/orderflow/saga-system/shared/saga"
)

// The local participants drive the other services' use cases in process,
// for single-binary deployments and tests. The mapping mirrors the HTTP
// clients: a use case error on the forward action is a decline, an error on
// the compensating action is a compensation failure.

// LocalOrderParticipant creates and cancels orders in process
type LocalOrderParticipant struct {
	createOrder *orderapp.CreateOrder
	cancelOrder *orderapp.CancelOrder
}

var _ saga.Participant = (*LocalOrderParticipant)(nil)

// NewLocalOrderParticipant creates a local order participant
func NewLocalOrderParticipant(createOrder *orderapp.CreateOrder, cancelOrder *orderapp.CancelOrder) *LocalOrderParticipant {
	return &LocalOrderParticipant{createOrder: createOrder, cancelOrder: cancelOrder}
}

// Execute creates the order
func (p *LocalOrderParticipant) Execute(ctx context.Context, cmd saga.Command) (saga.Result, error) {
	response, err := p.createOrder.Execute(ctx, &orderapp.CreateOrderCommand{
		Reference:  cmd.TransactionID,
		CustomerID: stringPayload(cmd.Payload, "customer_id"),
		Items:      orderItems(cmd.Payload["items"]),
	})
	if err != nil {
		return saga.Result{Status: saga.ResultDeclined, Reason: err.Error()}, nil
	}

	return saga.Result{
		Status: saga.ResultSuccess,
		Data: map[string]interface{}{
			"order_id": response.OrderID,
			"status":   response.Status,
		},
	}, nil
}

// Compensate cancels the order
func (p *LocalOrderParticipant) Compensate(ctx context.Context, cmd saga.Command) (saga.Result, error) {
	_, err := p.cancelOrder.Execute(ctx, &orderapp.CancelOrderCommand{
		OrderID: stringPayload(cmd.Payload, "order_id"),
		Reason:  stringPayload(cmd.Payload, "reason"),
	})
	if err != nil {
		return saga.Result{}, err
	}
	return saga.Result{Status: saga.ResultSuccess}, nil
}

// LocalOrderConfirmParticipant confirms orders in process
type LocalOrderConfirmParticipant struct {
	confirmOrder *orderapp.ConfirmOrder
}

var _ saga.Participant = (*LocalOrderConfirmParticipant)(nil)

// NewLocalOrderConfirmParticipant creates a local order confirmation participant
func NewLocalOrderConfirmParticipant(confirmOrder *orderapp.ConfirmOrder) *LocalOrderConfirmParticipant {
	return &LocalOrderConfirmParticipant{confirmOrder: confirmOrder}
}

// Execute confirms the order
func (p *LocalOrderConfirmParticipant) Execute(ctx context.Context, cmd saga.Command) (saga.Result, error) {
	response, err := p.confirmOrder.Execute(ctx, &orderapp.ConfirmOrderCommand{
		OrderID: stringPayload(cmd.Payload, "order_id"),
	})
	if err != nil {
		return saga.Result{Status: saga.ResultDeclined, Reason: err.Error()}, nil
	}

	return saga.Result{
		Status: saga.ResultSuccess,
		Data: map[string]interface{}{
			"order_id": response.OrderID,
			"status":   response.Status,
		},
	}, nil
}

// Compensate is a no-op
func (p *LocalOrderConfirmParticipant) Compensate(ctx context.Context, cmd saga.Command) (saga.Result, error) {
	return saga.Result{Status: saga.ResultSuccess}, nil
}

// LocalInventoryParticipant reserves and releases stock in process
type LocalInventoryParticipant struct {
	reserveStock *invapp.ReserveStock
	releaseStock *invapp.ReleaseStock
}

var _ saga.Participant = (*LocalInventoryParticipant)(nil)

// NewLocalInventoryParticipant creates a local inventory participant
func NewLocalInventoryParticipant(reserveStock *invapp.ReserveStock, releaseStock *invapp.ReleaseStock) *LocalInventoryParticipant {
	return &LocalInventoryParticipant{reserveStock: reserveStock, releaseStock: releaseStock}
}

// Execute reserves stock
func (p *LocalInventoryParticipant) Execute(ctx context.Context, cmd saga.Command) (saga.Result, error) {
	response, err := p.reserveStock.Execute(ctx, &invapp.ReserveStockCommand{
		Reference: cmd.TransactionID,
		Items:     reserveItems(cmd.Payload["items"]),
	})
	if err != nil {
		return saga.Result{Status: saga.ResultDeclined, Reason: err.Error()}, nil
	}

	return saga.Result{
		Status: saga.ResultSuccess,
		Data: map[string]interface{}{
			"reservation_id": response.ReservationID,
			"status":         response.Status,
		},
	}, nil
}

// Compensate releases the reservation
func (p *LocalInventoryParticipant) Compensate(ctx context.Context, cmd saga.Command) (saga.Result, error) {
	_, err := p.releaseStock.Execute(ctx, &invapp.ReleaseStockCommand{
		ReservationID: stringPayload(cmd.Payload, "reservation_id"),
		Reference:     cmd.TransactionID,
	})
	if err != nil {
		return saga.Result{}, err
	}
	return saga.Result{Status: saga.ResultSuccess}, nil
}

// LocalPaymentParticipant charges and refunds in process
type LocalPaymentParticipant struct {
	processPayment *payapp.ProcessPayment
	refundPayment  *payapp.RefundPayment
}

var _ saga.Participant = (*LocalPaymentParticipant)(nil)

// NewLocalPaymentParticipant creates a local payment participant
func NewLocalPaymentParticipant(processPayment *payapp.ProcessPayment, refundPayment *payapp.RefundPayment) *LocalPaymentParticipant {
	return &LocalPaymentParticipant{processPayment: processPayment, refundPayment: refundPayment}
}

// Execute charges the customer
func (p *LocalPaymentParticipant) Execute(ctx context.Context, cmd saga.Command) (saga.Result, error) {
	response, err := p.processPayment.Execute(ctx, &payapp.ProcessPaymentCommand{
		Reference:  cmd.TransactionID,
		OrderID:    stringPayload(cmd.Payload, "order_id"),
		CustomerID: stringPayload(cmd.Payload, "customer_id"),
		Amount:     intPayload(cmd.Payload, "amount"),
		Currency:   stringPayload(cmd.Payload, "currency"),
	})
	if err != nil {
		return saga.Result{Status: saga.ResultDeclined, Reason: err.Error()}, nil
	}

	return saga.Result{
		Status: saga.ResultSuccess,
		Data: map[string]interface{}{
			"payment_id": response.PaymentID,
			"status":     response.Status,
		},
	}, nil
}

// Compensate refunds the charge
func (p *LocalPaymentParticipant) Compensate(ctx context.Context, cmd saga.Command) (saga.Result, error) {
	_, err := p.refundPayment.Execute(ctx, &payapp.RefundPaymentCommand{
		PaymentID: stringPayload(cmd.Payload, "payment_id"),
	})
	if err != nil {
		return saga.Result{}, err
	}
	return saga.Result{Status: saga.ResultSuccess}, nil
}

// Items travel as []interface{} of maps whether they come straight from the
// saga input or through a JSON round trip, so numeric fields may be int,
// int64 or float64.

func orderItems(raw interface{}) []orderapp.OrderItemInput {
	entries, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	items := make([]orderapp.OrderItemInput, 0, len(entries))
	for _, entry := range entries {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		items = append(items, orderapp.OrderItemInput{
			ProductID: stringPayload(m, "product_id"),
			Quantity:  int(intPayload(m, "quantity")),
			UnitPrice: intPayload(m, "unit_price"),
			Currency:  stringPayload(m, "currency"),
		})
	}
	return items
}

func reserveItems(raw interface{}) []invapp.ReserveItemInput {
	entries, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	items := make([]invapp.ReserveItemInput, 0, len(entries))
	for _, entry := range entries {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		items = append(items, invapp.ReserveItemInput{
			ProductID: stringPayload(m, "product_id"),
			Quantity:  int(intPayload(m, "quantity")),
		})
	}
	return items
}

func intPayload(payload map[string]interface{}, key string) int64 {
	switch v := payload[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}
