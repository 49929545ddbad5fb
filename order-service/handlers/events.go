package handlers

import (
	"context"
	"log"

	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/order-service/application"
	"github.com/orderflow/saga-system/shared/events"
)

// OrderEventHandlers consumes order command events published by the saga
// and answers with completion or failure events on the same correlation id.
type OrderEventHandlers struct {
	createOrder  *application.CreateOrder
	confirmOrder *application.ConfirmOrder
	cancelOrder  *application.CancelOrder
	publisher    events.Publisher
}

// NewOrderEventHandlers creates new order event handlers
func NewOrderEventHandlers(
	createOrder *application.CreateOrder,
	confirmOrder *application.ConfirmOrder,
	cancelOrder *application.CancelOrder,
	publisher events.Publisher,
) *OrderEventHandlers {
	return &OrderEventHandlers{
		createOrder:  createOrder,
		confirmOrder: confirmOrder,
		cancelOrder:  cancelOrder,
		publisher:    publisher,
	}
}

// HandlerID returns the unique identifier for this event handler
func (h *OrderEventHandlers) HandlerID() string {
	return "order-service-event-handler"
}

// Handle implements the events.EventHandler interface
func (h *OrderEventHandlers) Handle(ctx context.Context, event *events.Event) error {
	switch event.Topic {
	case events.OrderCreateRequestedTopic:
		return h.handleCreateRequest(ctx, event)
	case events.OrderConfirmRequestedTopic:
		return h.handleConfirmRequest(ctx, event)
	case events.OrderCancelRequestedTopic:
		return h.handleCancelRequest(ctx, event)
	default:
		return nil
	}
}

func (h *OrderEventHandlers) handleCreateRequest(ctx context.Context, event *events.Event) error {
	payload, err := event.Payload()
	if err != nil {
		return errors.Wrap(err, "malformed order create request")
	}

	cmd := &application.CreateOrderCommand{
		Reference:  stringField(payload, "transaction_id"),
		CustomerID: stringField(payload, "customer_id"),
		Items:      itemsField(payload),
	}

	response, err := h.createOrder.Execute(ctx, cmd)
	if err != nil {
		log.Printf("order create request %s rejected: %v", event.CorrelationID, err)
		return h.reply(ctx, event, events.OrderCreateFailedTopic, map[string]interface{}{
			"reason": err.Error(),
		})
	}

	return h.reply(ctx, event, events.OrderCreatedTopic, map[string]interface{}{
		"order_id": response.OrderID,
		"status":   response.Status,
	})
}

func (h *OrderEventHandlers) handleConfirmRequest(ctx context.Context, event *events.Event) error {
	payload, err := event.Payload()
	if err != nil {
		return errors.Wrap(err, "malformed order confirm request")
	}

	cmd := &application.ConfirmOrderCommand{OrderID: stringField(payload, "order_id")}

	response, err := h.confirmOrder.Execute(ctx, cmd)
	if err != nil {
		log.Printf("order confirm request %s rejected: %v", event.CorrelationID, err)
		return h.reply(ctx, event, events.OrderConfirmFailedTopic, map[string]interface{}{
			"reason": err.Error(),
		})
	}

	return h.reply(ctx, event, events.OrderConfirmedTopic, map[string]interface{}{
		"order_id": response.OrderID,
		"status":   response.Status,
	})
}

func (h *OrderEventHandlers) handleCancelRequest(ctx context.Context, event *events.Event) error {
	payload, err := event.Payload()
	if err != nil {
		return errors.Wrap(err, "malformed order cancel request")
	}

	cmd := &application.CancelOrderCommand{
		OrderID: stringField(payload, "order_id"),
		Reason:  stringField(payload, "reason"),
	}

	response, err := h.cancelOrder.Execute(ctx, cmd)
	if err != nil {
		// Cancellation is compensating work; the requester retries on
		// missing replies, so a hard failure is returned for redelivery.
		return errors.Wrap(err, "failed to cancel order")
	}

	return h.reply(ctx, event, events.OrderCancelledTopic, map[string]interface{}{
		"order_id": response.OrderID,
		"status":   response.Status,
	})
}

func (h *OrderEventHandlers) reply(ctx context.Context, request *events.Event, topic events.Topic, payload map[string]interface{}) error {
	payload["transaction_id"] = request.CorrelationID.String()
	reply := events.NewEvent(request.AggregateID, topic, payload).WithCorrelationID(request.CorrelationID)
	return h.publisher.Publish(ctx, reply)
}

func stringField(payload map[string]interface{}, key string) string {
	v, _ := payload[key].(string)
	return v
}

// Numbers arrive as float64 after a JSON round trip but keep their Go type
// when the event stays in process.
func intField(payload map[string]interface{}, key string) int64 {
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

func itemsField(payload map[string]interface{}) []application.OrderItemInput {
	raw, ok := payload["items"].([]interface{})
	if !ok {
		return nil
	}

	items := make([]application.OrderItemInput, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}

		items = append(items, application.OrderItemInput{
			ProductID: stringField(m, "product_id"),
			Currency:  stringField(m, "currency"),
			Quantity:  int(intField(m, "quantity")),
			UnitPrice: intField(m, "unit_price"),
		})
	}

	return items
}
