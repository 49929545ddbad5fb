package handlers

import (
	"context"
	"log"

	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/inventory-service/application"
	"github.com/orderflow/saga-system/shared/events"
)

// InventoryEventHandlers consumes inventory command events published by the
// saga and answers on the same correlation id.
type InventoryEventHandlers struct {
	reserveStock *application.ReserveStock
	releaseStock *application.ReleaseStock
	publisher    events.Publisher
}

// NewInventoryEventHandlers creates new inventory event handlers
func NewInventoryEventHandlers(
	reserveStock *application.ReserveStock,
	releaseStock *application.ReleaseStock,
	publisher events.Publisher,
) *InventoryEventHandlers {
	return &InventoryEventHandlers{
		reserveStock: reserveStock,
		releaseStock: releaseStock,
		publisher:    publisher,
	}
}

// HandlerID returns the unique identifier for this event handler
func (h *InventoryEventHandlers) HandlerID() string {
	return "inventory-service-event-handler"
}

// Handle implements the events.EventHandler interface
func (h *InventoryEventHandlers) Handle(ctx context.Context, event *events.Event) error {
	switch event.Topic {
	case events.InventoryReserveRequestedTopic:
		return h.handleReserveRequest(ctx, event)
	case events.InventoryReleaseRequestedTopic:
		return h.handleReleaseRequest(ctx, event)
	default:
		return nil
	}
}

func (h *InventoryEventHandlers) handleReserveRequest(ctx context.Context, event *events.Event) error {
	payload, err := event.Payload()
	if err != nil {
		return errors.Wrap(err, "malformed reserve request")
	}

	cmd := &application.ReserveStockCommand{
		Reference: stringField(payload, "transaction_id"),
		Items:     reserveItemsField(payload),
	}

	response, err := h.reserveStock.Execute(ctx, cmd)
	if err != nil {
		log.Printf("stock reserve request %s rejected: %v", event.CorrelationID, err)
		return h.reply(ctx, event, events.InventoryReserveFailedTopic, map[string]interface{}{
			"reason": err.Error(),
		})
	}

	return h.reply(ctx, event, events.InventoryReservedTopic, map[string]interface{}{
		"reservation_id": response.ReservationID,
		"status":         response.Status,
	})
}

func (h *InventoryEventHandlers) handleReleaseRequest(ctx context.Context, event *events.Event) error {
	payload, err := event.Payload()
	if err != nil {
		return errors.Wrap(err, "malformed release request")
	}

	cmd := &application.ReleaseStockCommand{
		ReservationID: stringField(payload, "reservation_id"),
		Reference:     stringField(payload, "transaction_id"),
	}
	if cmd.ReservationID != "" {
		cmd.Reference = ""
	}

	response, err := h.releaseStock.Execute(ctx, cmd)
	if err != nil {
		return errors.Wrap(err, "failed to release stock")
	}

	return h.reply(ctx, event, events.InventoryReleasedTopic, map[string]interface{}{
		"reservation_id": response.ReservationID,
		"status":         response.Status,
	})
}

func (h *InventoryEventHandlers) reply(ctx context.Context, request *events.Event, topic events.Topic, payload map[string]interface{}) error {
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

func reserveItemsField(payload map[string]interface{}) []application.ReserveItemInput {
	raw, ok := payload["items"].([]interface{})
	if !ok {
		return nil
	}

	items := make([]application.ReserveItemInput, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}

		items = append(items, application.ReserveItemInput{
			ProductID: stringField(m, "product_id"),
			Quantity:  int(intField(m, "quantity")),
		})
	}

	return items
}
