package handlers

import (
	"context"
	"log"

	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/payment-service/application"
	"github.com/orderflow/saga-system/shared/events"
)

// PaymentEventHandlers consumes payment command events published by the
// saga and answers on the same correlation id.
type PaymentEventHandlers struct {
	processPayment *application.ProcessPayment
	refundPayment  *application.RefundPayment
	publisher      events.Publisher
}

// NewPaymentEventHandlers creates new payment event handlers
func NewPaymentEventHandlers(
	processPayment *application.ProcessPayment,
	refundPayment *application.RefundPayment,
	publisher events.Publisher,
) *PaymentEventHandlers {
	return &PaymentEventHandlers{
		processPayment: processPayment,
		refundPayment:  refundPayment,
		publisher:      publisher,
	}
}

// HandlerID returns the unique identifier for this event handler
func (h *PaymentEventHandlers) HandlerID() string {
	return "payment-service-event-handler"
}

// Handle implements the events.EventHandler interface
func (h *PaymentEventHandlers) Handle(ctx context.Context, event *events.Event) error {
	switch event.Topic {
	case events.PaymentProcessRequestedTopic:
		return h.handleProcessRequest(ctx, event)
	case events.PaymentRefundRequestedTopic:
		return h.handleRefundRequest(ctx, event)
	default:
		return nil
	}
}

func (h *PaymentEventHandlers) handleProcessRequest(ctx context.Context, event *events.Event) error {
	payload, err := event.Payload()
	if err != nil {
		return errors.Wrap(err, "malformed payment request")
	}

	cmd := &application.ProcessPaymentCommand{
		Reference:  stringField(payload, "transaction_id"),
		OrderID:    stringField(payload, "order_id"),
		CustomerID: stringField(payload, "customer_id"),
		Currency:   stringField(payload, "currency"),
		Amount:     intField(payload, "amount"),
	}

	response, err := h.processPayment.Execute(ctx, cmd)
	if err != nil {
		log.Printf("payment request %s rejected: %v", event.CorrelationID, err)
		return h.reply(ctx, event, events.PaymentFailedTopic, map[string]interface{}{
			"reason": err.Error(),
		})
	}

	return h.reply(ctx, event, events.PaymentProcessedTopic, map[string]interface{}{
		"payment_id": response.PaymentID,
		"status":     response.Status,
	})
}

func (h *PaymentEventHandlers) handleRefundRequest(ctx context.Context, event *events.Event) error {
	payload, err := event.Payload()
	if err != nil {
		return errors.Wrap(err, "malformed refund request")
	}

	cmd := &application.RefundPaymentCommand{
		PaymentID: stringField(payload, "payment_id"),
		Reference: stringField(payload, "transaction_id"),
	}
	if cmd.PaymentID != "" {
		cmd.Reference = ""
	}

	response, err := h.refundPayment.Execute(ctx, cmd)
	if err != nil {
		return errors.Wrap(err, "failed to refund payment")
	}

	return h.reply(ctx, event, events.PaymentRefundedTopic, map[string]interface{}{
		"payment_id": response.PaymentID,
		"status":     response.Status,
	})
}

func (h *PaymentEventHandlers) reply(ctx context.Context, request *events.Event, topic events.Topic, payload map[string]interface{}) error {
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
