package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/saga-system/order-service/domain"
	"github.com/orderflow/saga-system/shared/events"
	"github.com/orderflow/saga-system/shared/models"
	"github.com/orderflow/saga-system/shared/telemetry"
)

// ConfirmOrderCommand represents the command to confirm an order
type ConfirmOrderCommand struct {
	OrderID string `json:"order_id"`
}

// ConfirmOrderResponse represents the response after confirming an order
type ConfirmOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// ConfirmOrder use case confirms a pending order once payment has gone
// through. Confirming an already confirmed order succeeds.
type ConfirmOrder struct {
	orderRepository domain.OrderRepository
	eventPublisher  events.Publisher
}

// NewConfirmOrder creates a new ConfirmOrder use case
func NewConfirmOrder(orderRepository domain.OrderRepository, eventPublisher events.Publisher) *ConfirmOrder {
	return &ConfirmOrder{
		orderRepository: orderRepository,
		eventPublisher:  eventPublisher,
	}
}

// Execute confirms the order
func (uc *ConfirmOrder) Execute(ctx context.Context, cmd *ConfirmOrderCommand) (*ConfirmOrderResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "confirm_order",
		trace.WithAttributes(attribute.String("order_id", cmd.OrderID)),
	)
	defer span.End()

	if cmd.OrderID == "" {
		return nil, errors.New("order ID is required")
	}

	orderID, err := models.NewID(cmd.OrderID)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "invalid order ID")
	}

	order, err := uc.orderRepository.FindByID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to find order")
	}

	if order == nil {
		err := errors.New("order not found")
		span.RecordError(err)
		return nil, err
	}

	if err := order.Confirm(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := uc.orderRepository.Save(ctx, order); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to save order")
	}

	if err := uc.eventPublisher.Publish(ctx, order.Events()...); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to publish events")
	}
	order.ClearEvents()

	telemetry.RecordCounter(ctx, "order_operations_total", "Total order operations", 1,
		attribute.String("operation", "confirm_order"),
		attribute.String("status", "success"),
	)

	return &ConfirmOrderResponse{
		OrderID: order.ID.String(),
		Status:  string(order.Status),
	}, nil
}
