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

// CancelOrderCommand represents the command to cancel an order
type CancelOrderCommand struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

// CancelOrderResponse represents the response after cancelling an order
type CancelOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// CancelOrder use case cancels a pending order. It is the compensating
// action of order creation: cancelling an order that does not exist or is
// already cancelled succeeds, there is nothing left to undo.
type CancelOrder struct {
	orderRepository domain.OrderRepository
	eventPublisher  events.Publisher
}

// NewCancelOrder creates a new CancelOrder use case
func NewCancelOrder(orderRepository domain.OrderRepository, eventPublisher events.Publisher) *CancelOrder {
	return &CancelOrder{
		orderRepository: orderRepository,
		eventPublisher:  eventPublisher,
	}
}

// Execute cancels the order
func (uc *CancelOrder) Execute(ctx context.Context, cmd *CancelOrderCommand) (*CancelOrderResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "cancel_order",
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
		return &CancelOrderResponse{
			OrderID: cmd.OrderID,
			Status:  string(domain.OrderStatusCancelled),
		}, nil
	}

	if err := order.Cancel(cmd.Reason); err != nil {
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
		attribute.String("operation", "cancel_order"),
		attribute.String("status", "success"),
	)

	return &CancelOrderResponse{
		OrderID: order.ID.String(),
		Status:  string(order.Status),
	}, nil
}
