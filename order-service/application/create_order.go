package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/saga-system/order-service/domain"
	"github.com/orderflow/saga-system/shared/events"
	"github.com/orderflow/saga-system/shared/models"
	"github.com/orderflow/saga-system/shared/telemetry"
)

// OrderItemInput is one requested order line
type OrderItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Currency  string `json:"currency"`
}

// CreateOrderCommand represents the command to create an order
type CreateOrderCommand struct {
	Reference  string           `json:"reference"`
	CustomerID string           `json:"customer_id"`
	Items      []OrderItemInput `json:"items"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID    string       `json:"order_id"`
	CustomerID string       `json:"customer_id"`
	Status     string       `json:"status"`
	Total      models.Money `json:"total"`
}

// CreateOrder use case creates a pending order. Creation is idempotent per
// reference: a retry with the same reference returns the existing order.
type CreateOrder struct {
	orderRepository domain.OrderRepository
	eventPublisher  events.Publisher
}

// NewCreateOrder creates a new CreateOrder use case
func NewCreateOrder(orderRepository domain.OrderRepository, eventPublisher events.Publisher) *CreateOrder {
	return &CreateOrder{
		orderRepository: orderRepository,
		eventPublisher:  eventPublisher,
	}
}

// Execute creates the order
func (uc *CreateOrder) Execute(ctx context.Context, cmd *CreateOrderCommand) (*CreateOrderResponse, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "create_order",
		trace.WithAttributes(
			attribute.String("customer_id", cmd.CustomerID),
			attribute.String("reference", cmd.Reference),
		),
	)
	defer span.End()

	status := "error"
	defer func() {
		telemetry.RecordCounter(ctx, "order_operations_total", "Total order operations", 1,
			attribute.String("operation", "create_order"),
			attribute.String("status", status),
		)
		telemetry.RecordHistogram(ctx, "order_operation_duration_seconds", "Order operation duration",
			time.Since(start).Seconds(),
			attribute.String("operation", "create_order"),
		)
	}()

	if err := uc.validateCommand(cmd); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "invalid command")
	}

	// Retry of an already created order
	existing, err := uc.orderRepository.FindByReference(ctx, cmd.Reference)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to look up order by reference")
	}
	if existing != nil {
		status = "success"
		return uc.toResponse(existing), nil
	}

	items := make([]domain.OrderItem, len(cmd.Items))
	for i, item := range cmd.Items {
		items[i] = domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: models.NewMoney(item.UnitPrice, item.Currency),
		}
	}

	order, err := domain.CreateOrder(cmd.CustomerID, cmd.Reference, items)
	if err != nil {
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

	status = "success"
	span.SetAttributes(attribute.String("order_id", order.ID.String()))

	return uc.toResponse(order), nil
}

func (uc *CreateOrder) toResponse(order *domain.Order) *CreateOrderResponse {
	return &CreateOrderResponse{
		OrderID:    order.ID.String(),
		CustomerID: order.CustomerID,
		Status:     string(order.Status),
		Total:      order.Total,
	}
}

func (uc *CreateOrder) validateCommand(cmd *CreateOrderCommand) error {
	if cmd.Reference == "" {
		return errors.New("reference is required")
	}

	if cmd.CustomerID == "" {
		return errors.New("customer ID is required")
	}

	if len(cmd.Items) == 0 {
		return errors.New("at least one item is required")
	}

	for _, item := range cmd.Items {
		if item.ProductID == "" {
			return errors.New("product ID is required")
		}
		if item.Quantity <= 0 {
			return errors.New("quantity must be positive")
		}
		if item.UnitPrice <= 0 {
			return errors.New("unit price must be positive")
		}
		if item.Currency == "" {
			return errors.New("currency is required")
		}
	}

	return nil
}
