package application

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/order-service/domain"
	"github.com/orderflow/saga-system/shared/models"
)

// GetOrderQuery represents the query to retrieve an order
type GetOrderQuery struct {
	OrderID   string `json:"order_id"`
	Reference string `json:"reference"`
}

// GetOrder use case retrieves an order by id or reference
type GetOrder struct {
	orderRepository domain.OrderRepository
}

// NewGetOrder creates a new GetOrder use case
func NewGetOrder(orderRepository domain.OrderRepository) *GetOrder {
	return &GetOrder{orderRepository: orderRepository}
}

// Execute retrieves the order
func (uc *GetOrder) Execute(ctx context.Context, query *GetOrderQuery) (*domain.Order, error) {
	var order *domain.Order
	var err error

	switch {
	case query.OrderID != "":
		var orderID models.ID
		orderID, err = models.NewID(query.OrderID)
		if err != nil {
			return nil, errors.Wrap(err, "invalid order ID")
		}
		order, err = uc.orderRepository.FindByID(ctx, orderID)
	case query.Reference != "":
		order, err = uc.orderRepository.FindByReference(ctx, query.Reference)
	default:
		return nil, errors.New("either order ID or reference is required")
	}

	if err != nil {
		return nil, errors.Wrap(err, "failed to find order")
	}

	if order == nil {
		return nil, errors.New("order not found")
	}

	return order, nil
}

// ListOrders use case lists orders with pagination
type ListOrders struct {
	orderRepository domain.OrderRepository
}

// NewListOrders creates a new ListOrders use case
func NewListOrders(orderRepository domain.OrderRepository) *ListOrders {
	return &ListOrders{orderRepository: orderRepository}
}

// Execute lists orders
func (uc *ListOrders) Execute(ctx context.Context, limit, offset int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}

	orders, err := uc.orderRepository.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list orders")
	}

	return orders, nil
}
