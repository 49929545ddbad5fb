package domain

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/shared/events"
	"github.com/orderflow/saga-system/shared/models"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderItem is one line of an order
type OrderItem struct {
	ProductID string       `json:"product_id"`
	Quantity  int          `json:"quantity"`
	UnitPrice models.Money `json:"unit_price"`
}

// Order aggregate root. Reference carries the saga transaction id that
// created the order, so creation can be retried without duplicating it.
type Order struct {
	ID         models.ID   `json:"id"`
	CustomerID string      `json:"customer_id"`
	Items      []OrderItem `json:"items"`
	Total      models.Money `json:"total"`
	Status     OrderStatus `json:"status"`
	Reference  string      `json:"reference"`
	Timestamps models.Timestamps
	Version    models.Version

	events []*events.Event
}

// CreateOrder factory method
func CreateOrder(customerID, reference string, items []OrderItem) (*Order, error) {
	if customerID == "" {
		return nil, errors.New("customer ID is required")
	}
	if reference == "" {
		return nil, errors.New("reference is required")
	}
	if len(items) == 0 {
		return nil, errors.New("order must have at least one item")
	}

	total := models.NewMoney(0, items[0].UnitPrice.Currency)
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, errors.New("item quantity must be positive")
		}
		if !item.UnitPrice.IsPositive() {
			return nil, errors.New("item price must be positive")
		}

		line := models.NewMoney(item.UnitPrice.Amount*int64(item.Quantity), item.UnitPrice.Currency)
		sum, err := total.Add(line)
		if err != nil {
			return nil, err
		}
		total = sum
	}

	order := &Order{
		ID:         models.GenerateUUID(),
		CustomerID: customerID,
		Items:      items,
		Total:      total,
		Status:     OrderStatusPending,
		Reference:  reference,
		Timestamps: models.NewTimestamps(),
		Version:    models.NewVersion(),
	}

	order.recordEvent(events.NewEvent(order.ID, events.OrderCreatedTopic, OrderCreatedData{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Total:      order.Total,
		Reference:  order.Reference,
	}))

	return order, nil
}

// Confirm marks the order as confirmed. Confirming twice is a no-op.
func (o *Order) Confirm() error {
	if o.Status == OrderStatusConfirmed {
		return nil
	}
	if o.Status == OrderStatusCancelled {
		return errors.New("cannot confirm a cancelled order")
	}

	o.Status = OrderStatusConfirmed
	o.Timestamps = o.Timestamps.Update()
	o.Version = o.Version.Update()

	o.recordEvent(events.NewEvent(o.ID, events.OrderConfirmedTopic, OrderConfirmedData{
		OrderID:   o.ID,
		Reference: o.Reference,
	}))

	return nil
}

// Cancel marks the order as cancelled. Cancelling twice is a no-op.
func (o *Order) Cancel(reason string) error {
	if o.Status == OrderStatusCancelled {
		return nil
	}
	if o.Status == OrderStatusConfirmed {
		return errors.New("cannot cancel a confirmed order")
	}

	o.Status = OrderStatusCancelled
	o.Timestamps = o.Timestamps.Update()
	o.Version = o.Version.Update()

	o.recordEvent(events.NewEvent(o.ID, events.OrderCancelledTopic, OrderCancelledData{
		OrderID:   o.ID,
		Reference: o.Reference,
		Reason:    reason,
	}))

	return nil
}

// Events returns domain events
func (o *Order) Events() []*events.Event {
	return o.events
}

// ClearEvents clears domain events
func (o *Order) ClearEvents() {
	o.events = make([]*events.Event, 0)
}

func (o *Order) recordEvent(event *events.Event) {
	o.events = append(o.events, event)
}

// Event Data Structures
type OrderCreatedData struct {
	OrderID    models.ID    `json:"order_id"`
	CustomerID string       `json:"customer_id"`
	Total      models.Money `json:"total"`
	Reference  string       `json:"reference"`
}

type OrderConfirmedData struct {
	OrderID   models.ID `json:"order_id"`
	Reference string    `json:"reference"`
}

type OrderCancelledData struct {
	OrderID   models.ID `json:"order_id"`
	Reference string    `json:"reference"`
	Reason    string    `json:"reason"`
}

// OrderRepository persists orders
type OrderRepository interface {
	Save(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id models.ID) (*Order, error)
	FindByReference(ctx context.Context, reference string) (*Order, error)
	FindAll(ctx context.Context, limit, offset int) ([]*Order, error)
}
