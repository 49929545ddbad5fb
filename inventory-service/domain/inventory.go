package domain

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/shared/events"
	"github.com/orderflow/saga-system/shared/models"
)

// ErrInsufficientStock is the business refusal of a reservation
var ErrInsufficientStock = errors.New("insufficient stock")

// InventoryItem aggregate root: the stock position of one product.
// Available is sellable stock on hand, Reserved is held for in-flight
// orders.
type InventoryItem struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Available  int    `json:"available"`
	Reserved   int    `json:"reserved"`
	Timestamps models.Timestamps
	Version    models.Version

	events []*events.Event
}

// NewInventoryItem creates a stock position for a product
func NewInventoryItem(productID, name string, available int) *InventoryItem {
	return &InventoryItem{
		ProductID:  productID,
		Name:       name,
		Available:  available,
		Timestamps: models.NewTimestamps(),
		Version:    models.NewVersion(),
	}
}

// Reserve holds quantity for an order. Insufficient stock is a refusal,
// not an infrastructure failure.
func (i *InventoryItem) Reserve(quantity int) error {
	if quantity <= 0 {
		return errors.New("quantity must be positive")
	}

	if i.Available < quantity {
		return ErrInsufficientStock
	}

	i.Available -= quantity
	i.Reserved += quantity
	i.touch()

	i.recordEvent(events.NewEvent(models.GenerateUUID(), events.InventoryReservedTopic, StockChangedData{
		ProductID: i.ProductID,
		Quantity:  quantity,
		Available: i.Available,
		Reserved:  i.Reserved,
	}))

	return nil
}

// Release returns a held quantity to sellable stock
func (i *InventoryItem) Release(quantity int) error {
	if quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	if i.Reserved < quantity {
		return errors.New("release exceeds reserved quantity")
	}

	i.Reserved -= quantity
	i.Available += quantity
	i.touch()

	i.recordEvent(events.NewEvent(models.GenerateUUID(), events.InventoryReleasedTopic, StockChangedData{
		ProductID: i.ProductID,
		Quantity:  quantity,
		Available: i.Available,
		Reserved:  i.Reserved,
	}))

	return nil
}

// Commit removes a held quantity permanently once the order is confirmed
func (i *InventoryItem) Commit(quantity int) error {
	if quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	if i.Reserved < quantity {
		return errors.New("commit exceeds reserved quantity")
	}

	i.Reserved -= quantity
	i.touch()

	return nil
}

func (i *InventoryItem) touch() {
	i.Timestamps = i.Timestamps.Update()
	i.Version = i.Version.Update()
}

// Events returns domain events
func (i *InventoryItem) Events() []*events.Event {
	return i.events
}

// ClearEvents clears domain events
func (i *InventoryItem) ClearEvents() {
	i.events = make([]*events.Event, 0)
}

func (i *InventoryItem) recordEvent(event *events.Event) {
	i.events = append(i.events, event)
}

// ReservationStatus represents the status of a reservation
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
)

// ReservationLine is one product hold within a reservation
type ReservationLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Reservation groups the holds taken for one order. Reference carries the
// saga transaction id so a retried reservation is found instead of doubled.
type Reservation struct {
	ID         models.ID         `json:"id"`
	Reference  string            `json:"reference"`
	Lines      []ReservationLine `json:"lines"`
	Status     ReservationStatus `json:"status"`
	Timestamps models.Timestamps
}

// NewReservation creates an active reservation
func NewReservation(reference string, lines []ReservationLine) *Reservation {
	return &Reservation{
		ID:         models.GenerateUUID(),
		Reference:  reference,
		Lines:      lines,
		Status:     ReservationStatusActive,
		Timestamps: models.NewTimestamps(),
	}
}

// StockChangedData is the payload of stock movement events
type StockChangedData struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
}

// InventoryRepository persists stock positions
type InventoryRepository interface {
	Save(ctx context.Context, item *InventoryItem) error
	FindByProductID(ctx context.Context, productID string) (*InventoryItem, error)
	FindAll(ctx context.Context) ([]*InventoryItem, error)
}

// ReservationRepository persists reservations
type ReservationRepository interface {
	Save(ctx context.Context, reservation *Reservation) error
	FindByID(ctx context.Context, id models.ID) (*Reservation, error)
	FindByReference(ctx context.Context, reference string) (*Reservation, error)
}
