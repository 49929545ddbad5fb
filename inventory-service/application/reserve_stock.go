package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/saga-system/inventory-service/domain"
	"github.com/orderflow/saga-system/shared/events"
	"github.com/orderflow/saga-system/shared/telemetry"
)

// ReserveItemInput is one requested product hold
type ReserveItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ReserveStockCommand represents the command to reserve stock for an order
type ReserveStockCommand struct {
	Reference string             `json:"reference"`
	Items     []ReserveItemInput `json:"items"`
}

// ReserveStockResponse represents the response after reserving stock
type ReserveStockResponse struct {
	ReservationID string `json:"reservation_id"`
	Status        string `json:"status"`
}

// ReserveStock use case holds stock for an order, all lines or none.
// Reservation is idempotent per reference: a retry returns the existing
// reservation instead of holding stock twice.
type ReserveStock struct {
	inventoryRepository   domain.InventoryRepository
	reservationRepository domain.ReservationRepository
	eventPublisher        events.Publisher
}

// NewReserveStock creates a new ReserveStock use case
func NewReserveStock(
	inventoryRepository domain.InventoryRepository,
	reservationRepository domain.ReservationRepository,
	eventPublisher events.Publisher,
) *ReserveStock {
	return &ReserveStock{
		inventoryRepository:   inventoryRepository,
		reservationRepository: reservationRepository,
		eventPublisher:        eventPublisher,
	}
}

// Execute reserves the stock
func (uc *ReserveStock) Execute(ctx context.Context, cmd *ReserveStockCommand) (*ReserveStockResponse, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "reserve_stock",
		trace.WithAttributes(attribute.String("reference", cmd.Reference)),
	)
	defer span.End()

	status := "error"
	defer func() {
		telemetry.RecordCounter(ctx, "inventory_operations_total", "Total inventory operations", 1,
			attribute.String("operation", "reserve_stock"),
			attribute.String("status", status),
		)
		telemetry.RecordHistogram(ctx, "inventory_operation_duration_seconds", "Inventory operation duration",
			time.Since(start).Seconds(),
			attribute.String("operation", "reserve_stock"),
		)
	}()

	if err := uc.validateCommand(cmd); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "invalid command")
	}

	// Retry of an already taken reservation
	existing, err := uc.reservationRepository.FindByReference(ctx, cmd.Reference)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to look up reservation")
	}
	if existing != nil && existing.Status != domain.ReservationStatusReleased {
		status = "success"
		return &ReserveStockResponse{
			ReservationID: existing.ID.String(),
			Status:        string(existing.Status),
		}, nil
	}

	// Verify the whole order before holding anything
	items := make([]*domain.InventoryItem, len(cmd.Items))
	for i, line := range cmd.Items {
		item, err := uc.inventoryRepository.FindByProductID(ctx, line.ProductID)
		if err != nil {
			span.RecordError(err)
			return nil, errors.Wrap(err, "failed to load stock")
		}
		if item == nil {
			return nil, errors.Errorf("unknown product %s", line.ProductID)
		}
		if item.Available < line.Quantity {
			status = "declined"
			return nil, errors.Wrapf(domain.ErrInsufficientStock, "product %s", line.ProductID)
		}
		items[i] = item
	}

	lines := make([]domain.ReservationLine, len(cmd.Items))
	for i, line := range cmd.Items {
		if err := items[i].Reserve(line.Quantity); err != nil {
			span.RecordError(err)
			return nil, err
		}
		lines[i] = domain.ReservationLine{ProductID: line.ProductID, Quantity: line.Quantity}
	}

	reservation := domain.NewReservation(cmd.Reference, lines)

	for _, item := range items {
		if err := uc.inventoryRepository.Save(ctx, item); err != nil {
			span.RecordError(err)
			return nil, errors.Wrap(err, "failed to save stock")
		}
		if err := uc.eventPublisher.Publish(ctx, item.Events()...); err != nil {
			span.RecordError(err)
			return nil, errors.Wrap(err, "failed to publish events")
		}
		item.ClearEvents()
	}

	if err := uc.reservationRepository.Save(ctx, reservation); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to save reservation")
	}

	status = "success"
	span.SetAttributes(attribute.String("reservation_id", reservation.ID.String()))

	return &ReserveStockResponse{
		ReservationID: reservation.ID.String(),
		Status:        string(reservation.Status),
	}, nil
}

func (uc *ReserveStock) validateCommand(cmd *ReserveStockCommand) error {
	if cmd.Reference == "" {
		return errors.New("reference is required")
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
	}

	return nil
}
