package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/saga-system/inventory-service/domain"
	"github.com/orderflow/saga-system/shared/events"
	"github.com/orderflow/saga-system/shared/models"
	"github.com/orderflow/saga-system/shared/telemetry"
)

// ReleaseStockCommand represents the command to release a reservation
type ReleaseStockCommand struct {
	ReservationID string `json:"reservation_id,omitempty"`
	Reference     string `json:"reference,omitempty"`
}

// ReleaseStockResponse represents the response after releasing stock
type ReleaseStockResponse struct {
	ReservationID string `json:"reservation_id,omitempty"`
	Status        string `json:"status"`
}

// ReleaseStock use case returns held stock. It is the compensating action
// of a reservation: releasing a reservation that does not exist or was
// already released succeeds, there is nothing left to undo.
type ReleaseStock struct {
	inventoryRepository   domain.InventoryRepository
	reservationRepository domain.ReservationRepository
	eventPublisher        events.Publisher
}

// NewReleaseStock creates a new ReleaseStock use case
func NewReleaseStock(
	inventoryRepository domain.InventoryRepository,
	reservationRepository domain.ReservationRepository,
	eventPublisher events.Publisher,
) *ReleaseStock {
	return &ReleaseStock{
		inventoryRepository:   inventoryRepository,
		reservationRepository: reservationRepository,
		eventPublisher:        eventPublisher,
	}
}

// Execute releases the reservation
func (uc *ReleaseStock) Execute(ctx context.Context, cmd *ReleaseStockCommand) (*ReleaseStockResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "release_stock",
		trace.WithAttributes(
			attribute.String("reservation_id", cmd.ReservationID),
			attribute.String("reference", cmd.Reference),
		),
	)
	defer span.End()

	reservation, err := uc.findReservation(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if reservation == nil || reservation.Status == domain.ReservationStatusReleased {
		return &ReleaseStockResponse{
			ReservationID: cmd.ReservationID,
			Status:        string(domain.ReservationStatusReleased),
		}, nil
	}

	if reservation.Status == domain.ReservationStatusConfirmed {
		return nil, errors.New("cannot release a confirmed reservation")
	}

	for _, line := range reservation.Lines {
		item, err := uc.inventoryRepository.FindByProductID(ctx, line.ProductID)
		if err != nil {
			span.RecordError(err)
			return nil, errors.Wrap(err, "failed to load stock")
		}
		if item == nil {
			return nil, errors.Errorf("unknown product %s", line.ProductID)
		}

		if err := item.Release(line.Quantity); err != nil {
			span.RecordError(err)
			return nil, err
		}

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

	reservation.Status = domain.ReservationStatusReleased
	reservation.Timestamps = reservation.Timestamps.Update()
	if err := uc.reservationRepository.Save(ctx, reservation); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to save reservation")
	}

	telemetry.RecordCounter(ctx, "inventory_operations_total", "Total inventory operations", 1,
		attribute.String("operation", "release_stock"),
		attribute.String("status", "success"),
	)

	return &ReleaseStockResponse{
		ReservationID: reservation.ID.String(),
		Status:        string(reservation.Status),
	}, nil
}

func (uc *ReleaseStock) findReservation(ctx context.Context, cmd *ReleaseStockCommand) (*domain.Reservation, error) {
	switch {
	case cmd.ReservationID != "":
		id, err := models.NewID(cmd.ReservationID)
		if err != nil {
			return nil, errors.Wrap(err, "invalid reservation ID")
		}
		reservation, err := uc.reservationRepository.FindByID(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "failed to find reservation")
		}
		return reservation, nil
	case cmd.Reference != "":
		reservation, err := uc.reservationRepository.FindByReference(ctx, cmd.Reference)
		if err != nil {
			return nil, errors.Wrap(err, "failed to find reservation")
		}
		return reservation, nil
	default:
		return nil, errors.New("either reservation ID or reference is required")
	}
}
