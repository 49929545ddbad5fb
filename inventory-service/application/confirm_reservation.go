package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/saga-system/inventory-service/domain"
	"github.com/orderflow/saga-system/shared/models"
	"github.com/orderflow/saga-system/shared/telemetry"
)

// ConfirmReservationCommand represents the command to confirm a reservation
type ConfirmReservationCommand struct {
	ReservationID string `json:"reservation_id"`
}

// ConfirmReservationResponse represents the response after confirming
type ConfirmReservationResponse struct {
	ReservationID string `json:"reservation_id"`
	Status        string `json:"status"`
}

// ConfirmReservation use case commits held stock once the order is
// confirmed. Confirming twice is a no-op.
type ConfirmReservation struct {
	inventoryRepository   domain.InventoryRepository
	reservationRepository domain.ReservationRepository
}

// NewConfirmReservation creates a new ConfirmReservation use case
func NewConfirmReservation(
	inventoryRepository domain.InventoryRepository,
	reservationRepository domain.ReservationRepository,
) *ConfirmReservation {
	return &ConfirmReservation{
		inventoryRepository:   inventoryRepository,
		reservationRepository: reservationRepository,
	}
}

// Execute confirms the reservation
func (uc *ConfirmReservation) Execute(ctx context.Context, cmd *ConfirmReservationCommand) (*ConfirmReservationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "confirm_reservation",
		trace.WithAttributes(attribute.String("reservation_id", cmd.ReservationID)),
	)
	defer span.End()

	if cmd.ReservationID == "" {
		return nil, errors.New("reservation ID is required")
	}

	id, err := models.NewID(cmd.ReservationID)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "invalid reservation ID")
	}

	reservation, err := uc.reservationRepository.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to find reservation")
	}

	if reservation == nil {
		err := errors.New("reservation not found")
		span.RecordError(err)
		return nil, err
	}

	if reservation.Status == domain.ReservationStatusConfirmed {
		return &ConfirmReservationResponse{
			ReservationID: reservation.ID.String(),
			Status:        string(reservation.Status),
		}, nil
	}

	if reservation.Status == domain.ReservationStatusReleased {
		return nil, errors.New("cannot confirm a released reservation")
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

		if err := item.Commit(line.Quantity); err != nil {
			span.RecordError(err)
			return nil, err
		}

		if err := uc.inventoryRepository.Save(ctx, item); err != nil {
			span.RecordError(err)
			return nil, errors.Wrap(err, "failed to save stock")
		}
	}

	reservation.Status = domain.ReservationStatusConfirmed
	reservation.Timestamps = reservation.Timestamps.Update()
	if err := uc.reservationRepository.Save(ctx, reservation); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to save reservation")
	}

	telemetry.RecordCounter(ctx, "inventory_operations_total", "Total inventory operations", 1,
		attribute.String("operation", "confirm_reservation"),
		attribute.String("status", "success"),
	)

	return &ConfirmReservationResponse{
		ReservationID: reservation.ID.String(),
		Status:        string(reservation.Status),
	}, nil
}
