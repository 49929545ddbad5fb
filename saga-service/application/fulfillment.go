package application

import (
	"github.com/orderflow/saga-system/shared/events"
	"github.com/orderflow/saga-system/shared/saga"
)

// FulfillmentDefinitionID identifies the order fulfillment flow.
const FulfillmentDefinitionID = "order-fulfillment"

// Step names recorded on the transaction. Each forward step is paired with
// the compensation that undoes it; order confirmation is the final step and
// has nothing to undo.
const (
	StepOrderCreated      = "OrderCreated"
	StepOrderCancelled    = "OrderCancelled"
	StepInventoryReserved = "InventoryReserved"
	StepInventoryReleased = "InventoryReleased"
	StepPaymentProcessed  = "PaymentProcessed"
	StepPaymentRefunded   = "PaymentRefunded"
	StepOrderConfirmed    = "OrderConfirmed"
)

// FulfillmentParticipants groups the services taking part in order
// fulfillment. OrderConfirm is separate from Order because confirmation is
// its own step with no compensation.
type FulfillmentParticipants struct {
	Order        saga.Participant
	Inventory    saga.Participant
	Payment      saga.Participant
	OrderConfirm saga.Participant
}

// NewFulfillmentDefinition builds the orchestrated fulfillment flow: create
// the order, hold the stock, charge the customer, confirm the order. The
// transaction input must carry customer_id, items, amount and currency.
func NewFulfillmentDefinition(p FulfillmentParticipants) (*saga.Definition, error) {
	return saga.NewDefinition(FulfillmentDefinitionID,
		saga.ParticipantStep(StepOrderCreated, StepOrderCancelled, p.Order,
			createOrderPayload, cancelOrderPayload),
		saga.ParticipantStep(StepInventoryReserved, StepInventoryReleased, p.Inventory,
			reserveStockPayload, releaseStockPayload),
		saga.ParticipantStep(StepPaymentProcessed, StepPaymentRefunded, p.Payment,
			processPaymentPayload, refundPaymentPayload),
		saga.ParticipantStep(StepOrderConfirmed, "", p.OrderConfirm,
			confirmOrderPayload, nil),
	)
}

// NewChoreographedFulfillment builds the same flow over the event bus: each
// step publishes its command event and settles on the participant's
// completion or failure event.
func NewChoreographedFulfillment(router *saga.EventRouter) (*saga.Definition, error) {
	return saga.NewDefinition(FulfillmentDefinitionID,
		router.Step(saga.StepTopics{
			Name:                StepOrderCreated,
			CompensationName:    StepOrderCancelled,
			Command:             events.OrderCreateRequestedTopic,
			Success:             events.OrderCreatedTopic,
			Failure:             events.OrderCreateFailedTopic,
			CompensationCommand: events.OrderCancelRequestedTopic,
			CompensationDone:    events.OrderCancelledTopic,
			Payload:             createOrderPayload,
			CompensationPayload: cancelOrderPayload,
		}),
		router.Step(saga.StepTopics{
			Name:                StepInventoryReserved,
			CompensationName:    StepInventoryReleased,
			Command:             events.InventoryReserveRequestedTopic,
			Success:             events.InventoryReservedTopic,
			Failure:             events.InventoryReserveFailedTopic,
			CompensationCommand: events.InventoryReleaseRequestedTopic,
			CompensationDone:    events.InventoryReleasedTopic,
			Payload:             reserveStockPayload,
			CompensationPayload: releaseStockPayload,
		}),
		router.Step(saga.StepTopics{
			Name:                StepPaymentProcessed,
			CompensationName:    StepPaymentRefunded,
			Command:             events.PaymentProcessRequestedTopic,
			Success:             events.PaymentProcessedTopic,
			Failure:             events.PaymentFailedTopic,
			CompensationCommand: events.PaymentRefundRequestedTopic,
			CompensationDone:    events.PaymentRefundedTopic,
			Payload:             processPaymentPayload,
			CompensationPayload: refundPaymentPayload,
		}),
		router.Step(saga.StepTopics{
			Name:    StepOrderConfirmed,
			Command: events.OrderConfirmRequestedTopic,
			Success: events.OrderConfirmedTopic,
			Failure: events.OrderConfirmFailedTopic,
			Payload: confirmOrderPayload,
		}),
	)
}

func createOrderPayload(sc *saga.Context) map[string]interface{} {
	return map[string]interface{}{
		"customer_id": sc.Input["customer_id"],
		"items":       sc.Input["items"],
	}
}

func cancelOrderPayload(sc *saga.Context) map[string]interface{} {
	return map[string]interface{}{
		"order_id": sc.String("order_id"),
		"reason":   "order fulfillment compensated",
	}
}

func reserveStockPayload(sc *saga.Context) map[string]interface{} {
	return map[string]interface{}{
		"items": sc.Input["items"],
	}
}

func releaseStockPayload(sc *saga.Context) map[string]interface{} {
	return map[string]interface{}{
		"reservation_id": sc.String("reservation_id"),
	}
}

func processPaymentPayload(sc *saga.Context) map[string]interface{} {
	return map[string]interface{}{
		"order_id":    sc.String("order_id"),
		"customer_id": sc.Input["customer_id"],
		"amount":      sc.Input["amount"],
		"currency":    sc.Input["currency"],
	}
}

func refundPaymentPayload(sc *saga.Context) map[string]interface{} {
	return map[string]interface{}{
		"payment_id": sc.String("payment_id"),
	}
}

func confirmOrderPayload(sc *saga.Context) map[string]interface{} {
	return map[string]interface{}{
		"order_id": sc.String("order_id"),
	}
}
