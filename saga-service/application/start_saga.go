package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/saga-system/shared/saga"
	"github.com/orderflow/saga-system/shared/telemetry"
)

// SagaItemInput is one requested order line
type SagaItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Currency  string `json:"currency"`
}

// StartSagaCommand represents the command to start an order fulfillment saga
type StartSagaCommand struct {
	CustomerID string          `json:"customer_id"`
	Items      []SagaItemInput `json:"items"`
}

// StartSaga use case runs one fulfillment transaction to its terminal
// state. The call is synchronous: the caller gets back the final
// transaction record, completed or compensated.
type StartSaga struct {
	engine     *saga.Engine
	definition *saga.Definition
}

// NewStartSaga creates a new StartSaga use case
func NewStartSaga(engine *saga.Engine, definition *saga.Definition) *StartSaga {
	return &StartSaga{
		engine:     engine,
		definition: definition,
	}
}

// Execute runs the saga
func (uc *StartSaga) Execute(ctx context.Context, cmd *StartSagaCommand) (*saga.Transaction, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "start_saga",
		trace.WithAttributes(
			attribute.String("customer_id", cmd.CustomerID),
			attribute.String("definition_id", uc.definition.ID()),
		),
	)
	defer span.End()

	status := "error"
	defer func() {
		telemetry.RecordCounter(ctx, "saga_operations_total", "Total saga operations", 1,
			attribute.String("operation", "start_saga"),
			attribute.String("status", status),
		)
		telemetry.RecordHistogram(ctx, "saga_duration_seconds", "Saga execution duration",
			time.Since(start).Seconds(),
			attribute.String("definition", uc.definition.ID()),
		)
	}()

	if err := uc.validateCommand(cmd); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "invalid command")
	}

	txn, err := uc.engine.Execute(ctx, uc.definition, uc.toInput(cmd))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	status = "success"
	span.SetAttributes(
		attribute.String("transaction_id", txn.ID.String()),
		attribute.String("phase", string(txn.State.Phase)),
	)

	return txn, nil
}

func (uc *StartSaga) toInput(cmd *StartSagaCommand) map[string]interface{} {
	items := make([]interface{}, len(cmd.Items))
	var total int64
	currency := ""
	for i, item := range cmd.Items {
		items[i] = map[string]interface{}{
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
			"unit_price": item.UnitPrice,
			"currency":   item.Currency,
		}
		total += item.UnitPrice * int64(item.Quantity)
		currency = item.Currency
	}

	return map[string]interface{}{
		"customer_id": cmd.CustomerID,
		"items":       items,
		"amount":      total,
		"currency":    currency,
	}
}

func (uc *StartSaga) validateCommand(cmd *StartSagaCommand) error {
	if cmd.CustomerID == "" {
		return errors.New("customer ID is required")
	}

	if len(cmd.Items) == 0 {
		return errors.New("at least one item is required")
	}

	currency := cmd.Items[0].Currency
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
		if item.Currency != currency {
			return errors.New("all items must share one currency")
		}
	}

	return nil
}
