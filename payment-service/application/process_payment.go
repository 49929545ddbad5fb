package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/saga-system/payment-service/domain"
	"github.com/orderflow/saga-system/shared/events"
	"github.com/orderflow/saga-system/shared/models"
	"github.com/orderflow/saga-system/shared/telemetry"
)

// ProcessPaymentCommand represents the command to charge a customer
type ProcessPaymentCommand struct {
	Reference  string `json:"reference"`
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
}

// ProcessPaymentResponse represents the response after processing a payment
type ProcessPaymentResponse struct {
	PaymentID string       `json:"payment_id"`
	Status    string       `json:"status"`
	Balance   models.Money `json:"balance"`
}

// ProcessPayment use case charges a customer account. The charge is
// idempotent per reference: a retry returns the existing payment without
// debiting again.
type ProcessPayment struct {
	accountRepository domain.AccountRepository
	paymentRepository domain.PaymentRepository
	eventPublisher    events.Publisher
}

// NewProcessPayment creates a new ProcessPayment use case
func NewProcessPayment(
	accountRepository domain.AccountRepository,
	paymentRepository domain.PaymentRepository,
	eventPublisher events.Publisher,
) *ProcessPayment {
	return &ProcessPayment{
		accountRepository: accountRepository,
		paymentRepository: paymentRepository,
		eventPublisher:    eventPublisher,
	}
}

// Execute processes the payment
func (uc *ProcessPayment) Execute(ctx context.Context, cmd *ProcessPaymentCommand) (*ProcessPaymentResponse, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "process_payment",
		trace.WithAttributes(
			attribute.String("customer_id", cmd.CustomerID),
			attribute.String("reference", cmd.Reference),
			attribute.Int64("amount", cmd.Amount),
		),
	)
	defer span.End()

	status := "error"
	defer func() {
		telemetry.RecordCounter(ctx, "payment_operations_total", "Total payment operations", 1,
			attribute.String("operation", "process_payment"),
			attribute.String("status", status),
		)
		telemetry.RecordHistogram(ctx, "payment_operation_duration_seconds", "Payment operation duration",
			time.Since(start).Seconds(),
			attribute.String("operation", "process_payment"),
		)
	}()

	if err := uc.validateCommand(cmd); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "invalid command")
	}

	// Retry of an already processed charge
	existing, err := uc.paymentRepository.FindByReference(ctx, cmd.Reference)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to look up payment")
	}
	if existing != nil && existing.Status == domain.PaymentStatusProcessed {
		account, err := uc.accountRepository.FindByCustomerID(ctx, existing.CustomerID)
		if err != nil {
			span.RecordError(err)
			return nil, errors.Wrap(err, "failed to load account")
		}
		status = "success"
		return &ProcessPaymentResponse{
			PaymentID: existing.ID.String(),
			Status:    string(existing.Status),
			Balance:   account.Balance,
		}, nil
	}

	account, err := uc.accountRepository.FindByCustomerID(ctx, cmd.CustomerID)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to load account")
	}
	if account == nil {
		return nil, errors.Errorf("unknown customer %s", cmd.CustomerID)
	}

	amount := models.NewMoney(cmd.Amount, cmd.Currency)
	if err := account.Debit(amount); err != nil {
		if errors.Cause(err) == domain.ErrInsufficientFunds {
			status = "declined"
		}
		span.RecordError(err)
		return nil, err
	}

	payment := domain.NewPayment(cmd.Reference, cmd.OrderID, cmd.CustomerID, amount)

	if err := uc.accountRepository.Save(ctx, account); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to save account")
	}

	if err := uc.paymentRepository.Save(ctx, payment); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to save payment")
	}

	event := events.NewEvent(payment.ID, events.PaymentProcessedTopic, PaymentProcessedData{
		PaymentID:  payment.ID,
		OrderID:    payment.OrderID,
		CustomerID: payment.CustomerID,
		Amount:     payment.Amount,
		Reference:  payment.Reference,
	})
	if err := uc.eventPublisher.Publish(ctx, event); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to publish events")
	}

	telemetry.RecordGauge(ctx, "account_balance", "Current account balance",
		float64(account.Balance.Amount)/100.0,
		attribute.String("customer_id", account.CustomerID),
	)

	status = "success"
	span.SetAttributes(attribute.String("payment_id", payment.ID.String()))

	return &ProcessPaymentResponse{
		PaymentID: payment.ID.String(),
		Status:    string(payment.Status),
		Balance:   account.Balance,
	}, nil
}

func (uc *ProcessPayment) validateCommand(cmd *ProcessPaymentCommand) error {
	if cmd.Reference == "" {
		return errors.New("reference is required")
	}

	if cmd.CustomerID == "" {
		return errors.New("customer ID is required")
	}

	if cmd.Amount <= 0 {
		return errors.New("amount must be positive")
	}

	if cmd.Currency == "" {
		return errors.New("currency is required")
	}

	return nil
}

// PaymentProcessedData is the payload of the payment processed event
type PaymentProcessedData struct {
	PaymentID  models.ID    `json:"payment_id"`
	OrderID    string       `json:"order_id"`
	CustomerID string       `json:"customer_id"`
	Amount     models.Money `json:"amount"`
	Reference  string       `json:"reference"`
}
