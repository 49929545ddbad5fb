package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/saga-system/payment-service/domain"
	"github.com/orderflow/saga-system/shared/events"
	"github.com/orderflow/saga-system/shared/models"
	"github.com/orderflow/saga-system/shared/telemetry"
)

// RefundPaymentCommand represents the command to refund a payment
type RefundPaymentCommand struct {
	PaymentID string `json:"payment_id,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// RefundPaymentResponse represents the response after refunding
type RefundPaymentResponse struct {
	PaymentID string `json:"payment_id,omitempty"`
	Status    string `json:"status"`
}

// RefundPayment use case returns a charge to the customer account. It is
// the compensating action of a payment: refunding a payment that does not
// exist or was already refunded succeeds, there is nothing left to undo.
type RefundPayment struct {
	accountRepository domain.AccountRepository
	paymentRepository domain.PaymentRepository
	eventPublisher    events.Publisher
}

// NewRefundPayment creates a new RefundPayment use case
func NewRefundPayment(
	accountRepository domain.AccountRepository,
	paymentRepository domain.PaymentRepository,
	eventPublisher events.Publisher,
) *RefundPayment {
	return &RefundPayment{
		accountRepository: accountRepository,
		paymentRepository: paymentRepository,
		eventPublisher:    eventPublisher,
	}
}

// Execute refunds the payment
func (uc *RefundPayment) Execute(ctx context.Context, cmd *RefundPaymentCommand) (*RefundPaymentResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "refund_payment",
		trace.WithAttributes(
			attribute.String("payment_id", cmd.PaymentID),
			attribute.String("reference", cmd.Reference),
		),
	)
	defer span.End()

	payment, err := uc.findPayment(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if payment == nil || payment.Status == domain.PaymentStatusRefunded {
		return &RefundPaymentResponse{
			PaymentID: cmd.PaymentID,
			Status:    string(domain.PaymentStatusRefunded),
		}, nil
	}

	account, err := uc.accountRepository.FindByCustomerID(ctx, payment.CustomerID)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to load account")
	}
	if account == nil {
		return nil, errors.Errorf("unknown customer %s", payment.CustomerID)
	}

	if err := account.Credit(payment.Amount); err != nil {
		span.RecordError(err)
		return nil, err
	}
	payment.Refund()

	if err := uc.accountRepository.Save(ctx, account); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to save account")
	}

	if err := uc.paymentRepository.Save(ctx, payment); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to save payment")
	}

	event := events.NewEvent(payment.ID, events.PaymentRefundedTopic, PaymentRefundedData{
		PaymentID:  payment.ID,
		CustomerID: payment.CustomerID,
		Amount:     payment.Amount,
		Reference:  payment.Reference,
	})
	if err := uc.eventPublisher.Publish(ctx, event); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to publish events")
	}

	telemetry.RecordCounter(ctx, "payment_operations_total", "Total payment operations", 1,
		attribute.String("operation", "refund_payment"),
		attribute.String("status", "success"),
	)

	return &RefundPaymentResponse{
		PaymentID: payment.ID.String(),
		Status:    string(payment.Status),
	}, nil
}

func (uc *RefundPayment) findPayment(ctx context.Context, cmd *RefundPaymentCommand) (*domain.Payment, error) {
	switch {
	case cmd.PaymentID != "":
		id, err := models.NewID(cmd.PaymentID)
		if err != nil {
			return nil, errors.Wrap(err, "invalid payment ID")
		}
		payment, err := uc.paymentRepository.FindByID(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "failed to find payment")
		}
		return payment, nil
	case cmd.Reference != "":
		payment, err := uc.paymentRepository.FindByReference(ctx, cmd.Reference)
		if err != nil {
			return nil, errors.Wrap(err, "failed to find payment")
		}
		return payment, nil
	default:
		return nil, errors.New("either payment ID or reference is required")
	}
}

// PaymentRefundedData is the payload of the payment refunded event
type PaymentRefundedData struct {
	PaymentID  models.ID    `json:"payment_id"`
	CustomerID string       `json:"customer_id"`
	Amount     models.Money `json:"amount"`
	Reference  string       `json:"reference"`
}
