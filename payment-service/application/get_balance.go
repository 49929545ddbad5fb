package application

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/payment-service/domain"
	"github.com/orderflow/saga-system/shared/models"
)

// GetBalance use case retrieves a customer's balance
type GetBalance struct {
	accountRepository domain.AccountRepository
}

// NewGetBalance creates a new GetBalance use case
func NewGetBalance(accountRepository domain.AccountRepository) *GetBalance {
	return &GetBalance{accountRepository: accountRepository}
}

// Execute retrieves the account
func (uc *GetBalance) Execute(ctx context.Context, customerID string) (*domain.Account, error) {
	if customerID == "" {
		return nil, errors.New("customer ID is required")
	}

	account, err := uc.accountRepository.FindByCustomerID(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find account")
	}

	if account == nil {
		return nil, errors.New("account not found")
	}

	return account, nil
}

// GetPayment use case retrieves a payment by id or reference
type GetPayment struct {
	paymentRepository domain.PaymentRepository
}

// NewGetPayment creates a new GetPayment use case
func NewGetPayment(paymentRepository domain.PaymentRepository) *GetPayment {
	return &GetPayment{paymentRepository: paymentRepository}
}

// GetPaymentQuery represents the query to retrieve a payment
type GetPaymentQuery struct {
	PaymentID string `json:"payment_id"`
	Reference string `json:"reference"`
}

// Execute retrieves the payment
func (uc *GetPayment) Execute(ctx context.Context, query *GetPaymentQuery) (*domain.Payment, error) {
	var payment *domain.Payment
	var err error

	switch {
	case query.PaymentID != "":
		var id models.ID
		id, err = models.NewID(query.PaymentID)
		if err != nil {
			return nil, errors.Wrap(err, "invalid payment ID")
		}
		payment, err = uc.paymentRepository.FindByID(ctx, id)
	case query.Reference != "":
		payment, err = uc.paymentRepository.FindByReference(ctx, query.Reference)
	default:
		return nil, errors.New("either payment ID or reference is required")
	}

	if err != nil {
		return nil, errors.Wrap(err, "failed to find payment")
	}

	if payment == nil {
		return nil, errors.New("payment not found")
	}

	return payment, nil
}
