package domain

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/shared/events"
	"github.com/orderflow/saga-system/shared/models"
)

// ErrInsufficientFunds is the business refusal of a charge
var ErrInsufficientFunds = errors.New("insufficient funds")

// Account aggregate root: a customer's balance ledger
type Account struct {
	CustomerID string       `json:"customer_id"`
	Balance    models.Money `json:"balance"`
	Timestamps models.Timestamps
	Version    models.Version

	events []*events.Event
}

// NewAccount creates an account with an opening balance
func NewAccount(customerID string, balance models.Money) *Account {
	return &Account{
		CustomerID: customerID,
		Balance:    balance,
		Timestamps: models.NewTimestamps(),
		Version:    models.NewVersion(),
	}
}

// Debit charges the account. A balance too small for the amount is a
// refusal, not an infrastructure failure.
func (a *Account) Debit(amount models.Money) error {
	if !amount.IsPositive() {
		return errors.New("debit amount must be positive")
	}
	if amount.Currency != a.Balance.Currency {
		return errors.New("currency mismatch")
	}

	if a.Balance.Amount < amount.Amount {
		return ErrInsufficientFunds
	}

	balance, err := a.Balance.Subtract(amount)
	if err != nil {
		return err
	}
	a.Balance = balance
	a.touch()

	return nil
}

// Credit returns funds to the account
func (a *Account) Credit(amount models.Money) error {
	if !amount.IsPositive() {
		return errors.New("credit amount must be positive")
	}

	balance, err := a.Balance.Add(amount)
	if err != nil {
		return err
	}
	a.Balance = balance
	a.touch()

	return nil
}

func (a *Account) touch() {
	a.Timestamps = a.Timestamps.Update()
	a.Version = a.Version.Update()
}

// Events returns domain events
func (a *Account) Events() []*events.Event {
	return a.events
}

// ClearEvents clears domain events
func (a *Account) ClearEvents() {
	a.events = make([]*events.Event, 0)
}

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusProcessed PaymentStatus = "processed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment records one processed charge. Reference carries the saga
// transaction id so a retried charge finds the payment instead of charging
// twice.
type Payment struct {
	ID         models.ID     `json:"id"`
	Reference  string        `json:"reference"`
	OrderID    string        `json:"order_id"`
	CustomerID string        `json:"customer_id"`
	Amount     models.Money  `json:"amount"`
	Status     PaymentStatus `json:"status"`
	Timestamps models.Timestamps
}

// NewPayment records a processed charge
func NewPayment(reference, orderID, customerID string, amount models.Money) *Payment {
	return &Payment{
		ID:         models.GenerateUUID(),
		Reference:  reference,
		OrderID:    orderID,
		CustomerID: customerID,
		Amount:     amount,
		Status:     PaymentStatusProcessed,
		Timestamps: models.NewTimestamps(),
	}
}

// Refund marks the payment refunded. Refunding twice is a no-op.
func (p *Payment) Refund() {
	if p.Status == PaymentStatusRefunded {
		return
	}
	p.Status = PaymentStatusRefunded
	p.Timestamps = p.Timestamps.Update()
}

// AccountRepository persists customer accounts
type AccountRepository interface {
	Save(ctx context.Context, account *Account) error
	FindByCustomerID(ctx context.Context, customerID string) (*Account, error)
	FindAll(ctx context.Context) ([]*Account, error)
}

// PaymentRepository persists payments
type PaymentRepository interface {
	Save(ctx context.Context, payment *Payment) error
	FindByID(ctx context.Context, id models.ID) (*Payment, error)
	FindByReference(ctx context.Context, reference string) (*Payment, error)
}
