package application

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/saga-system/payment-service/domain"
	"github.com/orderflow/saga-system/payment-service/infrastructure"
	"github.com/orderflow/saga-system/shared/events"
	"github.com/orderflow/saga-system/shared/models"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *capturingPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evts...)
	return nil
}

func newPaymentFixture(t *testing.T) (*ProcessPayment, *RefundPayment, *infrastructure.MemoryAccountRepository) {
	t.Helper()

	accounts := infrastructure.NewMemoryAccountRepository()
	accounts.Seed(
		domain.NewAccount("CUST001", models.NewMoney(10000, "USD")),
		domain.NewAccount("CUST002", models.NewMoney(50, "USD")),
	)
	payments := infrastructure.NewMemoryPaymentRepository()
	publisher := &capturingPublisher{}

	return NewProcessPayment(accounts, payments, publisher),
		NewRefundPayment(accounts, payments, publisher),
		accounts
}

func balanceOf(t *testing.T, accounts *infrastructure.MemoryAccountRepository, customerID string) int64 {
	t.Helper()
	account, err := accounts.FindByCustomerID(context.Background(), customerID)
	require.NoError(t, err)
	require.NotNil(t, account)
	return account.Balance.Amount
}

func TestProcessPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("charges the account", func(t *testing.T) {
		process, _, accounts := newPaymentFixture(t)

		response, err := process.Execute(ctx, &ProcessPaymentCommand{
			Reference:  models.GenerateUUID().String(),
			OrderID:    "ord-1",
			CustomerID: "CUST001",
			Amount:     2500,
			Currency:   "USD",
		})
		require.NoError(t, err)
		assert.Equal(t, string(domain.PaymentStatusProcessed), response.Status)
		assert.NotEmpty(t, response.PaymentID)
		assert.Equal(t, int64(7500), response.Balance.Amount)
		assert.Equal(t, int64(7500), balanceOf(t, accounts, "CUST001"))
	})

	t.Run("declines when the balance is too small", func(t *testing.T) {
		process, _, accounts := newPaymentFixture(t)

		_, err := process.Execute(ctx, &ProcessPaymentCommand{
			Reference:  models.GenerateUUID().String(),
			CustomerID: "CUST002",
			Amount:     2500,
			Currency:   "USD",
		})
		require.Error(t, err)
		assert.Equal(t, domain.ErrInsufficientFunds, errors.Cause(err))
		assert.Equal(t, int64(50), balanceOf(t, accounts, "CUST002"))
	})

	t.Run("retry with the same reference charges once", func(t *testing.T) {
		process, _, accounts := newPaymentFixture(t)
		reference := models.GenerateUUID().String()
		cmd := &ProcessPaymentCommand{
			Reference:  reference,
			CustomerID: "CUST001",
			Amount:     2500,
			Currency:   "USD",
		}

		first, err := process.Execute(ctx, cmd)
		require.NoError(t, err)
		second, err := process.Execute(ctx, cmd)
		require.NoError(t, err)

		assert.Equal(t, first.PaymentID, second.PaymentID)
		assert.Equal(t, int64(7500), balanceOf(t, accounts, "CUST001"))
	})

	t.Run("unknown customer is not a decline", func(t *testing.T) {
		process, _, _ := newPaymentFixture(t)

		_, err := process.Execute(ctx, &ProcessPaymentCommand{
			Reference:  models.GenerateUUID().String(),
			CustomerID: "NOBODY",
			Amount:     100,
			Currency:   "USD",
		})
		require.Error(t, err)
		assert.NotEqual(t, domain.ErrInsufficientFunds, errors.Cause(err))
	})
}

func TestRefundPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("refund restores the balance", func(t *testing.T) {
		process, refund, accounts := newPaymentFixture(t)
		reference := models.GenerateUUID().String()

		charged, err := process.Execute(ctx, &ProcessPaymentCommand{
			Reference:  reference,
			CustomerID: "CUST001",
			Amount:     2500,
			Currency:   "USD",
		})
		require.NoError(t, err)

		response, err := refund.Execute(ctx, &RefundPaymentCommand{PaymentID: charged.PaymentID})
		require.NoError(t, err)
		assert.Equal(t, string(domain.PaymentStatusRefunded), response.Status)
		assert.Equal(t, int64(10000), balanceOf(t, accounts, "CUST001"))
	})

	t.Run("refunding twice credits once", func(t *testing.T) {
		process, refund, accounts := newPaymentFixture(t)
		reference := models.GenerateUUID().String()

		_, err := process.Execute(ctx, &ProcessPaymentCommand{
			Reference:  reference,
			CustomerID: "CUST001",
			Amount:     2500,
			Currency:   "USD",
		})
		require.NoError(t, err)

		_, err = refund.Execute(ctx, &RefundPaymentCommand{Reference: reference})
		require.NoError(t, err)
		_, err = refund.Execute(ctx, &RefundPaymentCommand{Reference: reference})
		require.NoError(t, err)

		assert.Equal(t, int64(10000), balanceOf(t, accounts, "CUST001"))
	})

	t.Run("refunding a charge that never happened succeeds", func(t *testing.T) {
		_, refund, accounts := newPaymentFixture(t)

		response, err := refund.Execute(ctx, &RefundPaymentCommand{
			Reference: models.GenerateUUID().String(),
		})
		require.NoError(t, err)
		assert.Equal(t, string(domain.PaymentStatusRefunded), response.Status)
		assert.Equal(t, int64(10000), balanceOf(t, accounts, "CUST001"))
	})
}
