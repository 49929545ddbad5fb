package saga

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/saga-system/shared/models"
)

// fakeParticipant scripts the answers of a remote service.
type fakeParticipant struct {
	executeResult    Result
	executeErr       error
	compensateResult Result
	compensateErr    error

	executeCmds    []Command
	compensateCmds []Command
}

func (p *fakeParticipant) Execute(ctx context.Context, cmd Command) (Result, error) {
	p.executeCmds = append(p.executeCmds, cmd)
	return p.executeResult, p.executeErr
}

func (p *fakeParticipant) Compensate(ctx context.Context, cmd Command) (Result, error) {
	p.compensateCmds = append(p.compensateCmds, cmd)
	return p.compensateResult, p.compensateErr
}

func TestParticipantStepExecute(t *testing.T) {
	id := models.GenerateUUID()

	t.Run("success passes payload and returns data", func(t *testing.T) {
		p := &fakeParticipant{
			executeResult: Result{
				Status: ResultSuccess,
				Data:   map[string]interface{}{"order_id": "ord-1"},
			},
		}

		spec := ParticipantStep("CreateOrder", "CancelOrder", p,
			func(sc *Context) map[string]interface{} {
				return map[string]interface{}{"customer_id": sc.String("customer_id")}
			}, nil)

		sc := NewContext(id, map[string]interface{}{"customer_id": "CUST001"})
		out, err := spec.Execute(context.Background(), sc)
		require.NoError(t, err)
		assert.Equal(t, "ord-1", out["order_id"])

		require.Len(t, p.executeCmds, 1)
		assert.Equal(t, id.String(), p.executeCmds[0].TransactionID)
		assert.Equal(t, "CUST001", p.executeCmds[0].Payload["customer_id"])
	})

	t.Run("declined result becomes a DeclinedError", func(t *testing.T) {
		p := &fakeParticipant{
			executeResult: Result{Status: ResultDeclined, Reason: "insufficient funds"},
		}
		spec := ParticipantStep("ProcessPayment", "", p, nil, nil)

		_, err := spec.Execute(context.Background(), NewContext(id, nil))
		declined, ok := AsDeclined(err)
		require.True(t, ok)
		assert.Equal(t, "ProcessPayment", declined.Step)
		assert.Equal(t, "insufficient funds", declined.Reason)
	})

	t.Run("transport error passes through untouched", func(t *testing.T) {
		p := &fakeParticipant{executeErr: errors.New("connection refused")}
		spec := ParticipantStep("CreateOrder", "", p, nil, nil)

		_, err := spec.Execute(context.Background(), NewContext(id, nil))
		require.Error(t, err)
		_, ok := AsDeclined(err)
		assert.False(t, ok)
	})
}

func TestParticipantStepCompensate(t *testing.T) {
	id := models.GenerateUUID()

	t.Run("nil payload builder means no compensation", func(t *testing.T) {
		spec := ParticipantStep("ConfirmOrder", "", &fakeParticipant{}, nil, nil)
		assert.Nil(t, spec.Compensate)
	})

	t.Run("compensation sends its own payload", func(t *testing.T) {
		p := &fakeParticipant{compensateResult: Result{Status: ResultSuccess}}
		spec := ParticipantStep("CreateOrder", "CancelOrder", p, nil,
			func(sc *Context) map[string]interface{} {
				return map[string]interface{}{"order_id": sc.String("order_id")}
			})

		sc := NewContext(id, nil)
		sc.setOutput("CreateOrder", map[string]interface{}{"order_id": "ord-1"})

		require.NoError(t, spec.Compensate(context.Background(), sc))
		require.Len(t, p.compensateCmds, 1)
		assert.Equal(t, "ord-1", p.compensateCmds[0].Payload["order_id"])
	})

	t.Run("declined compensation is a plain failure", func(t *testing.T) {
		p := &fakeParticipant{compensateResult: Result{Status: ResultDeclined, Reason: "locked"}}
		spec := ParticipantStep("CreateOrder", "CancelOrder", p, nil,
			func(sc *Context) map[string]interface{} { return nil })

		err := spec.Compensate(context.Background(), NewContext(id, nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "compensation declined: locked")
	})
}

func TestDeclinedErrorHelpers(t *testing.T) {
	base := &DeclinedError{Step: "a", Reason: "no stock"}

	declined, ok := AsDeclined(errors.Wrap(base, "wrapped"))
	require.True(t, ok)
	assert.Equal(t, "no stock", declined.Reason)

	_, ok = AsDeclined(errors.New("plain"))
	assert.False(t, ok)

	declined, ok = AsDeclined(Declined("out of stock"))
	require.True(t, ok)
	assert.Equal(t, "out of stock", declined.Reason)
}
