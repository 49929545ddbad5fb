package saga

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/saga-system/shared/models"
)

func newTestTransaction() *Transaction {
	return NewTransaction(models.GenerateUUID(), "order-fulfillment", time.Now().UTC())
}

func TestTransactionHappyPath(t *testing.T) {
	txn := newTestTransaction()
	assert.Equal(t, PhaseStarted, txn.State.Phase)
	assert.False(t, txn.State.Terminal())

	require.NoError(t, txn.runStep(0))
	assert.Equal(t, State{Phase: PhaseStepRunning, Step: 0}, txn.State)

	require.NoError(t, txn.stepSucceeded("a"))
	assert.Equal(t, State{Phase: PhaseStepSucceeded, Step: 0}, txn.State)

	require.NoError(t, txn.runStep(1))
	require.NoError(t, txn.stepSucceeded("b"))

	now := time.Now().UTC()
	require.NoError(t, txn.complete(now))
	assert.Equal(t, PhaseCompleted, txn.State.Phase)
	assert.True(t, txn.State.Terminal())
	require.NotNil(t, txn.CompletedAt)
	assert.Equal(t, now, *txn.CompletedAt)
	assert.Equal(t, []string{"a", "b"}, txn.ExecutedSteps)
}

func TestTransactionZeroStepsCompletesImmediately(t *testing.T) {
	txn := newTestTransaction()
	require.NoError(t, txn.complete(time.Now().UTC()))
	assert.Equal(t, PhaseCompleted, txn.State.Phase)
	assert.Empty(t, txn.ExecutedSteps)
}

func TestTransactionFailureAndCompensation(t *testing.T) {
	txn := newTestTransaction()
	require.NoError(t, txn.runStep(0))
	require.NoError(t, txn.stepSucceeded("a"))
	require.NoError(t, txn.runStep(1))

	require.NoError(t, txn.stepFailed("step b declined: no funds"))
	assert.Equal(t, PhaseCompensating, txn.State.Phase)
	assert.Equal(t, "step b declined: no funds", txn.ErrorMessage)

	// A failed compensation never overwrites the original error message.
	require.NoError(t, txn.stepCompensated("undo-a", errors.New("boom")))
	assert.Equal(t, []string{"undo-a"}, txn.CompensatedSteps)
	assert.Equal(t, []string{"undo-a: boom"}, txn.CompensationErrors)
	assert.Equal(t, "step b declined: no funds", txn.ErrorMessage)

	require.NoError(t, txn.compensated(time.Now().UTC()))
	assert.Equal(t, PhaseCompensated, txn.State.Phase)
	assert.True(t, txn.State.Terminal())
}

func TestTransactionInvalidTransitions(t *testing.T) {
	t.Run("run step out of order", func(t *testing.T) {
		txn := newTestTransaction()
		err := txn.runStep(1)
		var transition *TransitionError
		require.ErrorAs(t, err, &transition)
	})

	t.Run("complete while running", func(t *testing.T) {
		txn := newTestTransaction()
		require.NoError(t, txn.runStep(0))
		require.Error(t, txn.complete(time.Now().UTC()))
	})

	t.Run("succeed twice", func(t *testing.T) {
		txn := newTestTransaction()
		require.NoError(t, txn.runStep(0))
		require.NoError(t, txn.stepSucceeded("a"))
		require.Error(t, txn.stepSucceeded("a"))
	})

	t.Run("compensate outside compensating phase", func(t *testing.T) {
		txn := newTestTransaction()
		require.Error(t, txn.stepCompensated("undo-a", nil))
	})

	t.Run("terminal states never change", func(t *testing.T) {
		txn := newTestTransaction()
		require.NoError(t, txn.complete(time.Now().UTC()))
		require.Error(t, txn.runStep(0))
		require.Error(t, txn.stepFailed("late failure"))
	})

	t.Run("skipping a step index", func(t *testing.T) {
		txn := newTestTransaction()
		require.NoError(t, txn.runStep(0))
		require.NoError(t, txn.stepSucceeded("a"))
		require.Error(t, txn.runStep(2))
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "started", State{Phase: PhaseStarted}.String())
	assert.Equal(t, "step_running(2)", State{Phase: PhaseStepRunning, Step: 2}.String())
	assert.Equal(t, "completed", State{Phase: PhaseCompleted}.String())
}

func TestTransactionClone(t *testing.T) {
	txn := newTestTransaction()
	require.NoError(t, txn.runStep(0))
	require.NoError(t, txn.stepSucceeded("a"))

	clone := txn.Clone()
	clone.ExecutedSteps[0] = "mutated"
	clone.State.Phase = PhaseCompleted

	assert.Equal(t, []string{"a"}, txn.ExecutedSteps)
	assert.Equal(t, PhaseStepSucceeded, txn.State.Phase)
}
