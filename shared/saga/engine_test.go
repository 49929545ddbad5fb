package saga

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/saga-system/shared/models"
)

var (
	testInstant = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	testTxnID   = models.ID("550e8400-e29b-41d4-a716-446655440000")
)

func newTestEngine(store TransactionStore, opts ...EngineOption) *Engine {
	base := []EngineOption{
		WithClock(FixedClock{Instant: testInstant}),
		WithIDGenerator(&SequenceIDGenerator{IDs: []models.ID{testTxnID}}),
		WithLogger(log.New(io.Discard, "", 0)),
	}
	return NewEngine(store, append(base, opts...)...)
}

// recordingStep tracks forward and compensating invocations in a shared log.
func recordingStep(name string, calls *[]string, out map[string]interface{}, execErr error) StepSpec {
	return StepSpec{
		Name:             name,
		CompensationName: "undo-" + name,
		Execute: func(ctx context.Context, sc *Context) (map[string]interface{}, error) {
			*calls = append(*calls, name)
			if execErr != nil {
				return nil, execErr
			}
			return out, nil
		},
		Compensate: func(ctx context.Context, sc *Context) error {
			*calls = append(*calls, "undo-"+name)
			return nil
		},
	}
}

func TestEngineExecuteCompletesAllSteps(t *testing.T) {
	store := NewMemoryTransactionStore()
	engine := newTestEngine(store)

	var calls []string
	def, err := NewDefinition("flow",
		recordingStep("a", &calls, map[string]interface{}{"order_id": "ord-1"}, nil),
		StepSpec{
			Name: "b",
			Execute: func(ctx context.Context, sc *Context) (map[string]interface{}, error) {
				calls = append(calls, "b")
				// Later steps read earlier outputs through the context.
				assert.Equal(t, "ord-1", sc.String("order_id"))
				return nil, nil
			},
		},
	)
	require.NoError(t, err)

	txn, err := engine.Execute(context.Background(), def, map[string]interface{}{"customer_id": "CUST001"})
	require.NoError(t, err)

	assert.Equal(t, testTxnID, txn.ID)
	assert.Equal(t, PhaseCompleted, txn.State.Phase)
	assert.Equal(t, []string{"a", "b"}, txn.ExecutedSteps)
	assert.Empty(t, txn.CompensatedSteps)
	assert.Empty(t, txn.ErrorMessage)
	require.NotNil(t, txn.CompletedAt)
	assert.Equal(t, testInstant, *txn.CompletedAt)
	assert.Equal(t, []string{"a", "b"}, calls)

	stored, err := store.Get(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, stored.State.Phase)
}

func TestEngineExecuteZeroSteps(t *testing.T) {
	engine := newTestEngine(NewMemoryTransactionStore())

	def, err := NewDefinition("empty-flow")
	require.NoError(t, err)

	txn, err := engine.Execute(context.Background(), def, nil)
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, txn.State.Phase)
	assert.Empty(t, txn.ExecutedSteps)
}

func TestEngineExecuteNilDefinition(t *testing.T) {
	engine := newTestEngine(NewMemoryTransactionStore())
	_, err := engine.Execute(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestEngineExecuteCompensatesInReverseOrder(t *testing.T) {
	engine := newTestEngine(NewMemoryTransactionStore())

	var calls []string
	def, err := NewDefinition("flow",
		recordingStep("a", &calls, nil, nil),
		recordingStep("b", &calls, nil, nil),
		recordingStep("c", &calls, nil, &DeclinedError{Step: "c", Reason: "insufficient funds"}),
		recordingStep("d", &calls, nil, nil),
	)
	require.NoError(t, err)

	txn, err := engine.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Equal(t, PhaseCompensated, txn.State.Phase)
	assert.Equal(t, []string{"a", "b"}, txn.ExecutedSteps)
	assert.Equal(t, []string{"undo-b", "undo-a"}, txn.CompensatedSteps)
	assert.Empty(t, txn.CompensationErrors)
	assert.Equal(t, "step c declined: insufficient funds", txn.ErrorMessage)
	require.NotNil(t, txn.CompletedAt)

	// The failing step never runs its compensation and d never runs at all.
	assert.Equal(t, []string{"a", "b", "c", "undo-b", "undo-a"}, calls)
}

func TestEngineExecuteFailureAtFirstStep(t *testing.T) {
	engine := newTestEngine(NewMemoryTransactionStore())

	var calls []string
	def, err := NewDefinition("flow",
		recordingStep("a", &calls, nil, errors.New("connection refused")),
		recordingStep("b", &calls, nil, nil),
	)
	require.NoError(t, err)

	txn, err := engine.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Equal(t, PhaseCompensated, txn.State.Phase)
	assert.Empty(t, txn.ExecutedSteps)
	assert.Empty(t, txn.CompensatedSteps)
	assert.Equal(t, "step a unreachable: connection refused", txn.ErrorMessage)
	assert.Equal(t, []string{"a"}, calls)
}

func TestEngineExecuteCompensationIsBestEffort(t *testing.T) {
	engine := newTestEngine(NewMemoryTransactionStore())

	var calls []string
	failing := recordingStep("b", &calls, nil, nil)
	failing.Compensate = func(ctx context.Context, sc *Context) error {
		calls = append(calls, "undo-b")
		return errors.New("release failed")
	}

	def, err := NewDefinition("flow",
		recordingStep("a", &calls, nil, nil),
		failing,
		recordingStep("c", &calls, nil, &DeclinedError{Step: "c", Reason: "out of stock"}),
	)
	require.NoError(t, err)

	txn, err := engine.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	// The failed compensation is recorded and the remaining ones still run.
	assert.Equal(t, PhaseCompensated, txn.State.Phase)
	assert.Equal(t, []string{"undo-b", "undo-a"}, txn.CompensatedSteps)
	assert.Equal(t, []string{"undo-b: release failed"}, txn.CompensationErrors)
	assert.Equal(t, "step c declined: out of stock", txn.ErrorMessage)
	assert.Equal(t, []string{"a", "b", "c", "undo-b", "undo-a"}, calls)
}

func TestEngineExecuteStepWithoutCompensationIsStillRecorded(t *testing.T) {
	engine := newTestEngine(NewMemoryTransactionStore())

	def, err := NewDefinition("flow",
		StepSpec{
			Name: "a",
			Execute: func(ctx context.Context, sc *Context) (map[string]interface{}, error) {
				return nil, nil
			},
		},
		StepSpec{
			Name: "b",
			Execute: func(ctx context.Context, sc *Context) (map[string]interface{}, error) {
				return nil, errors.New("down")
			},
		},
	)
	require.NoError(t, err)

	txn, err := engine.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Equal(t, PhaseCompensated, txn.State.Phase)
	assert.Equal(t, []string{"a"}, txn.CompensatedSteps)
	assert.Empty(t, txn.CompensationErrors)
}

func TestEngineExecuteStepTimeout(t *testing.T) {
	engine := newTestEngine(NewMemoryTransactionStore(), WithStepTimeout(20*time.Millisecond))

	def, err := NewDefinition("flow",
		StepSpec{
			Name: "slow",
			Execute: func(ctx context.Context, sc *Context) (map[string]interface{}, error) {
				select {
				case <-time.After(time.Second):
					return nil, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		},
	)
	require.NoError(t, err)

	txn, err := engine.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Equal(t, PhaseCompensated, txn.State.Phase)
	assert.Contains(t, txn.ErrorMessage, "step slow unreachable")
}

func TestEngineExecuteConcurrentTransactions(t *testing.T) {
	store := NewMemoryTransactionStore()
	engine := NewEngine(store, WithLogger(log.New(io.Discard, "", 0)))

	passing, err := NewDefinition("passing-flow",
		StepSpec{
			Name: "a",
			Execute: func(ctx context.Context, sc *Context) (map[string]interface{}, error) {
				return nil, nil
			},
		},
	)
	require.NoError(t, err)

	failing, err := NewDefinition("failing-flow",
		StepSpec{
			Name: "a",
			Execute: func(ctx context.Context, sc *Context) (map[string]interface{}, error) {
				return nil, nil
			},
			Compensate: func(ctx context.Context, sc *Context) error { return nil },
		},
		StepSpec{
			Name: "b",
			Execute: func(ctx context.Context, sc *Context) (map[string]interface{}, error) {
				return nil, &DeclinedError{Step: "b", Reason: "no"}
			},
		},
	)
	require.NoError(t, err)

	// Transactions must not interfere: each lands in the same terminal
	// state it would reach running alone.
	const perDefinition = 20
	var wg sync.WaitGroup
	for i := 0; i < perDefinition; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			txn, err := engine.Execute(context.Background(), passing, nil)
			assert.NoError(t, err)
			assert.Equal(t, PhaseCompleted, txn.State.Phase)
		}()
		go func() {
			defer wg.Done()
			txn, err := engine.Execute(context.Background(), failing, nil)
			assert.NoError(t, err)
			assert.Equal(t, PhaseCompensated, txn.State.Phase)
			assert.Equal(t, []string{"a"}, txn.CompensatedSteps)
		}()
	}
	wg.Wait()

	completed, err := store.List(context.Background(), Filter{Phase: PhaseCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, perDefinition)

	compensated, err := store.List(context.Background(), Filter{Phase: PhaseCompensated})
	require.NoError(t, err)
	assert.Len(t, compensated, perDefinition)
}

func TestEngineExecuteCompensationRunsAfterCancellation(t *testing.T) {
	engine := newTestEngine(NewMemoryTransactionStore(), WithStepTimeout(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())

	compensated := false
	def, err := NewDefinition("flow",
		StepSpec{
			Name: "a",
			Execute: func(ctx context.Context, sc *Context) (map[string]interface{}, error) {
				return nil, nil
			},
			Compensate: func(ctx context.Context, sc *Context) error {
				// The triggering cancellation must not leak into
				// compensation calls.
				assert.NoError(t, ctx.Err())
				compensated = true
				return nil
			},
		},
		StepSpec{
			Name: "b",
			Execute: func(ctx context.Context, sc *Context) (map[string]interface{}, error) {
				cancel()
				return nil, ctx.Err()
			},
		},
	)
	require.NoError(t, err)

	txn, err := engine.Execute(ctx, def, nil)
	require.NoError(t, err)

	assert.True(t, compensated)
	assert.Equal(t, PhaseCompensated, txn.State.Phase)
	assert.Equal(t, []string{"a"}, txn.CompensatedSteps)
}
