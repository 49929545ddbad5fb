package saga

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/saga-system/shared/models"
)

func TestMemoryTransactionStoreCreateAndGet(t *testing.T) {
	store := NewMemoryTransactionStore()
	ctx := context.Background()

	txn := newTestTransaction()
	require.NoError(t, store.Create(ctx, txn))

	got, err := store.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)
	assert.Equal(t, PhaseStarted, got.State.Phase)

	// The stored record is isolated from both the original and the copy.
	txn.ExecutedSteps = append(txn.ExecutedSteps, "outside")
	got.ExecutedSteps = append(got.ExecutedSteps, "outside")

	again, err := store.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Empty(t, again.ExecutedSteps)
}

func TestMemoryTransactionStoreCreateDuplicate(t *testing.T) {
	store := NewMemoryTransactionStore()
	ctx := context.Background()

	txn := newTestTransaction()
	require.NoError(t, store.Create(ctx, txn))
	assert.Equal(t, ErrAlreadyExists, store.Create(ctx, txn))
}

func TestMemoryTransactionStoreGetMissing(t *testing.T) {
	store := NewMemoryTransactionStore()
	_, err := store.Get(context.Background(), models.GenerateUUID())
	assert.Equal(t, ErrNotFound, err)
}

func TestMemoryTransactionStoreUpdate(t *testing.T) {
	store := NewMemoryTransactionStore()
	ctx := context.Background()

	txn := newTestTransaction()
	require.NoError(t, store.Create(ctx, txn))

	updated, err := store.Update(ctx, txn.ID, func(t *Transaction) error {
		return t.runStep(0)
	})
	require.NoError(t, err)
	assert.Equal(t, State{Phase: PhaseStepRunning, Step: 0}, updated.State)

	t.Run("failed mutator leaves record untouched", func(t *testing.T) {
		_, err := store.Update(ctx, txn.ID, func(txn *Transaction) error {
			txn.ExecutedSteps = append(txn.ExecutedSteps, "partial")
			return errors.New("mutator failed")
		})
		require.Error(t, err)

		got, err := store.Get(ctx, txn.ID)
		require.NoError(t, err)
		assert.Empty(t, got.ExecutedSteps)
		assert.Equal(t, State{Phase: PhaseStepRunning, Step: 0}, got.State)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := store.Update(ctx, models.GenerateUUID(), func(*Transaction) error { return nil })
		assert.Equal(t, ErrNotFound, err)
	})
}

func TestMemoryTransactionStoreConcurrentUpdates(t *testing.T) {
	store := NewMemoryTransactionStore()
	ctx := context.Background()

	txn := newTestTransaction()
	require.NoError(t, store.Create(ctx, txn))

	const writers = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, txn.ID, func(t *Transaction) error {
				t.CompensatedSteps = append(t.CompensatedSteps, "tick")
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, got.CompensatedSteps, writers)
}

func TestMemoryTransactionStoreList(t *testing.T) {
	store := NewMemoryTransactionStore()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := NewTransaction(models.GenerateUUID(), "order-fulfillment", base)
	second := NewTransaction(models.GenerateUUID(), "order-fulfillment", base.Add(time.Second))
	other := NewTransaction(models.GenerateUUID(), "other-flow", base.Add(2*time.Second))

	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))
	require.NoError(t, store.Create(ctx, other))

	_, err := store.Update(ctx, second.ID, func(t *Transaction) error {
		return t.complete(base.Add(time.Minute))
	})
	require.NoError(t, err)

	t.Run("no filter returns all ordered by start time", func(t *testing.T) {
		all, err := store.List(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, first.ID, all[0].ID)
		assert.Equal(t, second.ID, all[1].ID)
		assert.Equal(t, other.ID, all[2].ID)
	})

	t.Run("filter by phase", func(t *testing.T) {
		completed, err := store.List(ctx, Filter{Phase: PhaseCompleted})
		require.NoError(t, err)
		require.Len(t, completed, 1)
		assert.Equal(t, second.ID, completed[0].ID)
	})

	t.Run("filter by definition", func(t *testing.T) {
		flows, err := store.List(ctx, Filter{DefinitionID: "other-flow"})
		require.NoError(t, err)
		require.Len(t, flows, 1)
		assert.Equal(t, other.ID, flows[0].ID)
	})

	t.Run("combined filter", func(t *testing.T) {
		none, err := store.List(ctx, Filter{Phase: PhaseCompleted, DefinitionID: "other-flow"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
