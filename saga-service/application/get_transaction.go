package application

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/shared/models"
	"github.com/orderflow/saga-system/shared/saga"
)

// GetTransaction use case retrieves one saga transaction record
type GetTransaction struct {
	store saga.TransactionStore
}

// NewGetTransaction creates a new GetTransaction use case
func NewGetTransaction(store saga.TransactionStore) *GetTransaction {
	return &GetTransaction{store: store}
}

// Execute retrieves the transaction
func (uc *GetTransaction) Execute(ctx context.Context, transactionID string) (*saga.Transaction, error) {
	id, err := models.NewID(transactionID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid transaction ID")
	}

	txn, err := uc.store.Get(ctx, id)
	if err != nil {
		if errors.Cause(err) == saga.ErrNotFound {
			return nil, errors.New("transaction not found")
		}
		return nil, errors.Wrap(err, "failed to find transaction")
	}

	return txn, nil
}
