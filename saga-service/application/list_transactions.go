package application

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/shared/saga"
)

// ListTransactionsQuery filters the transaction listing. Empty fields match
// everything.
type ListTransactionsQuery struct {
	Phase        string `json:"phase"`
	DefinitionID string `json:"definition_id"`
}

// ListTransactions use case lists saga transaction records
type ListTransactions struct {
	store saga.TransactionStore
}

// NewListTransactions creates a new ListTransactions use case
func NewListTransactions(store saga.TransactionStore) *ListTransactions {
	return &ListTransactions{store: store}
}

// Execute lists transactions matching the query
func (uc *ListTransactions) Execute(ctx context.Context, query *ListTransactionsQuery) ([]*saga.Transaction, error) {
	filter := saga.Filter{
		Phase:        saga.Phase(query.Phase),
		DefinitionID: query.DefinitionID,
	}

	transactions, err := uc.store.List(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list transactions")
	}

	return transactions, nil
}
