package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/shared/models"
	"github.com/orderflow/saga-system/shared/saga"
)

// PostgresTransactionStore implements the saga transaction store on
// PostgreSQL. Update takes a row lock so each transaction id gets its own
// critical section across processes, matching the in-memory store's
// per-entry mutex.
type PostgresTransactionStore struct {
	db *sqlx.DB
}

var _ saga.TransactionStore = (*PostgresTransactionStore)(nil)

// NewPostgresTransactionStore creates a new PostgresTransactionStore
func NewPostgresTransactionStore(db *sqlx.DB) *PostgresTransactionStore {
	return &PostgresTransactionStore{db: db}
}

type postgresTransaction struct {
	ID                 string         `db:"id"`
	DefinitionID       string         `db:"definition_id"`
	Phase              string         `db:"phase"`
	Step               int            `db:"step"`
	ExecutedSteps      []byte         `db:"executed_steps"`
	CompensatedSteps   []byte         `db:"compensated_steps"`
	CompensationErrors []byte         `db:"compensation_errors"`
	ErrorMessage       sql.NullString `db:"error_message"`
	StartedAt          time.Time      `db:"started_at"`
	CompletedAt        *time.Time     `db:"completed_at"`
}

const uniqueViolation = "23505"

// Create stores a new record. The id must not be taken.
func (s *PostgresTransactionStore) Create(ctx context.Context, txn *saga.Transaction) error {
	record, err := s.toPostgres(txn)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO saga_transactions (
			id, definition_id, phase, step, executed_steps, compensated_steps,
			compensation_errors, error_message, started_at, completed_at
		) VALUES (
			:id, :definition_id, :phase, :step, :executed_steps, :compensated_steps,
			:compensation_errors, :error_message, :started_at, :completed_at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, record); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return saga.ErrAlreadyExists
		}
		return errors.Wrap(err, "failed to create transaction")
	}
	return nil
}

// Get returns the record for id.
func (s *PostgresTransactionStore) Get(ctx context.Context, id models.ID) (*saga.Transaction, error) {
	var record postgresTransaction
	err := s.db.GetContext(ctx, &record, "SELECT * FROM saga_transactions WHERE id = $1", id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, saga.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find transaction")
	}

	return s.toDomain(&record)
}

// List returns records matching the filter, ordered by start time then id.
func (s *PostgresTransactionStore) List(ctx context.Context, filter saga.Filter) ([]*saga.Transaction, error) {
	query := "SELECT * FROM saga_transactions"
	var conditions []string
	var args []interface{}

	if filter.Phase != "" {
		args = append(args, string(filter.Phase))
		conditions = append(conditions, "phase = $1")
	}
	if filter.DefinitionID != "" {
		args = append(args, filter.DefinitionID)
		if len(args) == 1 {
			conditions = append(conditions, "definition_id = $1")
		} else {
			conditions = append(conditions, "definition_id = $2")
		}
	}

	if len(conditions) > 0 {
		query += " WHERE " + conditions[0]
		if len(conditions) > 1 {
			query += " AND " + conditions[1]
		}
	}
	query += " ORDER BY started_at ASC, id ASC"

	var records []postgresTransaction
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list transactions")
	}

	transactions := make([]*saga.Transaction, len(records))
	for i := range records {
		txn, err := s.toDomain(&records[i])
		if err != nil {
			return nil, err
		}
		transactions[i] = txn
	}
	return transactions, nil
}

// Update applies mutate under a row lock. A failed mutator leaves the
// stored record untouched.
func (s *PostgresTransactionStore) Update(ctx context.Context, id models.ID, mutate saga.Mutator) (*saga.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var record postgresTransaction
	err = tx.GetContext(ctx, &record, "SELECT * FROM saga_transactions WHERE id = $1 FOR UPDATE", id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, saga.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to lock transaction")
	}

	txn, err := s.toDomain(&record)
	if err != nil {
		return nil, err
	}

	if err := mutate(txn); err != nil {
		return nil, err
	}

	updated, err := s.toPostgres(txn)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE saga_transactions
		SET phase = :phase,
			step = :step,
			executed_steps = :executed_steps,
			compensated_steps = :compensated_steps,
			compensation_errors = :compensation_errors,
			error_message = :error_message,
			completed_at = :completed_at
		WHERE id = :id`

	if _, err := tx.NamedExecContext(ctx, query, updated); err != nil {
		return nil, errors.Wrap(err, "failed to update transaction")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit transaction")
	}

	return txn.Clone(), nil
}

func (s *PostgresTransactionStore) toPostgres(txn *saga.Transaction) (*postgresTransaction, error) {
	executed, err := json.Marshal(txn.ExecutedSteps)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode executed steps")
	}
	compensated, err := json.Marshal(txn.CompensatedSteps)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode compensated steps")
	}
	compErrors, err := json.Marshal(txn.CompensationErrors)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode compensation errors")
	}

	return &postgresTransaction{
		ID:                 txn.ID.String(),
		DefinitionID:       txn.DefinitionID,
		Phase:              string(txn.State.Phase),
		Step:               txn.State.Step,
		ExecutedSteps:      executed,
		CompensatedSteps:   compensated,
		CompensationErrors: compErrors,
		ErrorMessage:       sql.NullString{String: txn.ErrorMessage, Valid: txn.ErrorMessage != ""},
		StartedAt:          txn.StartedAt,
		CompletedAt:        txn.CompletedAt,
	}, nil
}

func (s *PostgresTransactionStore) toDomain(record *postgresTransaction) (*saga.Transaction, error) {
	id, err := models.NewID(record.ID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid transaction ID")
	}

	txn := &saga.Transaction{
		ID:           id,
		DefinitionID: record.DefinitionID,
		State: saga.State{
			Phase: saga.Phase(record.Phase),
			Step:  record.Step,
		},
		ErrorMessage: record.ErrorMessage.String,
		StartedAt:    record.StartedAt,
		CompletedAt:  record.CompletedAt,
	}

	if err := json.Unmarshal(record.ExecutedSteps, &txn.ExecutedSteps); err != nil {
		return nil, errors.Wrap(err, "failed to decode executed steps")
	}
	if err := json.Unmarshal(record.CompensatedSteps, &txn.CompensatedSteps); err != nil {
		return nil, errors.Wrap(err, "failed to decode compensated steps")
	}
	if err := json.Unmarshal(record.CompensationErrors, &txn.CompensationErrors); err != nil {
		return nil, errors.Wrap(err, "failed to decode compensation errors")
	}

	return txn, nil
}
