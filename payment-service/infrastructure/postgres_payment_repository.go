package infrastructure

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/payment-service/domain"
	"github.com/orderflow/saga-system/shared/models"
)

// PostgresAccountRepository implements AccountRepository using PostgreSQL
type PostgresAccountRepository struct {
	db *sqlx.DB
}

var _ domain.AccountRepository = (*PostgresAccountRepository)(nil)

// NewPostgresAccountRepository creates a new PostgresAccountRepository
func NewPostgresAccountRepository(db *sqlx.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

type postgresAccount struct {
	CustomerID string    `db:"customer_id"`
	Balance    int64     `db:"balance"`
	Currency   string    `db:"currency"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
	Version    int       `db:"version"`
}

// Save upserts the account
func (r *PostgresAccountRepository) Save(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (
			customer_id, balance, currency, created_at, updated_at, version
		) VALUES (
			:customer_id, :balance, :currency, :created_at, :updated_at, :version
		)
		ON CONFLICT (customer_id) DO UPDATE
		SET balance = EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at,
			version = EXCLUDED.version
		WHERE accounts.version < EXCLUDED.version`

	if _, err := r.db.NamedExecContext(ctx, query, r.toPostgres(account)); err != nil {
		return errors.Wrap(err, "failed to save account")
	}
	return nil
}

// FindByCustomerID finds an account by customer ID
func (r *PostgresAccountRepository) FindByCustomerID(ctx context.Context, customerID string) (*domain.Account, error) {
	var pgAccount postgresAccount
	err := r.db.GetContext(ctx, &pgAccount, "SELECT * FROM accounts WHERE customer_id = $1", customerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find account")
	}

	return r.toDomain(&pgAccount), nil
}

// FindAll returns all accounts ordered by customer id
func (r *PostgresAccountRepository) FindAll(ctx context.Context) ([]*domain.Account, error) {
	var pgAccounts []postgresAccount
	err := r.db.SelectContext(ctx, &pgAccounts, "SELECT * FROM accounts ORDER BY customer_id ASC")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list accounts")
	}

	accounts := make([]*domain.Account, len(pgAccounts))
	for i := range pgAccounts {
		accounts[i] = r.toDomain(&pgAccounts[i])
	}
	return accounts, nil
}

func (r *PostgresAccountRepository) toPostgres(account *domain.Account) *postgresAccount {
	return &postgresAccount{
		CustomerID: account.CustomerID,
		Balance:    account.Balance.Amount,
		Currency:   account.Balance.Currency,
		CreatedAt:  account.Timestamps.CreatedAt,
		UpdatedAt:  account.Timestamps.UpdatedAt,
		Version:    account.Version.Value,
	}
}

func (r *PostgresAccountRepository) toDomain(pgAccount *postgresAccount) *domain.Account {
	return &domain.Account{
		CustomerID: pgAccount.CustomerID,
		Balance:    models.NewMoney(pgAccount.Balance, pgAccount.Currency),
		Timestamps: models.Timestamps{
			CreatedAt: pgAccount.CreatedAt,
			UpdatedAt: pgAccount.UpdatedAt,
		},
		Version: models.Version{Value: pgAccount.Version},
	}
}

// PostgresPaymentRepository implements PaymentRepository using PostgreSQL
type PostgresPaymentRepository struct {
	db *sqlx.DB
}

var _ domain.PaymentRepository = (*PostgresPaymentRepository)(nil)

// NewPostgresPaymentRepository creates a new PostgresPaymentRepository
func NewPostgresPaymentRepository(db *sqlx.DB) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

type postgresPayment struct {
	ID         string    `db:"id"`
	Reference  string    `db:"reference"`
	OrderID    string    `db:"order_id"`
	CustomerID string    `db:"customer_id"`
	Amount     int64     `db:"amount"`
	Currency   string    `db:"currency"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Save upserts the payment
func (r *PostgresPaymentRepository) Save(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, reference, order_id, customer_id, amount, currency, status,
			created_at, updated_at
		) VALUES (
			:id, :reference, :order_id, :customer_id, :amount, :currency, :status,
			:created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, r.toPostgres(payment)); err != nil {
		return errors.Wrap(err, "failed to save payment")
	}
	return nil
}

// FindByID finds a payment by ID
func (r *PostgresPaymentRepository) FindByID(ctx context.Context, id models.ID) (*domain.Payment, error) {
	return r.findOne(ctx, "SELECT * FROM payments WHERE id = $1", id.String())
}

// FindByReference finds the payment charged for the given saga reference
func (r *PostgresPaymentRepository) FindByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	return r.findOne(ctx, "SELECT * FROM payments WHERE reference = $1", reference)
}

func (r *PostgresPaymentRepository) findOne(ctx context.Context, query string, arg interface{}) (*domain.Payment, error) {
	var pgPayment postgresPayment
	err := r.db.GetContext(ctx, &pgPayment, query, arg)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find payment")
	}

	return r.toDomain(&pgPayment)
}

func (r *PostgresPaymentRepository) toPostgres(payment *domain.Payment) *postgresPayment {
	return &postgresPayment{
		ID:         payment.ID.String(),
		Reference:  payment.Reference,
		OrderID:    payment.OrderID,
		CustomerID: payment.CustomerID,
		Amount:     payment.Amount.Amount,
		Currency:   payment.Amount.Currency,
		Status:     string(payment.Status),
		CreatedAt:  payment.Timestamps.CreatedAt,
		UpdatedAt:  payment.Timestamps.UpdatedAt,
	}
}

func (r *PostgresPaymentRepository) toDomain(pgPayment *postgresPayment) (*domain.Payment, error) {
	id, err := models.NewID(pgPayment.ID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid payment ID")
	}

	return &domain.Payment{
		ID:         id,
		Reference:  pgPayment.Reference,
		OrderID:    pgPayment.OrderID,
		CustomerID: pgPayment.CustomerID,
		Amount:     models.NewMoney(pgPayment.Amount, pgPayment.Currency),
		Status:     domain.PaymentStatus(pgPayment.Status),
		Timestamps: models.Timestamps{
			CreatedAt: pgPayment.CreatedAt,
			UpdatedAt: pgPayment.UpdatedAt,
		},
	}, nil
}
