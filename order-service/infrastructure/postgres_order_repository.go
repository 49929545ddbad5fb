package infrastructure

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/order-service/domain"
	"github.com/orderflow/saga-system/shared/models"
)

// PostgresOrderRepository implements OrderRepository using PostgreSQL
type PostgresOrderRepository struct {
	db *sqlx.DB
}

var _ domain.OrderRepository = (*PostgresOrderRepository)(nil)

// NewPostgresOrderRepository creates a new PostgresOrderRepository
func NewPostgresOrderRepository(db *sqlx.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

type postgresOrder struct {
	ID         string    `db:"id"`
	CustomerID string    `db:"customer_id"`
	Total      int64     `db:"total"`
	Currency   string    `db:"currency"`
	Status     string    `db:"status"`
	Reference  string    `db:"reference"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
	Version    int       `db:"version"`
}

type postgresOrderItem struct {
	OrderID   string `db:"order_id"`
	ProductID string `db:"product_id"`
	Quantity  int    `db:"quantity"`
	UnitPrice int64  `db:"unit_price"`
	Currency  string `db:"currency"`
}

// Save upserts the order and rewrites its items
func (r *PostgresOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (
			id, customer_id, total, currency, status, reference,
			created_at, updated_at, version
		) VALUES (
			:id, :customer_id, :total, :currency, :status, :reference,
			:created_at, :updated_at, :version
		)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			version = EXCLUDED.version
		WHERE orders.version < EXCLUDED.version`

	if _, err := tx.NamedExecContext(ctx, query, r.toPostgres(order)); err != nil {
		return errors.Wrap(err, "failed to save order")
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM order_items WHERE order_id = $1", order.ID.String()); err != nil {
		return errors.Wrap(err, "failed to clear order items")
	}

	for _, item := range order.Items {
		itemQuery := `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price, currency)
			VALUES (:order_id, :product_id, :quantity, :unit_price, :currency)`

		_, err := tx.NamedExecContext(ctx, itemQuery, &postgresOrderItem{
			OrderID:   order.ID.String(),
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.Amount,
			Currency:  item.UnitPrice.Currency,
		})
		if err != nil {
			return errors.Wrap(err, "failed to save order item")
		}
	}

	return tx.Commit()
}

// FindByID finds an order by ID
func (r *PostgresOrderRepository) FindByID(ctx context.Context, id models.ID) (*domain.Order, error) {
	return r.findOne(ctx, "SELECT * FROM orders WHERE id = $1", id.String())
}

// FindByReference finds an order by its saga reference
func (r *PostgresOrderRepository) FindByReference(ctx context.Context, reference string) (*domain.Order, error) {
	return r.findOne(ctx, "SELECT * FROM orders WHERE reference = $1", reference)
}

// FindAll returns orders ordered by creation time
func (r *PostgresOrderRepository) FindAll(ctx context.Context, limit, offset int) ([]*domain.Order, error) {
	query := "SELECT * FROM orders ORDER BY created_at ASC LIMIT $1 OFFSET $2"

	var pgOrders []postgresOrder
	if err := r.db.SelectContext(ctx, &pgOrders, query, limit, offset); err != nil {
		return nil, errors.Wrap(err, "failed to list orders")
	}

	orders := make([]*domain.Order, len(pgOrders))
	for i, pgOrder := range pgOrders {
		order, err := r.toDomain(ctx, &pgOrder)
		if err != nil {
			return nil, err
		}
		orders[i] = order
	}

	return orders, nil
}

func (r *PostgresOrderRepository) findOne(ctx context.Context, query string, arg interface{}) (*domain.Order, error) {
	var pgOrder postgresOrder
	err := r.db.GetContext(ctx, &pgOrder, query, arg)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find order")
	}

	return r.toDomain(ctx, &pgOrder)
}

func (r *PostgresOrderRepository) toPostgres(order *domain.Order) *postgresOrder {
	return &postgresOrder{
		ID:         order.ID.String(),
		CustomerID: order.CustomerID,
		Total:      order.Total.Amount,
		Currency:   order.Total.Currency,
		Status:     string(order.Status),
		Reference:  order.Reference,
		CreatedAt:  order.Timestamps.CreatedAt,
		UpdatedAt:  order.Timestamps.UpdatedAt,
		Version:    order.Version.Value,
	}
}

func (r *PostgresOrderRepository) toDomain(ctx context.Context, pgOrder *postgresOrder) (*domain.Order, error) {
	id, err := models.NewID(pgOrder.ID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid order ID")
	}

	var pgItems []postgresOrderItem
	err = r.db.SelectContext(ctx, &pgItems,
		"SELECT order_id, product_id, quantity, unit_price, currency FROM order_items WHERE order_id = $1",
		pgOrder.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load order items")
	}

	items := make([]domain.OrderItem, len(pgItems))
	for i, pgItem := range pgItems {
		items[i] = domain.OrderItem{
			ProductID: pgItem.ProductID,
			Quantity:  pgItem.Quantity,
			UnitPrice: models.NewMoney(pgItem.UnitPrice, pgItem.Currency),
		}
	}

	return &domain.Order{
		ID:         id,
		CustomerID: pgOrder.CustomerID,
		Items:      items,
		Total:      models.NewMoney(pgOrder.Total, pgOrder.Currency),
		Status:     domain.OrderStatus(pgOrder.Status),
		Reference:  pgOrder.Reference,
		Timestamps: models.Timestamps{
			CreatedAt: pgOrder.CreatedAt,
			UpdatedAt: pgOrder.UpdatedAt,
		},
		Version: models.Version{Value: pgOrder.Version},
	}, nil
}
