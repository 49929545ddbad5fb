package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/inventory-service/domain"
	"github.com/orderflow/saga-system/shared/models"
)

// PostgresInventoryRepository implements InventoryRepository using PostgreSQL
type PostgresInventoryRepository struct {
	db *sqlx.DB
}

var _ domain.InventoryRepository = (*PostgresInventoryRepository)(nil)

// NewPostgresInventoryRepository creates a new PostgresInventoryRepository
func NewPostgresInventoryRepository(db *sqlx.DB) *PostgresInventoryRepository {
	return &PostgresInventoryRepository{db: db}
}

type postgresInventoryItem struct {
	ProductID string    `db:"product_id"`
	Name      string    `db:"name"`
	Available int       `db:"available"`
	Reserved  int       `db:"reserved"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	Version   int       `db:"version"`
}

// Save upserts the stock position with optimistic locking
func (r *PostgresInventoryRepository) Save(ctx context.Context, item *domain.InventoryItem) error {
	query := `
		INSERT INTO inventory_items (
			product_id, name, available, reserved, created_at, updated_at, version
		) VALUES (
			:product_id, :name, :available, :reserved, :created_at, :updated_at, :version
		)
		ON CONFLICT (product_id) DO UPDATE
		SET available = EXCLUDED.available,
			reserved = EXCLUDED.reserved,
			updated_at = EXCLUDED.updated_at,
			version = EXCLUDED.version
		WHERE inventory_items.version < EXCLUDED.version`

	_, err := r.db.NamedExecContext(ctx, query, &postgresInventoryItem{
		ProductID: item.ProductID,
		Name:      item.Name,
		Available: item.Available,
		Reserved:  item.Reserved,
		CreatedAt: item.Timestamps.CreatedAt,
		UpdatedAt: item.Timestamps.UpdatedAt,
		Version:   item.Version.Value,
	})
	if err != nil {
		return errors.Wrap(err, "failed to save inventory item")
	}

	return nil
}

// FindByProductID finds a stock position by product id
func (r *PostgresInventoryRepository) FindByProductID(ctx context.Context, productID string) (*domain.InventoryItem, error) {
	var pgItem postgresInventoryItem
	err := r.db.GetContext(ctx, &pgItem,
		"SELECT * FROM inventory_items WHERE product_id = $1", productID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find inventory item")
	}

	return toDomainItem(&pgItem), nil
}

// FindAll returns all stock positions
func (r *PostgresInventoryRepository) FindAll(ctx context.Context) ([]*domain.InventoryItem, error) {
	var pgItems []postgresInventoryItem
	err := r.db.SelectContext(ctx, &pgItems,
		"SELECT * FROM inventory_items ORDER BY product_id ASC")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list inventory items")
	}

	items := make([]*domain.InventoryItem, len(pgItems))
	for i, pgItem := range pgItems {
		items[i] = toDomainItem(&pgItem)
	}

	return items, nil
}

func toDomainItem(pgItem *postgresInventoryItem) *domain.InventoryItem {
	return &domain.InventoryItem{
		ProductID: pgItem.ProductID,
		Name:      pgItem.Name,
		Available: pgItem.Available,
		Reserved:  pgItem.Reserved,
		Timestamps: models.Timestamps{
			CreatedAt: pgItem.CreatedAt,
			UpdatedAt: pgItem.UpdatedAt,
		},
		Version: models.Version{Value: pgItem.Version},
	}
}

// PostgresReservationRepository implements ReservationRepository using PostgreSQL
type PostgresReservationRepository struct {
	db *sqlx.DB
}

var _ domain.ReservationRepository = (*PostgresReservationRepository)(nil)

// NewPostgresReservationRepository creates a new PostgresReservationRepository
func NewPostgresReservationRepository(db *sqlx.DB) *PostgresReservationRepository {
	return &PostgresReservationRepository{db: db}
}

type postgresReservation struct {
	ID        string    `db:"id"`
	Reference string    `db:"reference"`
	Lines     []byte    `db:"lines"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Save upserts the reservation
func (r *PostgresReservationRepository) Save(ctx context.Context, reservation *domain.Reservation) error {
	lines, err := json.Marshal(reservation.Lines)
	if err != nil {
		return errors.Wrap(err, "failed to marshal reservation lines")
	}

	query := `
		INSERT INTO reservations (id, reference, lines, status, created_at, updated_at)
		VALUES (:id, :reference, :lines, :status, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`

	_, err = r.db.NamedExecContext(ctx, query, &postgresReservation{
		ID:        reservation.ID.String(),
		Reference: reservation.Reference,
		Lines:     lines,
		Status:    string(reservation.Status),
		CreatedAt: reservation.Timestamps.CreatedAt,
		UpdatedAt: reservation.Timestamps.UpdatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "failed to save reservation")
	}

	return nil
}

// FindByID finds a reservation by id
func (r *PostgresReservationRepository) FindByID(ctx context.Context, id models.ID) (*domain.Reservation, error) {
	return r.findOne(ctx, "SELECT * FROM reservations WHERE id = $1", id.String())
}

// FindByReference finds a reservation by its saga reference
func (r *PostgresReservationRepository) FindByReference(ctx context.Context, reference string) (*domain.Reservation, error) {
	return r.findOne(ctx, "SELECT * FROM reservations WHERE reference = $1", reference)
}

func (r *PostgresReservationRepository) findOne(ctx context.Context, query string, arg interface{}) (*domain.Reservation, error) {
	var pgReservation postgresReservation
	err := r.db.GetContext(ctx, &pgReservation, query, arg)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find reservation")
	}

	id, err := models.NewID(pgReservation.ID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid reservation ID")
	}

	var lines []domain.ReservationLine
	if err := json.Unmarshal(pgReservation.Lines, &lines); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal reservation lines")
	}

	return &domain.Reservation{
		ID:        id,
		Reference: pgReservation.Reference,
		Lines:     lines,
		Status:    domain.ReservationStatus(pgReservation.Status),
		Timestamps: models.Timestamps{
			CreatedAt: pgReservation.CreatedAt,
			UpdatedAt: pgReservation.UpdatedAt,
		},
	}, nil
}
