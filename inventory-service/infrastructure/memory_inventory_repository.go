package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/orderflow/saga-system/inventory-service/domain"
	"github.com/orderflow/saga-system/shared/models"
)

// MemoryInventoryRepository is an in-memory InventoryRepository for
// single-process deployments and tests.
type MemoryInventoryRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.InventoryItem
}

var _ domain.InventoryRepository = (*MemoryInventoryRepository)(nil)

// NewMemoryInventoryRepository creates an empty repository
func NewMemoryInventoryRepository() *MemoryInventoryRepository {
	return &MemoryInventoryRepository{items: make(map[string]*domain.InventoryItem)}
}

// Seed loads initial stock positions
func (r *MemoryInventoryRepository) Seed(items ...*domain.InventoryItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		r.items[item.ProductID] = cloneItem(item)
	}
}

// Save stores the stock position
func (r *MemoryInventoryRepository) Save(ctx context.Context, item *domain.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ProductID] = cloneItem(item)
	return nil
}

// FindByProductID returns the stock position for a product, or nil
func (r *MemoryInventoryRepository) FindByProductID(ctx context.Context, productID string) (*domain.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[productID]
	if !ok {
		return nil, nil
	}
	return cloneItem(item), nil
}

// FindAll returns all stock positions ordered by product id
func (r *MemoryInventoryRepository) FindAll(ctx context.Context) ([]*domain.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.InventoryItem, 0, len(r.items))
	for _, item := range r.items {
		all = append(all, cloneItem(item))
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].ProductID < all[j].ProductID
	})

	return all, nil
}

func cloneItem(item *domain.InventoryItem) *domain.InventoryItem {
	clone := *item
	clone.ClearEvents()
	return &clone
}

// MemoryReservationRepository is an in-memory ReservationRepository.
type MemoryReservationRepository struct {
	mu           sync.RWMutex
	reservations map[models.ID]*domain.Reservation
	byReference  map[string]models.ID
}

var _ domain.ReservationRepository = (*MemoryReservationRepository)(nil)

// NewMemoryReservationRepository creates an empty repository
func NewMemoryReservationRepository() *MemoryReservationRepository {
	return &MemoryReservationRepository{
		reservations: make(map[models.ID]*domain.Reservation),
		byReference:  make(map[string]models.ID),
	}
}

// Save stores the reservation
func (r *MemoryReservationRepository) Save(ctx context.Context, reservation *domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reservations[reservation.ID] = cloneReservation(reservation)
	r.byReference[reservation.Reference] = reservation.ID
	return nil
}

// FindByID returns the reservation with the given id, or nil
func (r *MemoryReservationRepository) FindByID(ctx context.Context, id models.ID) (*domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reservation, ok := r.reservations[id]
	if !ok {
		return nil, nil
	}
	return cloneReservation(reservation), nil
}

// FindByReference returns the reservation taken for a reference, or nil
func (r *MemoryReservationRepository) FindByReference(ctx context.Context, reference string) (*domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byReference[reference]
	if !ok {
		return nil, nil
	}
	return cloneReservation(r.reservations[id]), nil
}

func cloneReservation(reservation *domain.Reservation) *domain.Reservation {
	clone := *reservation
	clone.Lines = append([]domain.ReservationLine(nil), reservation.Lines...)
	return &clone
}
