package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/orderflow/saga-system/order-service/domain"
	"github.com/orderflow/saga-system/shared/models"
)

// MemoryOrderRepository is an in-memory OrderRepository for single-process
// deployments and tests.
type MemoryOrderRepository struct {
	mu          sync.RWMutex
	orders      map[models.ID]*domain.Order
	byReference map[string]models.ID
}

var _ domain.OrderRepository = (*MemoryOrderRepository)(nil)

// NewMemoryOrderRepository creates an empty repository
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders:      make(map[models.ID]*domain.Order),
		byReference: make(map[string]models.ID),
	}
}

// Save stores the order
func (r *MemoryOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders[order.ID] = cloneOrder(order)
	r.byReference[order.Reference] = order.ID
	return nil
}

// FindByID returns the order with the given id, or nil
func (r *MemoryOrderRepository) FindByID(ctx context.Context, id models.ID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(order), nil
}

// FindByReference returns the order created for the given reference, or nil
func (r *MemoryOrderRepository) FindByReference(ctx context.Context, reference string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byReference[reference]
	if !ok {
		return nil, nil
	}
	return cloneOrder(r.orders[id]), nil
}

// FindAll returns orders ordered by creation time
func (r *MemoryOrderRepository) FindAll(ctx context.Context, limit, offset int) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		all = append(all, cloneOrder(order))
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamps.CreatedAt.Before(all[j].Timestamps.CreatedAt)
	})

	if offset >= len(all) {
		return []*domain.Order{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}

	return all[offset:end], nil
}

func cloneOrder(order *domain.Order) *domain.Order {
	clone := *order
	clone.Items = append([]domain.OrderItem(nil), order.Items...)
	clone.ClearEvents()
	return &clone
}
