package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/orderflow/saga-system/payment-service/domain"
	"github.com/orderflow/saga-system/shared/models"
)

// MemoryAccountRepository is an in-memory AccountRepository for
// single-process deployments and tests.
type MemoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
}

var _ domain.AccountRepository = (*MemoryAccountRepository)(nil)

// NewMemoryAccountRepository creates an empty repository
func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{accounts: make(map[string]*domain.Account)}
}

// Seed loads accounts without going through Save, for bootstrapping
func (r *MemoryAccountRepository) Seed(accounts ...*domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, account := range accounts {
		r.accounts[account.CustomerID] = cloneAccount(account)
	}
}

// Save stores the account
func (r *MemoryAccountRepository) Save(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accounts[account.CustomerID] = cloneAccount(account)
	return nil
}

// FindByCustomerID returns the customer's account, or nil
func (r *MemoryAccountRepository) FindByCustomerID(ctx context.Context, customerID string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[customerID]
	if !ok {
		return nil, nil
	}
	return cloneAccount(account), nil
}

// FindAll returns all accounts ordered by customer id
func (r *MemoryAccountRepository) FindAll(ctx context.Context) ([]*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		all = append(all, cloneAccount(account))
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CustomerID < all[j].CustomerID
	})

	return all, nil
}

func cloneAccount(account *domain.Account) *domain.Account {
	clone := *account
	clone.ClearEvents()
	return &clone
}

// MemoryPaymentRepository is an in-memory PaymentRepository
type MemoryPaymentRepository struct {
	mu          sync.RWMutex
	payments    map[models.ID]*domain.Payment
	byReference map[string]models.ID
}

var _ domain.PaymentRepository = (*MemoryPaymentRepository)(nil)

// NewMemoryPaymentRepository creates an empty repository
func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		payments:    make(map[models.ID]*domain.Payment),
		byReference: make(map[string]models.ID),
	}
}

// Save stores the payment
func (r *MemoryPaymentRepository) Save(ctx context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *payment
	r.payments[payment.ID] = &clone
	r.byReference[payment.Reference] = payment.ID
	return nil
}

// FindByID returns the payment with the given id, or nil
func (r *MemoryPaymentRepository) FindByID(ctx context.Context, id models.ID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	clone := *payment
	return &clone, nil
}

// FindByReference returns the payment charged for the given reference, or nil
func (r *MemoryPaymentRepository) FindByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byReference[reference]
	if !ok {
		return nil, nil
	}
	clone := *r.payments[id]
	return &clone, nil
}
