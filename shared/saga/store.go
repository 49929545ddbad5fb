package saga

import (
	"context"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/orderflow/saga-system/shared/models"
)

// Filter selects transactions in List. Zero values match everything.
type Filter struct {
	Phase        Phase
	DefinitionID string
}

func (f Filter) matches(t *Transaction) bool {
	if f.Phase != "" && t.State.Phase != f.Phase {
		return false
	}
	if f.DefinitionID != "" && t.DefinitionID != f.DefinitionID {
		return false
	}
	return true
}

// Mutator applies an in-place change to a transaction inside Update's
// critical section. Returning an error discards the change.
type Mutator func(*Transaction) error

// TransactionStore is the only structure shared between the engine writer
// and external readers. Update applies its mutation atomically with respect
// to concurrent reads and writes on the same id; Get and List never observe
// a partially mutated record. Keys are never reused and completed records
// are never deleted within the process lifetime.
type TransactionStore interface {
	Create(ctx context.Context, txn *Transaction) error
	Get(ctx context.Context, id models.ID) (*Transaction, error)
	List(ctx context.Context, filter Filter) ([]*Transaction, error)
	Update(ctx context.Context, id models.ID, mutate Mutator) (*Transaction, error)
}

// storeEntry guards a single transaction. The per-entry mutex gives each id
// its own critical section, so unrelated transactions never contend.
type storeEntry struct {
	mu  sync.Mutex
	txn *Transaction
}

// MemoryTransactionStore is an in-memory TransactionStore on a concurrent
// map of per-id locked entries.
type MemoryTransactionStore struct {
	entries *xsync.MapOf[models.ID, *storeEntry]
}

var _ TransactionStore = (*MemoryTransactionStore)(nil)

// NewMemoryTransactionStore creates an empty in-memory store.
func NewMemoryTransactionStore() *MemoryTransactionStore {
	return &MemoryTransactionStore{
		entries: xsync.NewMapOf[models.ID, *storeEntry](),
	}
}

// Create stores a new record. The id must not be taken.
func (s *MemoryTransactionStore) Create(ctx context.Context, txn *Transaction) error {
	entry := &storeEntry{txn: txn.Clone()}
	if _, loaded := s.entries.LoadOrStore(txn.ID, entry); loaded {
		return ErrAlreadyExists
	}
	return nil
}

// Get returns a copy of the record for id.
func (s *MemoryTransactionStore) Get(ctx context.Context, id models.ID) (*Transaction, error) {
	entry, ok := s.entries.Load(id)
	if !ok {
		return nil, ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.txn.Clone(), nil
}

// List returns copies of all records matching the filter, ordered by start
// time then id for a stable result.
func (s *MemoryTransactionStore) List(ctx context.Context, filter Filter) ([]*Transaction, error) {
	var out []*Transaction
	s.entries.Range(func(id models.ID, entry *storeEntry) bool {
		entry.mu.Lock()
		if filter.matches(entry.txn) {
			out = append(out, entry.txn.Clone())
		}
		entry.mu.Unlock()
		return true
	})

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

// Update applies mutate under the record's critical section. The mutator
// works on a private copy; a failed mutator leaves the stored record
// untouched.
func (s *MemoryTransactionStore) Update(ctx context.Context, id models.ID, mutate Mutator) (*Transaction, error) {
	entry, ok := s.entries.Load(id)
	if !ok {
		return nil, ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	next := entry.txn.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	entry.txn = next

	return next.Clone(), nil
}
