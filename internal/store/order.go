package store

import (
	"sync"

	"github.com/openbourse/openbourse/internal/domain"
)

// OrderStore is a thread-safe arena of orders keyed by generated
// order ID, with a secondary index by account. Resting orders are
// owned by their book; this store is the lookup surface for queries
// and replay.
type OrderStore struct {
	mu            sync.RWMutex
	orders        map[string]*domain.Order
	accountOrders map[string][]*domain.Order // account_id → orders (append-only)
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:        make(map[string]*domain.Order),
		accountOrders: make(map[string][]*domain.Order),
	}
}

// Create adds an order to the store and appends it to the
// account's secondary index.
func (s *OrderStore) Create(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.ID] = o
	s.accountOrders[o.AccountID] = append(s.accountOrders[o.AccountID], o)
}

// Get retrieves an order by ID. It returns
// domain.ErrOrderNotFound if the order does not exist. The returned
// order is the live one the engine mutates; query paths must take
// Snapshot before reading its mutable fields.
func (s *OrderStore) Get(id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// ListByAccount returns orders for an account in reverse
// chronological order (newest first). If status is non-nil, only
// orders matching that status are included. Pagination is 1-based.
// Returns the matching page as point-in-time copies and the total
// count before pagination; the engine keeps mutating the live orders
// while queries run.
func (s *OrderStore) ListByAccount(accountID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.accountOrders[accountID]

	filtered := make([]*domain.Order, 0)
	for i := len(all) - 1; i >= 0; i-- {
		o := all[i]
		if status != nil {
			o.Mu.Lock()
			match := o.Status == *status
			o.Mu.Unlock()
			if !match {
				continue
			}
		}
		filtered = append(filtered, o)
	}

	total := len(filtered)

	start := (page - 1) * limit
	if start >= total {
		return []*domain.Order{}, total
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make([]*domain.Order, 0, end-start)
	for _, o := range filtered[start:end] {
		out = append(out, o.Snapshot())
	}
	return out, total
}
