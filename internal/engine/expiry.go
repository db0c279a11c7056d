package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openbourse/openbourse/internal/domain"
)

// ExpiryManager tracks resting limit orders that carry an expiration
// time and periodically cancels those whose time has passed. The
// cancellation goes through the matcher like any other, so it is
// journaled and reproduced on replay without consulting the clock.
type ExpiryManager struct {
	interval     time.Duration
	matcher      *Matcher
	logger       *zap.Logger
	activeOrders []*domain.Order // sorted by expires_at ASC
	mu           sync.Mutex      // protects activeOrders slice
}

// NewExpiryManager creates an ExpiryManager that scans at the given
// interval.
func NewExpiryManager(interval time.Duration, matcher *Matcher, logger *zap.Logger) *ExpiryManager {
	return &ExpiryManager{
		interval:     interval,
		matcher:      matcher,
		logger:       logger,
		activeOrders: make([]*domain.Order, 0),
	}
}

// Add inserts an order into the sorted activeOrders slice, maintaining
// expires_at ASC order. Only call this for limit orders that rest on
// the book.
func (e *ExpiryManager) Add(order *domain.Order) {
	if order.ExpiresAt == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	expiresAt := *order.ExpiresAt
	// Binary search for the insertion point.
	idx := sort.Search(len(e.activeOrders), func(i int) bool {
		return e.activeOrders[i].ExpiresAt.After(expiresAt)
	})
	e.activeOrders = append(e.activeOrders, nil)
	copy(e.activeOrders[idx+1:], e.activeOrders[idx:])
	e.activeOrders[idx] = order
}

// Remove deletes an order from the activeOrders slice by order ID.
func (e *ExpiryManager) Remove(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, o := range e.activeOrders {
		if o.ID == orderID {
			e.activeOrders = append(e.activeOrders[:i], e.activeOrders[i+1:]...)
			return
		}
	}
}

// Rebuild re-registers orders after journal replay.
func (e *ExpiryManager) Rebuild(orders []*domain.Order) {
	for _, o := range orders {
		e.Add(o)
	}
}

// Start launches a background goroutine that ticks at the configured
// interval and expires orders. It stops when ctx is cancelled.
func (e *ExpiryManager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				e.tick(t)
			}
		}
	}()
}

// tick iterates from the front of the sorted activeOrders slice and
// expires all orders where expires_at <= now.
func (e *ExpiryManager) tick(now time.Time) {
	e.mu.Lock()
	var toExpire []*domain.Order
	cutoff := 0
	for cutoff < len(e.activeOrders) {
		o := e.activeOrders[cutoff]
		if o.ExpiresAt == nil || o.ExpiresAt.After(now) {
			break
		}
		toExpire = append(toExpire, o)
		cutoff++
	}
	if cutoff > 0 {
		e.activeOrders = e.activeOrders[cutoff:]
	}
	e.mu.Unlock()

	for _, order := range toExpire {
		// The order may have filled or been cancelled since the last
		// scan; the matcher reports that as not-found, which is fine.
		if _, err := e.matcher.CancelExpired(order.ID); err != nil {
			if errors.Is(err, domain.ErrOrderNotFound) {
				continue
			}
			e.logger.Warn("order expiration failed",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		}
	}
}

// ActiveOrderCount returns the number of orders currently tracked for
// expiration. Useful for testing.
func (e *ExpiryManager) ActiveOrderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.activeOrders)
}
