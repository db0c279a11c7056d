package service

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openbourse/openbourse/internal/domain"
	"github.com/openbourse/openbourse/internal/engine"
	"github.com/openbourse/openbourse/internal/store"
)

var (
	accountIDRegex   = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	orderSymbolRegex = regexp.MustCompile(`^[A-Z]{1,10}$`)
)

// ValidOrderStatuses lists all valid order status values for validation.
var ValidOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusOpen:            true,
	domain.OrderStatusPartiallyFilled: true,
	domain.OrderStatusFilled:          true,
	domain.OrderStatusCancelled:       true,
	domain.OrderStatusRejected:        true,
}

// SubmitOrderRequest represents the input for order submission.
type SubmitOrderRequest struct {
	Type      domain.OrderType
	AccountID string
	Side      domain.OrderSide
	Symbol    string
	Price     *decimal.Decimal // required for limit, must be nil for market
	Quantity  decimal.Decimal
	ExpiresAt *time.Time // optional for limit, must be nil for market
}

// OrderService handles order submission, retrieval, cancellation, and listing.
type OrderService struct {
	matcher    *engine.Matcher
	expiry     *engine.ExpiryManager
	orderStore *store.OrderStore
}

// NewOrderService creates a new OrderService with the given dependencies.
func NewOrderService(
	matcher *engine.Matcher,
	expiry *engine.ExpiryManager,
	orderStore *store.OrderStore,
) *OrderService {
	return &OrderService{
		matcher:    matcher,
		expiry:     expiry,
		orderStore: orderStore,
	}
}

// SubmitOrder validates the request shape, hands it to the matching
// engine, and registers the order with the expiry manager when it
// rests with a deadline.
func (s *OrderService) SubmitOrder(req SubmitOrderRequest) (*domain.Order, error) {
	if req.Type != domain.OrderTypeLimit && req.Type != domain.OrderTypeMarket {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("Unknown order type: %s. Must be one of: limit, market", req.Type),
		}
	}
	if !accountIDRegex.MatchString(req.AccountID) {
		return nil, &domain.ValidationError{
			Message: "account_id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return nil, &domain.ValidationError{
			Message: "side must be 'buy' or 'sell'",
		}
	}
	if !orderSymbolRegex.MatchString(req.Symbol) {
		return nil, &domain.ValidationError{
			Message: "symbol must match ^[A-Z]{1,10}$",
		}
	}
	if !req.Quantity.IsPositive() {
		return nil, &domain.ValidationError{
			Message: "quantity must be greater than 0",
		}
	}

	if req.Type == domain.OrderTypeLimit {
		return s.submitLimitOrder(req)
	}
	return s.submitMarketOrder(req)
}

func (s *OrderService) submitLimitOrder(req SubmitOrderRequest) (*domain.Order, error) {
	if req.Price == nil {
		return nil, &domain.ValidationError{
			Message: "price is required for limit orders",
		}
	}
	if !req.Price.IsPositive() {
		return nil, &domain.ValidationError{
			Message: "price must be greater than 0",
		}
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		return nil, &domain.ValidationError{
			Message: "expires_at must be a future timestamp",
		}
	}

	order, err := s.matcher.Submit(engine.SubmitRequest{
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      domain.OrderTypeLimit,
		Price:     *req.Price,
		Quantity:  req.Quantity,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}

	// Read a copy: the live order may already be picking up concurrent
	// cancellations or fills on other goroutines.
	snap := order.Snapshot()
	// Orders resting with a deadline are tracked for expiry.
	if snap.ExpiresAt != nil && !snap.Status.Terminal() {
		s.expiry.Add(order)
	}
	return snap, nil
}

func (s *OrderService) submitMarketOrder(req SubmitOrderRequest) (*domain.Order, error) {
	// Market orders must NOT include price or expires_at.
	if req.Price != nil {
		return nil, &domain.ValidationError{
			Message: "market orders must not include price",
		}
	}
	if req.ExpiresAt != nil {
		return nil, &domain.ValidationError{
			Message: "market orders must not include expires_at",
		}
	}

	order, err := s.matcher.Submit(engine.SubmitRequest{
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      domain.OrderTypeMarket,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return nil, err
	}
	return order.Snapshot(), nil
}

// GetOrder retrieves an order by ID with all its trades, as a
// point-in-time copy.
func (s *OrderService) GetOrder(orderID string) (*domain.Order, error) {
	order, err := s.orderStore.Get(orderID)
	if err != nil {
		return nil, err
	}
	return order.Snapshot(), nil
}

// CancelOrder cancels an open or partially filled order and releases
// its remaining reservation.
func (s *OrderService) CancelOrder(orderID string) (*domain.Order, error) {
	order, err := s.matcher.Cancel(orderID)
	if err != nil {
		return nil, err
	}
	s.expiry.Remove(order.ID)
	return order.Snapshot(), nil
}

// ListOrders returns the orders of one account in reverse
// chronological order, optionally filtered by status, with 1-based
// pagination. The second return value is the total matching count.
func (s *OrderService) ListOrders(accountID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	if !accountIDRegex.MatchString(accountID) {
		return nil, 0, &domain.ValidationError{
			Message: "account_id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	if status != nil && !ValidOrderStatuses[*status] {
		return nil, 0, &domain.ValidationError{
			Message: fmt.Sprintf("Unknown order status: %s", *status),
		}
	}
	orders, total := s.orderStore.ListByAccount(accountID, status, page, limit)
	return orders, total, nil
}
