package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes limit orders from market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderSide indicates whether an order is a buy or a sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// Terminal returns true for statuses that imply the order is no
// longer on the book.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// CancelReason records why an order left the book without filling.
type CancelReason string

const (
	CancelReasonRequested CancelReason = "requested"
	CancelReasonExpired   CancelReason = "expired"
	CancelReasonUnfilled  CancelReason = "unfilled" // market order remainder
)

// Order represents a buy or sell instruction submitted by an account.
// While resting it is owned exclusively by its instrument's order
// book; terminal orders survive only in the order store for queries.
//
// Invariants: RemainingQuantity ≤ Quantity; status is filled iff
// RemainingQuantity is zero; a terminal status implies the order is
// absent from the book.
type Order struct {
	// Mu guards the mutable fields (quantities, status, trades,
	// AcceptSeq) against readers outside the engine. The engine writes
	// them under the instrument's book lock with Mu held; query paths
	// take Snapshot instead of reading the live order.
	Mu sync.Mutex

	ID                string
	Type              OrderType
	AccountID         string
	Side              OrderSide
	Symbol            string
	Price             decimal.Decimal // zero for market orders
	Quantity          decimal.Decimal
	FilledQuantity    decimal.Decimal
	RemainingQuantity decimal.Decimal
	CancelledQuantity decimal.Decimal
	Status            OrderStatus
	AcceptSeq         uint64 // journal sequence of the OrderAccepted entry
	CreatedAt         time.Time
	ExpiresAt         *time.Time // nil for market orders or GTC
	CancelledAt       *time.Time
	Trades            []*Trade
}

// Snapshot returns a self-consistent copy of the order. The engine
// keeps mutating the live order as fills and cancellations land, so
// anything leaving the engine's locks reads a copy instead.
func (o *Order) Snapshot() *Order {
	o.Mu.Lock()
	defer o.Mu.Unlock()
	return &Order{
		ID:                o.ID,
		Type:              o.Type,
		AccountID:         o.AccountID,
		Side:              o.Side,
		Symbol:            o.Symbol,
		Price:             o.Price,
		Quantity:          o.Quantity,
		FilledQuantity:    o.FilledQuantity,
		RemainingQuantity: o.RemainingQuantity,
		CancelledQuantity: o.CancelledQuantity,
		Status:            o.Status,
		AcceptSeq:         o.AcceptSeq,
		CreatedAt:         o.CreatedAt,
		ExpiresAt:         o.ExpiresAt,
		CancelledAt:       o.CancelledAt,
		Trades:            append([]*Trade(nil), o.Trades...),
	}
}

// AveragePrice computes the volume-weighted average execution price
// as sum(trade.price × trade.quantity) / filled_quantity. Returns
// (price, true) when fills exist, or (zero, false) otherwise.
func (o *Order) AveragePrice() (decimal.Decimal, bool) {
	if len(o.Trades) == 0 || o.FilledQuantity.IsZero() {
		return decimal.Zero, false
	}
	total := decimal.Zero
	for _, t := range o.Trades {
		total = total.Add(t.Price.Mul(t.Quantity))
	}
	return total.Div(o.FilledQuantity), true
}
