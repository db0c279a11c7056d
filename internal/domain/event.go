package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies a history journal entry payload.
type EventType string

const (
	EventOrderAccepted  EventType = "order_accepted"
	EventOrderCancelled EventType = "order_cancelled"
	EventTradeExecuted  EventType = "trade_executed"
	EventOrderRejected  EventType = "order_rejected"
)

// Event is a history journal entry. Seq is the strictly increasing,
// gapless sequence number assigned by the journal on append; it is
// the single global linearization point of the whole system. Exactly
// one payload pointer is non-nil, matching Type.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"ts"`

	OrderAccepted  *OrderAcceptedEvent  `json:"order_accepted,omitempty"`
	OrderCancelled *OrderCancelledEvent `json:"order_cancelled,omitempty"`
	TradeExecuted  *TradeExecutedEvent  `json:"trade_executed,omitempty"`
	OrderRejected  *OrderRejectedEvent  `json:"order_rejected,omitempty"`
}

// OrderAcceptedEvent records an order that passed validation and
// reservation. The remainder disposition after its contiguous
// TradeExecuted entries (rest on book for limit, cancel for market)
// is a deterministic function of Type and the fills, so it is not
// journaled separately.
type OrderAcceptedEvent struct {
	OrderID   string          `json:"order_id"`
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	OrderType OrderType       `json:"order_type"`
	Price     decimal.Decimal `json:"price"` // zero for market orders
	Quantity  decimal.Decimal `json:"quantity"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// OrderCancelledEvent records removal of a resting order, whether
// requested by the account or forced by expiry.
type OrderCancelledEvent struct {
	OrderID string       `json:"order_id"`
	Symbol  string       `json:"symbol"`
	Reason  CancelReason `json:"reason"`
}

// TradeExecutedEvent records a single fill. Entries for one incoming
// order immediately follow its OrderAcceptedEvent in the journal.
type TradeExecutedEvent struct {
	Symbol       string          `json:"symbol"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	TakerOrderID string          `json:"taker_order_id"`
	MakerOrderID string          `json:"maker_order_id"`
	BuyerID      string          `json:"buyer_id"`
	SellerID     string          `json:"seller_id"`
}

// OrderRejectedEvent records a submission that failed reservation.
// Rejections are journaled for audit completeness but mutate nothing.
type OrderRejectedEvent struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	OrderType OrderType       `json:"order_type"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Reason    string          `json:"reason"`
}
