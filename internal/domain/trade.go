package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents a matched execution between a taker and a maker
// order. Immutable once created. Seq is the journal sequence number
// of the TradeExecuted entry and doubles as the trade identifier, so
// replay reproduces trades bit for bit.
type Trade struct {
	Seq          uint64
	Symbol       string
	Price        decimal.Decimal // the maker's price
	Quantity     decimal.Decimal
	TakerOrderID string
	MakerOrderID string
	BuyerID      string
	SellerID     string
	ExecutedAt   time.Time
}
