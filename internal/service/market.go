package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/openbourse/openbourse/internal/domain"
	"github.com/openbourse/openbourse/internal/engine"
	"github.com/openbourse/openbourse/internal/store"
)

// PriceResponse represents the response for GET /instruments/{symbol}/price.
type PriceResponse struct {
	Symbol         string
	CurrentPrice   *decimal.Decimal // nil when no trades ever
	Window         string           // e.g. "5m"
	TradesInWindow int
	LastTradeAt    *time.Time // nil when no trades ever
}

// BookResponse represents the response for GET /instruments/{symbol}/book.
type BookResponse struct {
	Symbol     string
	Bids       []engine.PriceLevel
	Asks       []engine.PriceLevel
	Spread     *decimal.Decimal // nil if either side empty
	SnapshotAt time.Time
}

// QuotePriceLevel represents a single price level in the quote response.
type QuotePriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// QuoteResponse represents the response for GET /instruments/{symbol}/quote.
// It estimates how a market order of the given size would execute
// against the current book, without placing anything.
type QuoteResponse struct {
	Symbol            string
	Side              domain.OrderSide
	QuantityRequested decimal.Decimal
	QuantityAvailable decimal.Decimal
	FullyFillable     bool
	EstimatedAvgPrice *decimal.Decimal // nil when no liquidity
	EstimatedTotal    *decimal.Decimal // nil when no liquidity
	PriceLevels       []QuotePriceLevel
	QuotedAt          time.Time
}

// MarketService handles instrument price, book, quote, and trade queries.
type MarketService struct {
	tradeStore  *store.TradeStore
	books       *engine.BookManager
	instruments *domain.InstrumentRegistry
	vwapWindow  time.Duration
	depth       int
}

// NewMarketService creates a new MarketService with the given dependencies.
func NewMarketService(
	tradeStore *store.TradeStore,
	books *engine.BookManager,
	instruments *domain.InstrumentRegistry,
	vwapWindow time.Duration,
	depth int,
) *MarketService {
	return &MarketService{
		tradeStore:  tradeStore,
		books:       books,
		instruments: instruments,
		vwapWindow:  vwapWindow,
		depth:       depth,
	}
}

// ListInstruments returns all registered instruments.
func (s *MarketService) ListInstruments() []*domain.Instrument {
	return s.instruments.List()
}

// GetPrice returns the current reference price for a symbol, computed
// as VWAP over the configured time window. Falls back to the last
// trade's price if no trades exist in the window. Returns a nil price
// if no trades have ever occurred.
func (s *MarketService) GetPrice(symbol string) (*PriceResponse, error) {
	if !s.instruments.Exists(symbol) {
		return nil, domain.ErrInstrumentNotFound
	}

	resp := &PriceResponse{
		Symbol: symbol,
		Window: formatDuration(s.vwapWindow),
	}
	lastTrade, ok := s.tradeStore.Last(symbol)
	if !ok {
		return resp, nil
	}
	resp.LastTradeAt = &lastTrade.ExecutedAt

	windowed := s.tradeStore.Since(symbol, time.Now().Add(-s.vwapWindow))
	resp.TradesInWindow = len(windowed)

	sumPriceQty := decimal.Zero
	sumQty := decimal.Zero
	for _, t := range windowed {
		sumPriceQty = sumPriceQty.Add(t.Price.Mul(t.Quantity))
		sumQty = sumQty.Add(t.Quantity)
	}

	if sumQty.IsPositive() {
		vwap := sumPriceQty.Div(sumQty)
		resp.CurrentPrice = &vwap
	} else {
		// No trades in window; fall back to the last trade's price.
		resp.CurrentPrice = &lastTrade.Price
	}
	return resp, nil
}

// GetBook returns the top price levels of the order book for a symbol.
func (s *MarketService) GetBook(symbol string) (*BookResponse, error) {
	if !s.instruments.Exists(symbol) {
		return nil, domain.ErrInstrumentNotFound
	}

	view := s.books.GetOrCreate(symbol).Snapshot(s.depth)
	resp := &BookResponse{
		Symbol:     symbol,
		Bids:       view.Bids,
		Asks:       view.Asks,
		SnapshotAt: view.SnapshotAt,
	}
	if len(view.Bids) > 0 && len(view.Asks) > 0 {
		spread := view.Asks[0].Price.Sub(view.Bids[0].Price)
		resp.Spread = &spread
	}
	return resp, nil
}

// GetQuote estimates the execution of a hypothetical market order of
// the given quantity against the current book.
func (s *MarketService) GetQuote(symbol string, side domain.OrderSide, quantity decimal.Decimal) (*QuoteResponse, error) {
	if !s.instruments.Exists(symbol) {
		return nil, domain.ErrInstrumentNotFound
	}
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		return nil, &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if !quantity.IsPositive() {
		return nil, &domain.ValidationError{Message: "quantity must be greater than 0"}
	}

	resp := &QuoteResponse{
		Symbol:            symbol,
		Side:              side,
		QuantityRequested: quantity,
		QuantityAvailable: decimal.Zero,
		QuotedAt:          time.Now(),
	}

	book := s.books.GetOrCreate(symbol)
	remaining := quantity
	total := decimal.Zero

	walk := book.ViewAsks
	if side == domain.OrderSideSell {
		walk = book.ViewBids
	}
	walk(func(entry engine.BookEntry) bool {
		if !remaining.IsPositive() {
			return false
		}
		take := domain.MinQuantity(remaining, entry.Order.RemainingQuantity)
		remaining = remaining.Sub(take)
		total = total.Add(entry.Price.Mul(take))
		resp.QuantityAvailable = resp.QuantityAvailable.Add(take)

		if n := len(resp.PriceLevels); n > 0 && resp.PriceLevels[n-1].Price.Equal(entry.Price) {
			resp.PriceLevels[n-1].Quantity = resp.PriceLevels[n-1].Quantity.Add(take)
		} else {
			resp.PriceLevels = append(resp.PriceLevels, QuotePriceLevel{Price: entry.Price, Quantity: take})
		}
		return true
	})

	if resp.QuantityAvailable.IsPositive() {
		avg := total.Div(resp.QuantityAvailable)
		resp.EstimatedAvgPrice = &avg
		resp.EstimatedTotal = &total
		resp.FullyFillable = resp.QuantityAvailable.Equal(quantity)
	}
	return resp, nil
}

// GetTrades returns up to limit most recent trades for a symbol,
// newest first.
func (s *MarketService) GetTrades(symbol string, limit int) ([]*domain.Trade, error) {
	if !s.instruments.Exists(symbol) {
		return nil, domain.ErrInstrumentNotFound
	}
	if limit <= 0 {
		limit = 50
	}
	return s.tradeStore.Recent(symbol, limit), nil
}

// formatDuration renders a window like "5m" or "1h30m", trimming the
// zero units time.Duration.String keeps.
func formatDuration(d time.Duration) string {
	s := d.String()
	for _, suffix := range []string{"m0s", "h0m"} {
		if len(s) > len(suffix) && s[len(s)-len(suffix):] == suffix {
			s = s[:len(s)-2]
		}
	}
	return s
}
