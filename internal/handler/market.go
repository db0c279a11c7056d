package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/openbourse/openbourse/internal/domain"
	"github.com/openbourse/openbourse/internal/service"
)

// MarketHandler handles HTTP requests for instrument market-data endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

// instrumentResponse is one instrument in the listing response.
type instrumentResponse struct {
	Symbol   string          `json:"symbol"`
	TickSize decimal.Decimal `json:"tick_size"`
	LotSize  decimal.Decimal `json:"lot_size"`
}

// ListInstruments handles GET /instruments.
func (h *MarketHandler) ListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments := h.marketSvc.ListInstruments()
	resp := make([]instrumentResponse, len(instruments))
	for i, in := range instruments {
		resp[i] = instrumentResponse{
			Symbol:   in.Symbol,
			TickSize: in.TickSize,
			LotSize:  in.LotSize,
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"instruments": resp})
}

// priceResponse is the JSON response for GET /instruments/{symbol}/price.
type priceResponse struct {
	Symbol         string           `json:"symbol"`
	CurrentPrice   *decimal.Decimal `json:"current_price"`
	Window         string           `json:"window"`
	TradesInWindow int              `json:"trades_in_window"`
	LastTradeAt    *string          `json:"last_trade_at"`
}

// GetPrice handles GET /instruments/{symbol}/price.
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	price, err := h.marketSvc.GetPrice(symbol)
	if err != nil {
		mapOrderError(w, err)
		return
	}

	resp := priceResponse{
		Symbol:         price.Symbol,
		CurrentPrice:   price.CurrentPrice,
		Window:         price.Window,
		TradesInWindow: price.TradesInWindow,
	}
	if price.LastTradeAt != nil {
		s := price.LastTradeAt.UTC().Format("2006-01-02T15:04:05Z")
		resp.LastTradeAt = &s
	}
	WriteJSON(w, http.StatusOK, resp)
}

// bookLevelResponse is one aggregated price level in the book response.
type bookLevelResponse struct {
	Price         decimal.Decimal `json:"price"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	OrderCount    int             `json:"order_count"`
}

// bookResponse is the JSON response for GET /instruments/{symbol}/book.
type bookResponse struct {
	Symbol     string              `json:"symbol"`
	Bids       []bookLevelResponse `json:"bids"`
	Asks       []bookLevelResponse `json:"asks"`
	Spread     *decimal.Decimal    `json:"spread"`
	SnapshotAt string              `json:"snapshot_at"`
}

// GetBook handles GET /instruments/{symbol}/book.
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	book, err := h.marketSvc.GetBook(symbol)
	if err != nil {
		mapOrderError(w, err)
		return
	}

	resp := bookResponse{
		Symbol:     book.Symbol,
		Bids:       make([]bookLevelResponse, len(book.Bids)),
		Asks:       make([]bookLevelResponse, len(book.Asks)),
		Spread:     book.Spread,
		SnapshotAt: book.SnapshotAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	for i, lvl := range book.Bids {
		resp.Bids[i] = bookLevelResponse{Price: lvl.Price, TotalQuantity: lvl.TotalQuantity, OrderCount: lvl.OrderCount}
	}
	for i, lvl := range book.Asks {
		resp.Asks[i] = bookLevelResponse{Price: lvl.Price, TotalQuantity: lvl.TotalQuantity, OrderCount: lvl.OrderCount}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// quoteLevelResponse is one price level in the quote response.
type quoteLevelResponse struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// quoteResponse is the JSON response for GET /instruments/{symbol}/quote.
type quoteResponse struct {
	Symbol            string               `json:"symbol"`
	Side              string               `json:"side"`
	QuantityRequested decimal.Decimal      `json:"quantity_requested"`
	QuantityAvailable decimal.Decimal      `json:"quantity_available"`
	FullyFillable     bool                 `json:"fully_fillable"`
	EstimatedAvgPrice *decimal.Decimal     `json:"estimated_avg_price"`
	EstimatedTotal    *decimal.Decimal     `json:"estimated_total"`
	PriceLevels       []quoteLevelResponse `json:"price_levels"`
	QuotedAt          string               `json:"quoted_at"`
}

// GetQuote handles GET /instruments/{symbol}/quote?side=buy&quantity=10.
func (h *MarketHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	side := r.URL.Query().Get("side")

	quantity, err := decimal.NewFromString(r.URL.Query().Get("quantity"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "quantity must be a decimal number")
		return
	}

	quote, err := h.marketSvc.GetQuote(symbol, domain.OrderSide(side), quantity)
	if err != nil {
		mapOrderError(w, err)
		return
	}

	resp := quoteResponse{
		Symbol:            quote.Symbol,
		Side:              string(quote.Side),
		QuantityRequested: quote.QuantityRequested,
		QuantityAvailable: quote.QuantityAvailable,
		FullyFillable:     quote.FullyFillable,
		EstimatedAvgPrice: quote.EstimatedAvgPrice,
		EstimatedTotal:    quote.EstimatedTotal,
		PriceLevels:       make([]quoteLevelResponse, len(quote.PriceLevels)),
		QuotedAt:          quote.QuotedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	for i, lvl := range quote.PriceLevels {
		resp.PriceLevels[i] = quoteLevelResponse{Price: lvl.Price, Quantity: lvl.Quantity}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetTrades handles GET /instruments/{symbol}/trades?limit=50.
func (h *MarketHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 50)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a positive integer")
		return
	}

	trades, err := h.marketSvc.GetTrades(symbol, limit)
	if err != nil {
		mapOrderError(w, err)
		return
	}

	resp := make([]map[string]any, len(trades))
	for i, t := range trades {
		resp[i] = map[string]any{
			"trade_id":    t.Seq,
			"symbol":      t.Symbol,
			"price":       t.Price,
			"quantity":    t.Quantity,
			"buyer_id":    t.BuyerID,
			"seller_id":   t.SellerID,
			"executed_at": t.ExecutedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "trades": resp})
}
