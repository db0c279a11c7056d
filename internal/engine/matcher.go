package engine

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openbourse/openbourse/internal/domain"
	"github.com/openbourse/openbourse/internal/journal"
	"github.com/openbourse/openbourse/internal/store"
)

// SubmitRequest represents a fully validated order submission handed
// to the matching engine. Price is zero for market orders.
type SubmitRequest struct {
	AccountID string
	Symbol    string
	Side      domain.OrderSide
	Type      domain.OrderType
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	ExpiresAt *time.Time
}

// Matcher is the matching engine: it consumes order requests, runs
// price-time priority matching against the per-instrument book, and
// applies the results to the entity store and the history journal as
// one logical transaction.
//
// All state-mutating work for one instrument happens under that
// instrument's book write lock, so operations on the same book are
// linearized while different instruments proceed in parallel.
type Matcher struct {
	books       *BookManager
	accounts    *store.AccountStore
	orders      *store.OrderStore
	trades      *store.TradeStore
	instruments *domain.InstrumentRegistry
	journal     *journal.Journal
	logger      *zap.Logger

	now func() time.Time

	idMu      sync.Mutex
	idEntropy *ulid.MonotonicEntropy
}

// NewMatcher creates a Matcher with the given collaborators. External
// fan-out of committed entries is the journal's concern: wire a
// dispatch hub through Journal.OnCommit, not through the matcher.
func NewMatcher(
	books *BookManager,
	accounts *store.AccountStore,
	orders *store.OrderStore,
	trades *store.TradeStore,
	instruments *domain.InstrumentRegistry,
	jnl *journal.Journal,
	logger *zap.Logger,
) *Matcher {
	return &Matcher{
		books:       books,
		accounts:    accounts,
		orders:      orders,
		trades:      trades,
		instruments: instruments,
		journal:     jnl,
		logger:      logger,
		now:         time.Now,
		idEntropy:   ulid.Monotonic(rand.Reader, 0),
	}
}

// Books exposes the book manager for read-only snapshot consumers.
func (m *Matcher) Books() *BookManager {
	return m.books
}

// Submit processes an incoming order as one logical transaction:
// validate, reserve, journal acceptance, match, settle each trade,
// journal the trades, and rest or cancel the remainder. The
// per-instrument write lock is held for the entire pass. On success
// the returned order carries its final status and trades.
func (m *Matcher) Submit(req SubmitRequest) (*domain.Order, error) {
	instrument, err := m.instruments.Get(req.Symbol)
	if err != nil {
		return nil, err
	}
	if err := validateRequest(req, instrument); err != nil {
		return nil, err
	}
	if !m.accounts.Exists(req.AccountID) {
		return nil, domain.ErrAccountNotFound
	}

	book := m.books.GetOrCreate(req.Symbol)
	book.mu.Lock()
	defer book.mu.Unlock()

	if book.halted {
		return nil, domain.ErrEngineHalted
	}

	now := m.now()

	// Reserve funds or holdings from the submitting account. A failed
	// reservation is journaled as a rejection for audit, but mutates
	// nothing else.
	if err := m.reserve(book, req); err != nil {
		if isResourceError(err) {
			m.journalRejection(book, req, err, now)
		}
		return nil, err
	}

	order := &domain.Order{
		ID:                m.newOrderID(now),
		Type:              req.Type,
		AccountID:         req.AccountID,
		Side:              req.Side,
		Symbol:            req.Symbol,
		Price:             req.Price,
		Quantity:          req.Quantity,
		RemainingQuantity: req.Quantity,
		FilledQuantity:    decimal.Zero,
		CancelledQuantity: decimal.Zero,
		Status:            domain.OrderStatusOpen,
		CreatedAt:         now,
		ExpiresAt:         req.ExpiresAt,
		Trades:            []*domain.Trade{},
	}
	m.orders.Create(order)

	events := []domain.Event{{
		Type:      domain.EventOrderAccepted,
		Timestamp: now,
		OrderAccepted: &domain.OrderAcceptedEvent{
			OrderID:   order.ID,
			AccountID: order.AccountID,
			Symbol:    order.Symbol,
			Side:      order.Side,
			OrderType: order.Type,
			Price:     order.Price,
			Quantity:  order.Quantity,
			ExpiresAt: order.ExpiresAt,
		},
	}}

	trades, makers, tradeEvents, err := m.matchLocked(book, order, now)
	if err != nil {
		m.halt(book, err)
		return nil, domain.ErrEngineHalted
	}
	events = append(events, tradeEvents...)

	first, err := m.journal.Append(events)
	if err != nil {
		m.halt(book, err)
		return nil, domain.ErrEngineHalted
	}
	order.Mu.Lock()
	order.AcceptSeq = first
	order.Mu.Unlock()

	// Trades become visible to queries only once their sequence
	// numbers are final, so attach them after the journal assigned
	// seqs, under each order's own lock.
	for i, t := range trades {
		t.Seq = first + 1 + uint64(i)
		m.trades.Append(t)
	}
	order.Mu.Lock()
	order.Trades = append(order.Trades, trades...)
	order.Mu.Unlock()
	for i, t := range trades {
		maker := makers[i]
		maker.Mu.Lock()
		maker.Trades = append(maker.Trades, t)
		maker.Mu.Unlock()
	}

	if err := m.placeRemainderLocked(book, order); err != nil {
		m.halt(book, err)
		return nil, domain.ErrEngineHalted
	}

	return order, nil
}

// Cancel removes a resting order from the book, releases its
// reservation, and journals the cancellation. It returns
// domain.ErrOrderNotFound if the order does not exist or is already
// terminal.
func (m *Matcher) Cancel(orderID string) (*domain.Order, error) {
	return m.cancel(orderID, domain.CancelReasonRequested)
}

// CancelExpired cancels an order whose expiration time has passed.
// Used by the expiry manager; the cancellation is journaled like any
// other so replay reproduces it without consulting the clock.
func (m *Matcher) CancelExpired(orderID string) (*domain.Order, error) {
	return m.cancel(orderID, domain.CancelReasonExpired)
}

func (m *Matcher) cancel(orderID string, reason domain.CancelReason) (*domain.Order, error) {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return nil, domain.ErrOrderNotFound
	}

	book := m.books.GetOrCreate(order.Symbol)
	book.mu.Lock()
	defer book.mu.Unlock()

	if book.halted {
		return nil, domain.ErrEngineHalted
	}
	// Re-check under lock: the order may have filled or been
	// cancelled while we were acquiring it.
	if order.Status.Terminal() {
		return nil, domain.ErrOrderNotFound
	}
	if _, ok := book.Remove(order.ID); !ok {
		return nil, domain.ErrOrderNotFound
	}

	if err := m.releaseRemainder(order); err != nil {
		m.halt(book, err)
		return nil, domain.ErrEngineHalted
	}

	now := m.now()
	order.Mu.Lock()
	order.CancelledQuantity = order.RemainingQuantity
	order.RemainingQuantity = decimal.Zero
	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	order.Mu.Unlock()

	events := []domain.Event{{
		Type:      domain.EventOrderCancelled,
		Timestamp: now,
		OrderCancelled: &domain.OrderCancelledEvent{
			OrderID: order.ID,
			Symbol:  order.Symbol,
			Reason:  reason,
		},
	}}
	if _, err := m.journal.Append(events); err != nil {
		m.halt(book, err)
		return nil, domain.ErrEngineHalted
	}

	return order, nil
}

// matchLocked runs the price-time priority match loop for an
// incoming order against the opposite side of the book. Trade price
// is always the resting order's price (maker priority). Settlement
// errors are invariant violations surfaced to the caller.
//
// Caller holds the book write lock. Trades carry no sequence numbers
// yet and are not attached to any order here; the caller does both
// once the journal batch has assigned seqs. The returned maker slice
// is parallel to the trade slice.
func (m *Matcher) matchLocked(book *Book, taker *domain.Order, now time.Time) ([]*domain.Trade, []*domain.Order, []domain.Event, error) {
	var trades []*domain.Trade
	var makers []*domain.Order
	var events []domain.Event

	for taker.RemainingQuantity.IsPositive() {
		best, found := book.bestFor(taker.Side.Opposite())
		if !found {
			break
		}

		// Limit orders only match while the best opposite price
		// satisfies their limit. Market orders take any price.
		if taker.Type == domain.OrderTypeLimit {
			if taker.Side == domain.OrderSideBuy && best.Price.GreaterThan(taker.Price) {
				break
			}
			if taker.Side == domain.OrderSideSell && best.Price.LessThan(taker.Price) {
				break
			}
		}

		maker := best.Order
		quantity := domain.MinQuantity(taker.RemainingQuantity, maker.RemainingQuantity)
		price := best.Price

		buyer, seller := taker, maker
		if taker.Side == domain.OrderSideSell {
			buyer, seller = maker, taker
		}
		// Limit buys reserved at their limit price per unit; market
		// buys reserved the walked book cost, which is exactly the
		// trade price per unit.
		buyerUnit := buyer.Price
		if buyer.Type == domain.OrderTypeMarket {
			buyerUnit = price
		}

		if err := m.accounts.Settle(buyer.AccountID, seller.AccountID, taker.Symbol, quantity, price, buyerUnit); err != nil {
			return nil, nil, nil, err
		}

		applyFill(taker, quantity)
		applyFill(maker, quantity)

		trade := &domain.Trade{
			Symbol:       taker.Symbol,
			Price:        price,
			Quantity:     quantity,
			TakerOrderID: taker.ID,
			MakerOrderID: maker.ID,
			BuyerID:      buyer.AccountID,
			SellerID:     seller.AccountID,
			ExecutedAt:   now,
		}
		trades = append(trades, trade)
		makers = append(makers, maker)

		events = append(events, domain.Event{
			Type:      domain.EventTradeExecuted,
			Timestamp: now,
			TradeExecuted: &domain.TradeExecutedEvent{
				Symbol:       trade.Symbol,
				Price:        trade.Price,
				Quantity:     trade.Quantity,
				TakerOrderID: trade.TakerOrderID,
				MakerOrderID: trade.MakerOrderID,
				BuyerID:      trade.BuyerID,
				SellerID:     trade.SellerID,
			},
		})

		if maker.RemainingQuantity.IsZero() {
			book.Remove(maker.ID)
		}
	}

	return trades, makers, events, nil
}

// placeRemainderLocked disposes of whatever the match loop left of
// the incoming order: a limit remainder rests on the book, a market
// remainder is cancelled (no resting market orders) and its unused
// holding reservation released.
func (m *Matcher) placeRemainderLocked(book *Book, order *domain.Order) error {
	if !order.RemainingQuantity.IsPositive() {
		return nil
	}

	if order.Type == domain.OrderTypeLimit {
		book.Insert(BookEntry{
			Price:   order.Price,
			Seq:     order.AcceptSeq,
			OrderID: order.ID,
			Order:   order,
		})
		return nil
	}

	// Market remainder: cancel. A market sell reserved its full
	// quantity up front; the unfilled part must be released. A market
	// buy's reservation was consumed exactly by its fills.
	if order.Side == domain.OrderSideSell {
		if err := m.accounts.ReleaseHolding(order.AccountID, order.Symbol, order.RemainingQuantity); err != nil {
			return err
		}
	}
	order.Mu.Lock()
	order.CancelledQuantity = order.RemainingQuantity
	order.RemainingQuantity = decimal.Zero
	order.Status = domain.OrderStatusCancelled
	order.Mu.Unlock()
	return nil
}

// applyFill decrements an order's remaining quantity and advances
// its status.
func applyFill(o *domain.Order, quantity decimal.Decimal) {
	o.Mu.Lock()
	defer o.Mu.Unlock()
	o.RemainingQuantity = o.RemainingQuantity.Sub(quantity)
	o.FilledQuantity = o.FilledQuantity.Add(quantity)
	if o.RemainingQuantity.IsZero() {
		o.Status = domain.OrderStatusFilled
	} else {
		o.Status = domain.OrderStatusPartiallyFilled
	}
}

// reserve earmarks the submitting account's funds or holdings for
// the order. Caller holds the book write lock, so the market-cost
// walk and the subsequent match see the same book.
func (m *Matcher) reserve(book *Book, req SubmitRequest) error {
	switch {
	case req.Type == domain.OrderTypeLimit && req.Side == domain.OrderSideBuy:
		return m.accounts.ReserveCash(req.AccountID, domain.Notional(req.Price, req.Quantity))
	case req.Type == domain.OrderTypeLimit && req.Side == domain.OrderSideSell:
		return m.accounts.ReserveHolding(req.AccountID, req.Symbol, req.Quantity)
	case req.Side == domain.OrderSideBuy:
		if book.AskCount() == 0 {
			return domain.ErrNoLiquidity
		}
		return m.accounts.ReserveCash(req.AccountID, estimateMarketCost(book, req.Quantity))
	default:
		if book.BidCount() == 0 {
			return domain.ErrNoLiquidity
		}
		return m.accounts.ReserveHolding(req.AccountID, req.Symbol, req.Quantity)
	}
}

// releaseRemainder returns a resting order's reservation on cancel.
func (m *Matcher) releaseRemainder(order *domain.Order) error {
	if order.Side == domain.OrderSideBuy {
		return m.accounts.ReleaseCash(order.AccountID, domain.Notional(order.Price, order.RemainingQuantity))
	}
	return m.accounts.ReleaseHolding(order.AccountID, order.Symbol, order.RemainingQuantity)
}

// estimateMarketCost walks the ask side and returns the cost of
// filling up to quantity against current liquidity.
func estimateMarketCost(book *Book, quantity decimal.Decimal) decimal.Decimal {
	cost := decimal.Zero
	remaining := quantity
	book.WalkAsks(func(entry BookEntry) bool {
		if !remaining.IsPositive() {
			return false
		}
		fill := domain.MinQuantity(remaining, entry.Order.RemainingQuantity)
		cost = cost.Add(entry.Price.Mul(fill))
		remaining = remaining.Sub(fill)
		return remaining.IsPositive()
	})
	return cost
}

// journalRejection records a failed reservation for audit. Journal
// failure here still halts: a journal that cannot accept writes
// cannot order any future transaction either.
func (m *Matcher) journalRejection(book *Book, req SubmitRequest, cause error, now time.Time) {
	events := []domain.Event{{
		Type:      domain.EventOrderRejected,
		Timestamp: now,
		OrderRejected: &domain.OrderRejectedEvent{
			AccountID: req.AccountID,
			Symbol:    req.Symbol,
			Side:      req.Side,
			OrderType: req.Type,
			Price:     req.Price,
			Quantity:  req.Quantity,
			Reason:    cause.Error(),
		},
	}}
	if _, err := m.journal.Append(events); err != nil {
		m.halt(book, err)
	}
}

// validateRequest checks quantity and price against the instrument's
// tick and lot sizes. Range and scale were already validated at the
// service boundary; tick and lot are per-instrument and belong here.
func validateRequest(req SubmitRequest, instrument *domain.Instrument) error {
	if err := domain.CheckRange("quantity", req.Quantity); err != nil {
		return err
	}
	if err := domain.CheckStep("quantity", req.Quantity, instrument.LotSize); err != nil {
		return err
	}
	if req.Type == domain.OrderTypeLimit {
		if err := domain.CheckRange("price", req.Price); err != nil {
			return err
		}
		if err := domain.CheckStep("price", req.Price, instrument.TickSize); err != nil {
			return err
		}
	}
	return nil
}

// isResourceError reports whether err is a reservation failure that
// should be journaled as a rejection.
func isResourceError(err error) bool {
	return errors.Is(err, domain.ErrInsufficientFunds) ||
		errors.Is(err, domain.ErrInsufficientHoldings) ||
		errors.Is(err, domain.ErrNoLiquidity)
}

// halt stops all further mutations for the instrument. Detected
// desync between journal and applied state is a correctness bug, not
// a user error; continuing would corrupt balances silently.
func (m *Matcher) halt(book *Book, err error) {
	book.halted = true
	m.logger.Error("matching halted on invariant violation",
		zap.String("symbol", book.symbol),
		zap.Error(err),
	)
}

// Halted reports whether the instrument's matching has been stopped.
func (m *Matcher) Halted(symbol string) bool {
	book := m.books.GetOrCreate(symbol)
	book.mu.RLock()
	defer book.mu.RUnlock()
	return book.halted
}

// newOrderID generates a lexicographically sortable order ID.
func (m *Matcher) newOrderID(now time.Time) string {
	m.idMu.Lock()
	defer m.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), m.idEntropy).String()
}
