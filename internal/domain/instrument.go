package domain

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Instrument is a tradable instrument. Identity is immutable after
// market setup; the market-state view (best bid/ask) is derived from
// the order book and never stored here.
type Instrument struct {
	Symbol   string
	TickSize decimal.Decimal // minimum price increment
	LotSize  decimal.Decimal // minimum quantity increment
}

// InstrumentRegistry holds the instruments configured at market setup.
// Safe for concurrent use.
type InstrumentRegistry struct {
	mu          sync.RWMutex
	instruments map[string]*Instrument
}

// NewInstrumentRegistry creates an empty InstrumentRegistry.
func NewInstrumentRegistry() *InstrumentRegistry {
	return &InstrumentRegistry{
		instruments: make(map[string]*Instrument),
	}
}

// Register adds an instrument to the registry.
func (r *InstrumentRegistry) Register(in *Instrument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instruments[in.Symbol] = in
}

// Get retrieves an instrument by symbol. It returns
// ErrInstrumentNotFound if the symbol is unknown.
func (r *InstrumentRegistry) Get(symbol string) (*Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	in, ok := r.instruments[symbol]
	if !ok {
		return nil, ErrInstrumentNotFound
	}
	return in, nil
}

// Exists returns true if the symbol has been registered.
func (r *InstrumentRegistry) Exists(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.instruments[symbol]
	return ok
}

// List returns all registered instruments in unspecified order.
func (r *InstrumentRegistry) List() []*Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Instrument, 0, len(r.instruments))
	for _, in := range r.instruments {
		out = append(out, in)
	}
	return out
}
