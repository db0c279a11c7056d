package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// MarketConfig is the seed state of the exchange: the tradable
// instruments and the initial account balances. It is loaded from a
// JSON file before journal replay, so the journal plus this file
// fully determine engine state.
type MarketConfig struct {
	Instruments []InstrumentConfig `json:"instruments"`
	Accounts    []AccountConfig    `json:"accounts"`
}

// InstrumentConfig declares one tradable instrument.
type InstrumentConfig struct {
	Symbol   string          `json:"symbol"`
	TickSize decimal.Decimal `json:"tick_size"`
	LotSize  decimal.Decimal `json:"lot_size"`
}

// AccountConfig declares one account and its opening balances.
type AccountConfig struct {
	ID       string                     `json:"id"`
	Cash     decimal.Decimal            `json:"cash"`
	Holdings map[string]decimal.Decimal `json:"holdings"`
}

// LoadMarket reads and validates a market configuration file.
func LoadMarket(path string) (*MarketConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read market file: %w", err)
	}

	var mc MarketConfig
	if err := json.Unmarshal(data, &mc); err != nil {
		return nil, fmt.Errorf("parse market file: %w", err)
	}
	if err := mc.validate(); err != nil {
		return nil, fmt.Errorf("invalid market file: %w", err)
	}
	return &mc, nil
}

func (mc *MarketConfig) validate() error {
	if len(mc.Instruments) == 0 {
		return fmt.Errorf("no instruments declared")
	}

	symbols := make(map[string]struct{}, len(mc.Instruments))
	for _, inst := range mc.Instruments {
		if inst.Symbol == "" {
			return fmt.Errorf("instrument with empty symbol")
		}
		if _, ok := symbols[inst.Symbol]; ok {
			return fmt.Errorf("duplicate instrument %q", inst.Symbol)
		}
		symbols[inst.Symbol] = struct{}{}
		if !inst.TickSize.IsPositive() {
			return fmt.Errorf("instrument %q: tick_size must be positive", inst.Symbol)
		}
		if !inst.LotSize.IsPositive() {
			return fmt.Errorf("instrument %q: lot_size must be positive", inst.Symbol)
		}
	}

	ids := make(map[string]struct{}, len(mc.Accounts))
	for _, acct := range mc.Accounts {
		if acct.ID == "" {
			return fmt.Errorf("account with empty id")
		}
		if _, ok := ids[acct.ID]; ok {
			return fmt.Errorf("duplicate account %q", acct.ID)
		}
		ids[acct.ID] = struct{}{}
		if acct.Cash.IsNegative() {
			return fmt.Errorf("account %q: cash must not be negative", acct.ID)
		}
		for symbol, qty := range acct.Holdings {
			if _, ok := symbols[symbol]; !ok {
				return fmt.Errorf("account %q: holding for unknown instrument %q", acct.ID, symbol)
			}
			if qty.IsNegative() {
				return fmt.Errorf("account %q: holding %q must not be negative", acct.ID, symbol)
			}
		}
	}
	return nil
}
