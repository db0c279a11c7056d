package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrAccountAlreadyExists = errors.New("account_already_exists")
	ErrAccountNotFound      = errors.New("account_not_found")
	ErrInstrumentNotFound   = errors.New("instrument_not_found")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrInsufficientHoldings = errors.New("insufficient_holdings")
	ErrNoLiquidity          = errors.New("no_liquidity")

	// ErrEngineHalted is returned for every mutation on an instrument
	// whose matching has been stopped after an invariant violation.
	ErrEngineHalted = errors.New("engine_halted")

	// ErrStateDesync indicates that a release or settle found less
	// reserved than it was asked to move. It always means the book,
	// journal, and entity store have diverged; the engine halts the
	// instrument rather than continue from inconsistent state.
	ErrStateDesync = errors.New("state_desync")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
