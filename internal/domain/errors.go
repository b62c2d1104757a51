package domain

import "errors"

// All failures of public trading operations are recoverable and typed.
// Callers branch with errors.Is against the sentinels below, or errors.As
// against the structured kinds for detail.
var (
	// ErrInsufficientBalance is returned when a buy would overdraw the
	// available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientPosition is returned when a sell exceeds the held quantity.
	ErrInsufficientPosition = errors.New("insufficient position")

	// ErrOrderNotFound is returned for operations on an unknown order ID.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidStateTransition is returned when an order in a terminal
	// status is asked to change (e.g. cancelling a filled order).
	ErrInvalidStateTransition = errors.New("invalid order state transition")

	// ErrRiskLimitExceeded is the sentinel wrapped by every risk-gate rejection.
	ErrRiskLimitExceeded = errors.New("risk limit exceeded")
)

// ValidationError reports malformed input to a public operation: bad
// quantity or price, unknown symbol, missing limit price.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed [" + e.Field + "]: " + e.Reason
}

// RiskLimitError identifies which risk limit rejected a proposed trade.
// Limit is one of "daily_trades", "daily_loss", "position_size",
// "min_trade_amount".
type RiskLimitError struct {
	Limit  string
	Reason string
}

func (e *RiskLimitError) Error() string {
	return "risk limit exceeded [" + e.Limit + "]: " + e.Reason
}

func (e *RiskLimitError) Unwrap() error {
	return ErrRiskLimitExceeded
}

// StateTransitionError carries the order and status that blocked a
// requested transition.
type StateTransitionError struct {
	OrderID string
	Status  string
}

func (e *StateTransitionError) Error() string {
	return "order " + e.OrderID + " is " + e.Status + ": " + ErrInvalidStateTransition.Error()
}

func (e *StateTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}
