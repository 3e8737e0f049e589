package broker

import "errors"

// Error kinds shared by brokerage implementations. REST clients classify
// upstream API errors into these so the engine can branch without knowing
// broker-specific codes.
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderRejected     = errors.New("order rejected")
	ErrDuplicateOrder    = errors.New("duplicate order")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRateLimited       = errors.New("rate limited")
)
