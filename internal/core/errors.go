package core

import "errors"

var (
	// ErrInvalidCoordinates indicates a price coordinate table that cannot
	// produce a terminating ladder (overlap, non-positive fixed step, or a
	// multiplier segment anchored at zero).
	ErrInvalidCoordinates = errors.New("invalid price coordinates")
	// ErrUnreachableGridPrice indicates a forward step was requested for a
	// price that is not on the backward grid walked from the start price.
	ErrUnreachableGridPrice = errors.New("unreachable grid price")
	// ErrLadderExhausted indicates the ladder walk ran out of positive prices
	// or quantities before all legs were generated.
	ErrLadderExhausted = errors.New("ladder exhausted")
	// ErrPositionUnverified indicates the broker did not populate the held
	// quantity for a symbol; trading on it must not proceed.
	ErrPositionUnverified = errors.New("position quantity unverified")
)
