package core

import "fmt"

// HeldQuantity is the number of shares of a symbol currently owned. The
// broker response may omit the position entirely, and a missing value must
// never be read as zero, so the unpopulated state is explicit: the zero
// value reports ErrPositionUnverified instead of a quantity.
type HeldQuantity struct {
	shares    int64
	populated bool
}

// HeldShares wraps a quantity that the broker explicitly reported.
func HeldShares(n int64) HeldQuantity {
	return HeldQuantity{shares: n, populated: true}
}

// NoPosition is the explicit "symbol absent from portfolio" value.
func NoPosition() HeldQuantity {
	return HeldQuantity{shares: 0, populated: true}
}

func (h HeldQuantity) Populated() bool {
	return h.populated
}

// Shares returns the held quantity, or ErrPositionUnverified when the value
// was never populated or is negative.
func (h HeldQuantity) Shares() (int64, error) {
	if !h.populated {
		return 0, ErrPositionUnverified
	}
	if h.shares < 0 {
		return 0, fmt.Errorf("%w: negative quantity %d", ErrPositionUnverified, h.shares)
	}
	return h.shares, nil
}
