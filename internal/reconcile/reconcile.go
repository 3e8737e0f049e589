// Package reconcile decides which orders to place and which to cancel so
// the broker's book converges on the computed ladder.
//
// The policy is all-or-nothing: any drift between the target ladder and the
// open orders triggers a full teardown-and-rebuild. Broker cancellation is
// not instantaneous and order ids are not tracked across cycles, so partial
// patching risks duplicate or orphaned orders; full replace is the safe,
// auditable choice.
package reconcile

import (
	"sort"
	"strings"

	"ladder-trading/internal/core"
)

// Reconcile compares the target ladder against the open-order snapshot.
// Pure decision function, no side effects. Returns:
//
//   - open book empty: place everything, cancel nothing
//   - count mismatch or any unmatched order: full replace
//   - exact match: nothing to do
//
// toPlace comes back sorted descending by limit price (high sells placed
// first) and toCancel ascending (low resting orders cancelled first); the
// caller relies on this ordering to sequence broker calls.
func Reconcile(target []core.TargetOrder, open []core.OpenOrder) (toPlace []core.TargetOrder, toCancel []core.OpenOrder) {
	if len(open) == 0 {
		return SortForPlacement(target), nil
	}
	if len(open) != len(target) {
		return SortForPlacement(target), SortForCancellation(open)
	}

	sorted := SortForPlacement(target)
	for _, want := range sorted {
		if !matchAny(want, open) {
			return sorted, SortForCancellation(open)
		}
	}
	return nil, nil
}

func matchAny(want core.TargetOrder, open []core.OpenOrder) bool {
	for _, have := range open {
		if matches(want, have) {
			return true
		}
	}
	return false
}

// matches compares everything but the order refs: symbol (case-insensitive),
// limit price (exact equality after rounding), quantity, partial flag, side.
func matches(want core.TargetOrder, have core.OpenOrder) bool {
	return strings.EqualFold(want.Symbol, have.Symbol) &&
		want.LimitPrice.Cmp(have.LimitPrice) == 0 &&
		want.Quantity == have.Quantity &&
		want.PartialFilled == have.PartialFilled &&
		want.Side == have.Side
}

// SortForPlacement returns a copy sorted descending by limit price, sell
// legs ahead of buy legs on equal prices.
func SortForPlacement(orders []core.TargetOrder) []core.TargetOrder {
	out := make([]core.TargetOrder, len(orders))
	copy(out, orders)
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].LimitPrice.Cmp(out[j].LimitPrice); c != 0 {
			return c > 0
		}
		return out[i].Side == core.Sell && out[j].Side == core.Buy
	})
	return out
}

// SortForCancellation returns a copy sorted ascending by limit price.
func SortForCancellation(orders []core.OpenOrder) []core.OpenOrder {
	out := make([]core.OpenOrder, len(orders))
	copy(out, orders)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LimitPrice.Cmp(out[j].LimitPrice) < 0
	})
	return out
}
