package ladder

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"ladder-trading/internal/core"
)

type StepType string

const (
	// StepFixed steps backward by a constant amount inside the segment.
	StepFixed StepType = "FIXED"
	// StepMultiplier steps backward by floor(price/segmentStart)+1, so the
	// interval widens as the price climbs above the segment start.
	StepMultiplier StepType = "MULTIPLIER"
)

// PriceCoordinate is one segment of the price axis: from StartPrice up to
// the next higher coordinate, the per-order quantity and the backward step
// rule are constant.
type PriceCoordinate struct {
	StartPrice decimal.Decimal
	Quantity   int64
	StepType   StepType
	FixedStep  decimal.Decimal
}

// Table is a non-overlapping partition of the price axis, held sorted by
// StartPrice descending. Immutable once built.
type Table struct {
	coords []PriceCoordinate
}

// NewTable sorts and validates the coordinates. Validation failures wrap
// core.ErrInvalidCoordinates and are fatal at configuration time: a bad
// table makes the stepping algorithms loop forever.
func NewTable(coords []PriceCoordinate) (Table, error) {
	if len(coords) == 0 {
		return Table{}, fmt.Errorf("%w: at least one coordinate required", core.ErrInvalidCoordinates)
	}
	sorted := make([]PriceCoordinate, len(coords))
	copy(sorted, coords)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartPrice.Cmp(sorted[j].StartPrice) > 0
	})
	for i, c := range sorted {
		if c.StartPrice.Sign() < 0 {
			return Table{}, fmt.Errorf("%w: start price %s is negative", core.ErrInvalidCoordinates, c.StartPrice)
		}
		if i > 0 && c.StartPrice.Cmp(sorted[i-1].StartPrice) == 0 {
			return Table{}, fmt.Errorf("%w: duplicate start price %s", core.ErrInvalidCoordinates, c.StartPrice)
		}
		if c.Quantity <= 0 {
			return Table{}, fmt.Errorf("%w: quantity must be positive at start price %s", core.ErrInvalidCoordinates, c.StartPrice)
		}
		switch c.StepType {
		case StepFixed:
			if c.FixedStep.Sign() <= 0 {
				return Table{}, fmt.Errorf("%w: fixed step must be > 0 at start price %s", core.ErrInvalidCoordinates, c.StartPrice)
			}
		case StepMultiplier:
			if c.StartPrice.Sign() <= 0 {
				return Table{}, fmt.Errorf("%w: multiplier step requires start price > 0", core.ErrInvalidCoordinates)
			}
		default:
			return Table{}, fmt.Errorf("%w: unsupported step type %q", core.ErrInvalidCoordinates, c.StepType)
		}
	}
	return Table{coords: sorted}, nil
}

// QuantityAt returns the quantity of the segment covering price, or 0 when
// the price is below every segment.
func (t Table) QuantityAt(price decimal.Decimal) int64 {
	if c, ok := t.covering(price); ok {
		return c.Quantity
	}
	return 0
}

// covering returns the first coordinate (in descending order) whose start
// price does not exceed the given price.
func (t Table) covering(price decimal.Decimal) (PriceCoordinate, bool) {
	for _, c := range t.coords {
		if price.Cmp(c.StartPrice) >= 0 {
			return c, true
		}
	}
	return PriceCoordinate{}, false
}

// Coordinates returns a copy of the sorted segments.
func (t Table) Coordinates() []PriceCoordinate {
	out := make([]PriceCoordinate, len(t.coords))
	copy(out, t.coords)
	return out
}

func (t Table) Len() int {
	return len(t.coords)
}
