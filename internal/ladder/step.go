package ladder

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ladder-trading/internal/core"
)

// PricePrecision is the number of decimal places every stepped price is
// rounded to. Rounding after each arithmetic step keeps repeated stepping
// from drifting.
const PricePrecision = 2

// maxBackwardSteps bounds every grid walk. A valid table reaches zero long
// before this; hitting the bound means the table is malformed in a way
// validation could not see (e.g. a fixed step that rounds to a no-op).
const maxBackwardSteps = 100000

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Stepper walks the price grid of one symbol. Backward steps are pure
// arithmetic; forward steps have no closed form for multiplier segments, so
// the stepper re-derives them by searching the backward walk from the start
// price, memoizing the walk since it is reused every cycle.
type Stepper struct {
	start decimal.Decimal
	table Table
	walk  []decimal.Decimal
}

func NewStepper(start decimal.Decimal, table Table) *Stepper {
	return &Stepper{
		start: start,
		table: table,
		walk:  []decimal.Decimal{start},
	}
}

func (s *Stepper) Start() decimal.Decimal {
	return s.start
}

func (s *Stepper) Table() Table {
	return s.table
}

// PreviousGridPrice returns the next lower grid price. Prices below every
// segment step to zero.
func (s *Stepper) PreviousGridPrice(price decimal.Decimal) decimal.Decimal {
	coord, ok := s.table.covering(price)
	if !ok {
		return decimal.Zero
	}
	return price.Sub(s.delta(price, coord)).Round(PricePrecision)
}

// NextGridPrice returns the next higher grid price. At the start price the
// forward delta is computed directly; below it the price is re-derived by
// walking backward from the start until the walk lands on it, returning the
// prior grid point. The walk is bounded and fails with
// core.ErrUnreachableGridPrice when the price is not a backward grid point
// of this stepper.
func (s *Stepper) NextGridPrice(price decimal.Decimal) (decimal.Decimal, error) {
	switch price.Cmp(s.start) {
	case 0:
		coord, ok := s.table.covering(price)
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: no segment covers start price %s", core.ErrUnreachableGridPrice, price)
		}
		return price.Add(s.delta(price, coord)).Round(PricePrecision), nil
	case 1:
		return decimal.Zero, fmt.Errorf("%w: %s is above start price %s", core.ErrUnreachableGridPrice, price, s.start)
	}

	prev := s.start
	for i := 1; i < maxBackwardSteps; i++ {
		cur := s.grid(i)
		switch {
		case cur.Cmp(price) == 0:
			return prev, nil
		case cur.Cmp(price) < 0 || cur.Sign() <= 0:
			return decimal.Zero, fmt.Errorf("%w: %s is not on the grid from %s", core.ErrUnreachableGridPrice, price, s.start)
		}
		prev = cur
	}
	return decimal.Zero, fmt.Errorf("%w: search for %s exceeded %d steps", core.ErrUnreachableGridPrice, price, maxBackwardSteps)
}

// grid returns the i-th backward grid price from the start, extending the
// memoized walk as needed.
func (s *Stepper) grid(i int) decimal.Decimal {
	for len(s.walk) <= i {
		s.walk = append(s.walk, s.PreviousGridPrice(s.walk[len(s.walk)-1]))
	}
	return s.walk[i]
}

func (s *Stepper) delta(price decimal.Decimal, coord PriceCoordinate) decimal.Decimal {
	if coord.StepType == StepMultiplier {
		return price.Div(coord.StartPrice).Floor().Add(one)
	}
	return coord.FixedStep
}
