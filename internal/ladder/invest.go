package ladder

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ladder-trading/internal/core"
)

// MaxInvestment sums the capital needed to fill every buy level of the
// ladder, walking backward from the start price until the grid reaches zero.
// A pre-trade sizing tool; not part of the live cycle.
func MaxInvestment(it Item) (decimal.Decimal, error) {
	st := it.NewStepper()
	mult := decimal.NewFromInt(it.QuantityMultiplier)

	price := it.StartPrice
	total := decimal.Zero
	for steps := 0; price.Sign() > 0; steps++ {
		if steps >= maxBackwardSteps {
			return decimal.Zero, fmt.Errorf("%w: projection from %s exceeded %d steps",
				core.ErrInvalidCoordinates, it.StartPrice, maxBackwardSteps)
		}
		qty := decimal.NewFromInt(st.Table().QuantityAt(price))
		total = total.Add(price.Mul(qty).Mul(mult)).Round(PricePrecision)
		price = st.PreviousGridPrice(price)
	}
	return total, nil
}
