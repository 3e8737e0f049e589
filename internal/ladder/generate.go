package ladder

import (
	"fmt"

	"ladder-trading/internal/core"
)

// Generate computes the full target ladder for an item: sell orders sized to
// the held quantity first, then exactly MaxRestingBuys resting buy orders,
// all referenced as core.NewOrderRef.
//
// The sell quantities always sum to exactly heldShares. When the held
// quantity does not divide evenly across grid steps, the last sell order is
// split and both it and the first buy order are flagged partial.
func Generate(it Item, heldShares int64) ([]core.TargetOrder, error) {
	if heldShares < 0 {
		return nil, fmt.Errorf("%w: held quantity %d", core.ErrPositionUnverified, heldShares)
	}
	st := it.NewStepper()

	orders := make([]core.TargetOrder, 0, it.MaxRestingBuys+4)
	price := it.StartPrice
	qty := st.Table().QuantityAt(price) * it.QuantityMultiplier
	total := int64(0)
	firstBuyPartial := false

	for steps := 0; ; steps++ {
		if qty <= 0 || price.Sign() <= 0 || steps >= maxBackwardSteps {
			return nil, fmt.Errorf("%w: %d of %d shares unassigned at price %s",
				core.ErrLadderExhausted, heldShares-total, heldShares, price)
		}
		total += qty
		if total > heldShares {
			over := total - heldShares
			if over == qty {
				// Prior step covered the holding exactly (or nothing is
				// held); no partial sell.
				break
			}
			sellPrice, err := st.SellPriceFor(it, price)
			if err != nil {
				return nil, err
			}
			orders = append(orders, core.TargetOrder{
				OrderRef:      core.NewOrderRef,
				Symbol:        it.Symbol,
				LimitPrice:    sellPrice,
				Quantity:      qty - over,
				PartialFilled: true,
				Side:          core.Sell,
			})
			firstBuyPartial = true
			// The remainder becomes the first resting buy.
			qty = over
			break
		}
		sellPrice, err := st.SellPriceFor(it, price)
		if err != nil {
			return nil, err
		}
		orders = append(orders, core.TargetOrder{
			OrderRef:   core.NewOrderRef,
			Symbol:     it.Symbol,
			LimitPrice: sellPrice,
			Quantity:   qty,
			Side:       core.Sell,
		})
		price = st.PreviousGridPrice(price)
		qty = st.Table().QuantityAt(price) * it.QuantityMultiplier
	}

	for i := 0; i < it.MaxRestingBuys; i++ {
		if qty <= 0 || price.Sign() <= 0 {
			return nil, fmt.Errorf("%w: no grid left for buy leg %d at price %s",
				core.ErrLadderExhausted, i+1, price)
		}
		orders = append(orders, core.TargetOrder{
			OrderRef:      core.NewOrderRef,
			Symbol:        it.Symbol,
			LimitPrice:    price,
			Quantity:      qty,
			PartialFilled: firstBuyPartial,
			Side:          core.Buy,
		})
		firstBuyPartial = false
		price = st.PreviousGridPrice(price)
		qty = st.Table().QuantityAt(price) * it.QuantityMultiplier
	}

	for i := range orders {
		if err := it.Commission.addToSell(st, it, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}
