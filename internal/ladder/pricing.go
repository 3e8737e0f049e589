package ladder

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type SellPolicy string

const (
	// SellFixed sells at buy price plus a fixed profit step.
	SellFixed SellPolicy = "FIXED"
	// SellNextGrid sells at the next higher grid price.
	SellNextGrid SellPolicy = "NEXTGRID"
	// SellPercentage sells at buy price marked up by a percentage.
	SellPercentage SellPolicy = "PERCENTAGE"
)

// Item is the per-symbol ladder configuration. Read-only during a cycle;
// built once at process start from the strategy configuration.
type Item struct {
	Symbol             string
	StartPrice         decimal.Decimal
	Coordinates        Table
	SellPolicy         SellPolicy
	SellStep           decimal.Decimal
	MaxRestingBuys     int
	QuantityMultiplier int64
	Commission         Commission
}

// NewStepper builds a fresh grid walker for the item. Each reconciliation
// cycle gets its own; the memoized walk is not shared across goroutines.
func (it Item) NewStepper() *Stepper {
	return NewStepper(it.StartPrice, it.Coordinates)
}

// SellPriceFor derives the sell price for a buy price per the item's policy.
// Only the NEXTGRID policy can fail, when the buy price is not a grid point.
func (s *Stepper) SellPriceFor(it Item, buyPrice decimal.Decimal) (decimal.Decimal, error) {
	switch it.SellPolicy {
	case SellFixed:
		return buyPrice.Add(it.SellStep).Round(PricePrecision), nil
	case SellPercentage:
		return buyPrice.Mul(one.Add(it.SellStep.Div(hundred))).Round(PricePrecision), nil
	case SellNextGrid:
		return s.NextGridPrice(buyPrice)
	default:
		return decimal.Zero, fmt.Errorf("unsupported sell policy %q", it.SellPolicy)
	}
}

// BuyPriceFor is the inverse of SellPriceFor. For NEXTGRID across a
// multiplier boundary the inversion is not exact: the backward delta at the
// sell price can differ from the forward delta that produced it.
func (s *Stepper) BuyPriceFor(it Item, sellPrice decimal.Decimal) (decimal.Decimal, error) {
	switch it.SellPolicy {
	case SellFixed:
		return sellPrice.Sub(it.SellStep).Round(PricePrecision), nil
	case SellPercentage:
		return sellPrice.Div(one.Add(it.SellStep.Div(hundred))).Round(PricePrecision), nil
	case SellNextGrid:
		return s.PreviousGridPrice(sellPrice), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported sell policy %q", it.SellPolicy)
	}
}
