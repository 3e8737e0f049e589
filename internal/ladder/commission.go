package ladder

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ladder-trading/internal/core"
)

type CommissionType string

const (
	// CommissionNone leaves generated prices untouched.
	CommissionNone CommissionType = ""
	// CommissionFixed charges a flat amount per order.
	CommissionFixed CommissionType = "FIXED"
	// CommissionPercentage charges a percentage of the traded notional.
	CommissionPercentage CommissionType = "PERCENTAGE"
)

// Commission is the account-level fee model. Every sell leg's limit price is
// raised by the per-share slice of the buy-side and sell-side fees, so a
// filled round trip recovers both commissions on top of the grid profit.
type Commission struct {
	Type CommissionType
	Buy  decimal.Decimal
	Sell decimal.Decimal
}

func (c Commission) Validate() error {
	switch c.Type {
	case CommissionNone, CommissionFixed, CommissionPercentage:
	default:
		return fmt.Errorf("commission type must be FIXED or PERCENTAGE")
	}
	if c.Buy.Sign() < 0 {
		return fmt.Errorf("buy commission must be >= 0")
	}
	if c.Sell.Sign() < 0 {
		return fmt.Errorf("sell commission must be >= 0")
	}
	return nil
}

// addToSell adjusts one order in place. Buy legs pass through unchanged:
// raising a resting buy price would move it onto a different grid point.
//
// FIXED spreads each flat fee across the order quantity, rounding the
// adjusted price after each fee. PERCENTAGE takes the buy fee on the leg's
// buy-side notional (the grid price the shares were acquired at) and the
// sell fee on the sell notional, rounds each per-share slice, and adds the
// sum without re-rounding.
func (c Commission) addToSell(st *Stepper, it Item, ord *core.TargetOrder) error {
	if ord.Side != core.Sell || ord.Quantity <= 0 {
		return nil
	}
	qty := decimal.NewFromInt(ord.Quantity)
	switch c.Type {
	case CommissionNone:
		return nil
	case CommissionFixed:
		if c.Buy.Sign() > 0 {
			ord.LimitPrice = ord.LimitPrice.Add(c.Buy.Div(qty)).Round(PricePrecision)
		}
		if c.Sell.Sign() > 0 {
			ord.LimitPrice = ord.LimitPrice.Add(c.Sell.Div(qty)).Round(PricePrecision)
		}
		return nil
	case CommissionPercentage:
		fee := decimal.Zero
		if c.Buy.Sign() > 0 {
			buyPrice, err := st.BuyPriceFor(it, ord.LimitPrice)
			if err != nil {
				return err
			}
			fee = fee.Add(buyPrice.Mul(c.Buy).Div(hundred).Div(qty).Round(PricePrecision))
		}
		if c.Sell.Sign() > 0 {
			fee = fee.Add(ord.LimitPrice.Mul(c.Sell).Div(hundred).Div(qty).Round(PricePrecision))
		}
		ord.LimitPrice = ord.LimitPrice.Add(fee)
		return nil
	default:
		return fmt.Errorf("unsupported commission type %q", c.Type)
	}
}
