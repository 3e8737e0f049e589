package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// NewOrderRef marks a target order that has not been handed to the broker
// yet. Orders carrying it are candidates for placement; an order with any
// other ref is already known to the broker.
const NewOrderRef = "NEW"

// TargetOrder is one leg of the computed ladder. Value equality over every
// field except OrderRef is what the reconciler compares on.
type TargetOrder struct {
	OrderRef      string
	Symbol        string
	LimitPrice    decimal.Decimal
	Quantity      int64
	PartialFilled bool
	Side          Side
}

// OpenOrder is the minimal view of an order currently resting in the
// broker's book, reduced to the same shape as TargetOrder.
type OpenOrder struct {
	BrokerID      string
	Symbol        string
	LimitPrice    decimal.Decimal
	Quantity      int64
	PartialFilled bool
	Side          Side
}

func (o TargetOrder) String() string {
	return fmt.Sprintf("[%s, %s, %d, %s, %s, %s]", o.Symbol, o.LimitPrice.String(), o.Quantity, o.OrderRef, o.Side, partialLabel(o.PartialFilled))
}

func (o OpenOrder) String() string {
	return fmt.Sprintf("[%s, %s, %d, %s, %s, %s]", o.Symbol, o.LimitPrice.String(), o.Quantity, o.BrokerID, o.Side, partialLabel(o.PartialFilled))
}

func partialLabel(partial bool) string {
	if partial {
		return "PARTIAL"
	}
	return "FULL"
}
