// Package broker defines the brokerage surface the trading engine drives.
package broker

import (
	"context"

	"ladder-trading/internal/core"
)

type Brokerage interface {
	Name() string
	// Position reports the held share count for a symbol. Implementations
	// must return an unpopulated HeldQuantity rather than zero when the
	// upstream response cannot be trusted.
	Position(ctx context.Context, symbol string) (core.HeldQuantity, error)
	OpenOrders(ctx context.Context, symbol string) ([]core.OpenOrder, error)
	PlaceOrder(ctx context.Context, order core.TargetOrder) (core.OpenOrder, error)
	CancelOrder(ctx context.Context, symbol, brokerID string) error
}
