// Package paper is an in-memory brokerage for dry runs. Orders rest in the
// book and never fill; positions are seeded at construction.
package paper

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"ladder-trading/internal/broker"
	"ladder-trading/internal/core"
)

type Broker struct {
	mu        sync.Mutex
	nextID    int64
	positions map[string]int64
	orders    map[string]core.OpenOrder
}

func New(positions map[string]int64) *Broker {
	held := make(map[string]int64, len(positions))
	for sym, qty := range positions {
		held[sym] = qty
	}
	return &Broker{
		nextID:    1,
		positions: held,
		orders:    make(map[string]core.OpenOrder),
	}
}

func (b *Broker) Name() string { return "paper" }

func (b *Broker) Position(_ context.Context, symbol string) (core.HeldQuantity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return core.HeldShares(b.positions[symbol]), nil
}

func (b *Broker) OpenOrders(_ context.Context, symbol string) ([]core.OpenOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	orders := make([]core.OpenOrder, 0, len(b.orders))
	for _, ord := range b.orders {
		if ord.Symbol == symbol {
			orders = append(orders, ord)
		}
	}
	return orders, nil
}

func (b *Broker) PlaceOrder(_ context.Context, order core.TargetOrder) (core.OpenOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := strconv.FormatInt(b.nextID, 10)
	b.nextID++
	open := core.OpenOrder{
		BrokerID:      id,
		Symbol:        order.Symbol,
		LimitPrice:    order.LimitPrice,
		Quantity:      order.Quantity,
		PartialFilled: order.PartialFilled,
		Side:          order.Side,
	}
	b.orders[id] = open
	return open, nil
}

func (b *Broker) CancelOrder(_ context.Context, _, brokerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.orders[brokerID]; !ok {
		return fmt.Errorf("%w: %s", broker.ErrOrderNotFound, brokerID)
	}
	delete(b.orders, brokerID)
	return nil
}

// SetPosition adjusts a seeded holding, for tests and manual dry-run
// scenarios.
func (b *Broker) SetPosition(symbol string, shares int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[symbol] = shares
}
