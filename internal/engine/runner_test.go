package engine

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/shopspring/decimal"

	"ladder-trading/internal/broker/paper"
	"ladder-trading/internal/core"
	"ladder-trading/internal/ladder"
	"ladder-trading/internal/safety"
	"ladder-trading/internal/store"
)

func testItem(t *testing.T) ladder.Item {
	t.Helper()
	table, err := ladder.NewTable([]ladder.PriceCoordinate{
		{
			StartPrice: decimal.Zero,
			Quantity:   2,
			StepType:   ladder.StepFixed,
			FixedStep:  decimal.NewFromInt(1),
		},
	})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return ladder.Item{
		Symbol:             "AAPL",
		StartPrice:         decimal.RequireFromString("20.55"),
		Coordinates:        table,
		SellPolicy:         ladder.SellFixed,
		SellStep:           decimal.NewFromInt(2),
		MaxRestingBuys:     2,
		QuantityMultiplier: 1,
	}
}

func newTestRunner(t *testing.T, b *paper.Broker, it ladder.Item) *Runner {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	return &Runner{
		Broker:     b,
		Executor:   b,
		Items:      []ladder.Item{it},
		Mode:       "paper",
		InstanceID: "bot_a1",
		Store:      st,
	}
}

func bookPrices(t *testing.T, b *paper.Broker, symbol string) []string {
	t.Helper()
	open, err := b.OpenOrders(context.Background(), symbol)
	if err != nil {
		t.Fatalf("OpenOrders() error = %v", err)
	}
	prices := make([]string, 0, len(open))
	for _, ord := range open {
		prices = append(prices, string(ord.Side)+"@"+ord.LimitPrice.String())
	}
	sort.Strings(prices)
	return prices
}

func TestRunnerPlacesLadderOnEmptyBook(t *testing.T) {
	b := paper.New(map[string]int64{"AAPL": 9})
	r := newTestRunner(t, b, testItem(t))

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	got := bookPrices(t, b, "AAPL")
	want := []string{
		"BUY@15.55", "BUY@16.55",
		"SELL@18.55", "SELL@19.55", "SELL@20.55", "SELL@21.55", "SELL@22.55",
	}
	if len(got) != len(want) {
		t.Fatalf("book = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("book = %v, want %v", got, want)
		}
	}

	snap, ok, err := r.Store.LoadLadderSnapshot("AAPL")
	if err != nil || !ok {
		t.Fatalf("LoadLadderSnapshot() = (%v, %v)", ok, err)
	}
	if snap.Placed != 7 || snap.Canceled != 0 || snap.HeldShares != 9 {
		t.Fatalf("snapshot = %+v, want placed=7 canceled=0 held=9", snap)
	}
}

func TestRunnerSecondCycleIsIdempotent(t *testing.T) {
	b := paper.New(map[string]int64{"AAPL": 9})
	r := newTestRunner(t, b, testItem(t))

	ctx := context.Background()
	if err := r.RunOnce(ctx); err != nil {
		t.Fatalf("first RunOnce() error = %v", err)
	}
	first, err := b.OpenOrders(ctx, "AAPL")
	if err != nil {
		t.Fatalf("OpenOrders() error = %v", err)
	}

	if err := r.RunOnce(ctx); err != nil {
		t.Fatalf("second RunOnce() error = %v", err)
	}
	second, err := b.OpenOrders(ctx, "AAPL")
	if err != nil {
		t.Fatalf("OpenOrders() error = %v", err)
	}

	firstIDs := orderIDSet(first)
	secondIDs := orderIDSet(second)
	if len(firstIDs) != len(secondIDs) {
		t.Fatalf("book size changed: %d -> %d", len(firstIDs), len(secondIDs))
	}
	for id := range firstIDs {
		if _, ok := secondIDs[id]; !ok {
			t.Fatalf("order %s was replaced on a matching book", id)
		}
	}
}

func TestRunnerFullReplaceAfterPositionChange(t *testing.T) {
	b := paper.New(map[string]int64{"AAPL": 9})
	r := newTestRunner(t, b, testItem(t))

	ctx := context.Background()
	if err := r.RunOnce(ctx); err != nil {
		t.Fatalf("first RunOnce() error = %v", err)
	}
	first, err := b.OpenOrders(ctx, "AAPL")
	if err != nil {
		t.Fatalf("OpenOrders() error = %v", err)
	}

	b.SetPosition("AAPL", 6)
	if err := r.RunOnce(ctx); err != nil {
		t.Fatalf("second RunOnce() error = %v", err)
	}
	second, err := b.OpenOrders(ctx, "AAPL")
	if err != nil {
		t.Fatalf("OpenOrders() error = %v", err)
	}

	firstIDs := orderIDSet(first)
	for id := range orderIDSet(second) {
		if _, ok := firstIDs[id]; ok {
			t.Fatalf("order %s survived a full replace", id)
		}
	}
	// 6 held is an exact multiple: three sells, no partial split, two buys.
	if len(second) != 5 {
		t.Fatalf("book size = %d, want 5", len(second))
	}

	snap, ok, err := r.Store.LoadLadderSnapshot("AAPL")
	if err != nil || !ok {
		t.Fatalf("LoadLadderSnapshot() = (%v, %v)", ok, err)
	}
	if snap.Canceled != 7 || snap.Placed != 5 {
		t.Fatalf("snapshot = placed=%d canceled=%d, want 5/7", snap.Placed, snap.Canceled)
	}
}

type unverifiedBroker struct {
	*paper.Broker
}

func (b unverifiedBroker) Position(context.Context, string) (core.HeldQuantity, error) {
	return core.HeldQuantity{}, nil
}

func TestRunnerStopsSymbolWhenPositionUnverified(t *testing.T) {
	inner := paper.New(nil)
	b := unverifiedBroker{Broker: inner}
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	r := &Runner{
		Broker:     b,
		Executor:   inner,
		Items:      []ladder.Item{testItem(t)},
		Mode:       "paper",
		InstanceID: "bot_a1",
		Store:      st,
	}

	err = r.RunOnce(context.Background())
	if !errors.Is(err, core.ErrPositionUnverified) {
		t.Fatalf("RunOnce() error = %v, want ErrPositionUnverified", err)
	}
	open, oerr := inner.OpenOrders(context.Background(), "AAPL")
	if oerr != nil {
		t.Fatalf("OpenOrders() error = %v", oerr)
	}
	if len(open) != 0 {
		t.Fatalf("orders placed on unverified position: %v", open)
	}
}

type lingeringBroker struct {
	*paper.Broker
	stale  core.OpenOrder
	placed int
}

func (b *lingeringBroker) OpenOrders(context.Context, string) ([]core.OpenOrder, error) {
	return []core.OpenOrder{b.stale}, nil
}

func (b *lingeringBroker) CancelOrder(context.Context, string, string) error {
	return nil
}

func (b *lingeringBroker) PlaceOrder(_ context.Context, order core.TargetOrder) (core.OpenOrder, error) {
	b.placed++
	return core.OpenOrder{}, nil
}

func TestRunnerDefersPlacementWhileCancelsLinger(t *testing.T) {
	b := &lingeringBroker{
		Broker: paper.New(nil),
		stale: core.OpenOrder{
			BrokerID:   "999",
			Symbol:     "AAPL",
			LimitPrice: decimal.RequireFromString("10.00"),
			Quantity:   1,
			Side:       core.Buy,
		},
	}
	r := &Runner{
		Broker:     b,
		Executor:   b,
		Items:      []ladder.Item{testItem(t)},
		Mode:       "paper",
		InstanceID: "bot_a1",
	}

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if b.placed != 0 {
		t.Fatalf("placed %d orders before the cancel drained", b.placed)
	}
}

type failingExecutor struct {
	err error
}

func (e failingExecutor) PlaceOrder(context.Context, core.TargetOrder) (core.OpenOrder, error) {
	return core.OpenOrder{}, e.err
}

func (e failingExecutor) CancelOrder(context.Context, string, string) error {
	return e.err
}

func TestRunnerLatchedPlaceCircuitDemandsIntervention(t *testing.T) {
	b := paper.New(map[string]int64{"AAPL": 9})
	breaker := safety.NewBreaker(true, 1, 1, 5)
	r := &Runner{
		Broker:     b,
		Executor:   safety.NewGuardedExecutor(failingExecutor{err: errors.New("rejected")}, breaker),
		Items:      []ladder.Item{testItem(t)},
		Mode:       "paper",
		InstanceID: "bot_a1",
		Breaker:    breaker,
	}

	err := r.RunOnce(context.Background())
	if !errors.Is(err, ErrManualIntervention) {
		t.Fatalf("RunOnce() error = %v, want ErrManualIntervention", err)
	}
}

func orderIDSet(orders []core.OpenOrder) map[string]struct{} {
	ids := make(map[string]struct{}, len(orders))
	for _, ord := range orders {
		ids[ord.BrokerID] = struct{}{}
	}
	return ids
}
