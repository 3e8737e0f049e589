// Package engine runs the reconciliation loop: poll the broker, rebuild the
// target ladder, and converge the resting book on it symbol by symbol.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"ladder-trading/internal/alert"
	"ladder-trading/internal/broker"
	"ladder-trading/internal/core"
	"ladder-trading/internal/ladder"
	"ladder-trading/internal/metrics"
	"ladder-trading/internal/reconcile"
	"ladder-trading/internal/safety"
	"ladder-trading/internal/store"
)

// ErrManualIntervention marks failures the loop must not retry its way out
// of, such as a latched place or cancel circuit.
var ErrManualIntervention = errors.New("manual intervention required")

const defaultCycleWait = time.Minute

// Runner drives one brokerage account. Each cycle it polls position and open
// orders per item, regenerates the ladder, and applies the reconciliation
// decision through the guarded executor.
type Runner struct {
	Broker     broker.Brokerage
	Executor   safety.Executor
	Items      []ladder.Item
	Mode       string
	InstanceID string
	CycleWait  time.Duration
	Store      *store.Store
	Breaker    *safety.Breaker
	Alerts     alert.Alerter
	Metrics    *metrics.Registry

	startedAt time.Time
}

func (r *Runner) Run(ctx context.Context) (runErr error) {
	if len(r.Items) == 0 {
		return errors.New("no ladder items configured")
	}
	wait := r.CycleWait
	if wait <= 0 {
		wait = defaultCycleWait
	}
	r.startedAt = time.Now().UTC()

	r.logMaxInvestment()
	r.persistRuntimeStatus("starting", nil)
	r.alertImportant("engine_started", map[string]string{
		"broker":  r.Broker.Name(),
		"symbols": strconv.Itoa(len(r.Items)),
	})
	defer func() {
		err := runErr
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		r.persistRuntimeStatus("stopped", err)
		r.alertImportant("engine_stopped", map[string]string{
			"reason": errText(err),
		})
	}()

	for {
		if err := r.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrManualIntervention) {
				log.Error().Err(err).Msg("runner stopped")
				r.persistRuntimeStatus("degraded", err)
				r.alertImportant("manual_intervention_required", map[string]string{
					"reason": err.Error(),
				})
				return err
			}
			r.persistRuntimeStatus("degraded", err)
		} else {
			r.persistRuntimeStatus("running", nil)
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single reconciliation pass over all items. Exposed for
// the one-shot CLI mode.
func (r *Runner) RunOnce(ctx context.Context) error {
	if r.startedAt.IsZero() {
		r.startedAt = time.Now().UTC()
	}
	return r.runCycle(ctx)
}

// runCycle visits every item. A failing symbol never blocks the others; the
// first manual-intervention error short-circuits the pass.
func (r *Runner) runCycle(ctx context.Context) error {
	if r.Breaker != nil {
		allowErr := r.Breaker.AllowPoll()
		if r.Metrics != nil {
			r.Metrics.SetCircuitOpen("poll", allowErr != nil)
		}
		if allowErr != nil {
			log.Warn().
				Err(allowErr).
				Dur("cooldown_remaining", r.Breaker.PollCooldownRemaining()).
				Msg("cycle skipped")
			return allowErr
		}
	}

	var firstErr error
	for _, it := range r.Items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		started := time.Now()
		err := r.cycleSymbol(ctx, it)
		if r.Metrics != nil {
			r.Metrics.RecordCycle(it.Symbol, err)
			r.Metrics.ObserveCycleDuration(it.Symbol, time.Since(started).Seconds())
		}
		if err == nil {
			continue
		}
		if errors.Is(err, ErrManualIntervention) {
			return err
		}
		log.Error().Str("symbol", it.Symbol).Err(err).Msg("cycle failed")
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", it.Symbol, err)
		}
	}
	return firstErr
}

func (r *Runner) cycleSymbol(ctx context.Context, it ladder.Item) error {
	held, err := r.pollPosition(ctx, it.Symbol)
	if err != nil {
		return err
	}

	open, err := r.pollOpenOrders(ctx, it.Symbol)
	if err != nil {
		return err
	}

	target, err := ladder.Generate(it, held)
	if err != nil {
		r.recordCycleError(it.Symbol, "generate")
		r.alertImportant("ladder_generate_failed", map[string]string{
			"symbol": it.Symbol,
			"err":    err.Error(),
		})
		return fmt.Errorf("generate ladder: %w", err)
	}

	toPlace, toCancel := reconcile.Reconcile(target, open)
	if r.Metrics != nil {
		r.Metrics.SetHeldShares(it.Symbol, held)
		r.Metrics.SetOpenOrders(it.Symbol, len(open))
	}
	if len(toPlace) == 0 && len(toCancel) == 0 {
		log.Debug().
			Str("symbol", it.Symbol).
			Int("open_orders", len(open)).
			Msg("book matches ladder")
		r.saveSnapshot(it.Symbol, held, target, open, 0, 0)
		return nil
	}

	log.Info().
		Str("symbol", it.Symbol).
		Int64("held_shares", held).
		Int("target", len(target)).
		Int("open", len(open)).
		Int("to_place", len(toPlace)).
		Int("to_cancel", len(toCancel)).
		Msg("reconciling book")

	if len(toCancel) > 0 {
		if r.Metrics != nil {
			r.Metrics.RecordFullReplace(it.Symbol)
		}
		canceled, err := r.cancelOrders(ctx, it.Symbol, toCancel)
		if err != nil {
			r.saveSnapshot(it.Symbol, held, target, open, 0, canceled)
			return err
		}
		// Cancellation is not instantaneous upstream. Verify the book
		// actually drained before resting new orders on it; otherwise
		// defer placement to the next cycle.
		remaining, err := r.pollOpenOrders(ctx, it.Symbol)
		if err != nil {
			r.saveSnapshot(it.Symbol, held, target, open, 0, canceled)
			return err
		}
		if len(remaining) > 0 {
			log.Warn().
				Str("symbol", it.Symbol).
				Int("remaining", len(remaining)).
				Msg("orders still open after cancel, deferring placement")
			r.alertImportant("cancel_verification_pending", map[string]string{
				"symbol":    it.Symbol,
				"remaining": strconv.Itoa(len(remaining)),
			})
			r.saveSnapshot(it.Symbol, held, target, remaining, 0, canceled)
			return nil
		}
		placed, placeErr := r.placeOrders(ctx, it.Symbol, toPlace)
		r.saveSnapshot(it.Symbol, held, target, placed, len(placed), canceled)
		return placeErr
	}

	placed, placeErr := r.placeOrders(ctx, it.Symbol, toPlace)
	book := append(append([]core.OpenOrder{}, open...), placed...)
	r.saveSnapshot(it.Symbol, held, target, book, len(placed), 0)
	return placeErr
}

// pollPosition fetches and verifies the held share count. An unverifiable
// position stops the symbol for the cycle rather than sizing sells off a
// guess.
func (r *Runner) pollPosition(ctx context.Context, symbol string) (int64, error) {
	position, err := r.Broker.Position(ctx, symbol)
	if pollErr := r.recordPoll(err); pollErr != nil {
		r.recordCycleError(symbol, "poll_position")
		return 0, fmt.Errorf("poll position: %w", pollErr)
	}
	held, err := position.Shares()
	if err != nil {
		r.recordCycleError(symbol, "position_unverified")
		r.alertImportant("position_unverified", map[string]string{
			"symbol": symbol,
		})
		return 0, err
	}
	return held, nil
}

func (r *Runner) pollOpenOrders(ctx context.Context, symbol string) ([]core.OpenOrder, error) {
	open, err := r.Broker.OpenOrders(ctx, symbol)
	if pollErr := r.recordPoll(err); pollErr != nil {
		r.recordCycleError(symbol, "poll_open_orders")
		return nil, fmt.Errorf("poll open orders: %w", pollErr)
	}
	return open, nil
}

func (r *Runner) cancelOrders(ctx context.Context, symbol string, toCancel []core.OpenOrder) (int, error) {
	canceled := 0
	for _, ord := range toCancel {
		err := r.Executor.CancelOrder(ctx, symbol, ord.BrokerID)
		r.appendOrderEvent(store.OrderEvent{
			Symbol:   symbol,
			Action:   "cancel",
			BrokerID: ord.BrokerID,
			Side:     ord.Side,
			Price:    ord.LimitPrice.String(),
			Quantity: ord.Quantity,
			Error:    errText(err),
		})
		if err != nil {
			// A vanished order means the broker already closed it;
			// reconciliation converges next cycle either way.
			if errors.Is(err, broker.ErrOrderNotFound) {
				log.Warn().
					Str("symbol", symbol).
					Str("broker_id", ord.BrokerID).
					Msg("cancel target already gone")
				canceled++
				continue
			}
			r.recordCycleError(symbol, "cancel")
			if errors.Is(err, safety.ErrCircuitOpen) {
				return canceled, fmt.Errorf("%w: %v", ErrManualIntervention, err)
			}
			return canceled, fmt.Errorf("cancel order %s: %w", ord.BrokerID, err)
		}
		canceled++
		if r.Metrics != nil {
			r.Metrics.RecordOrderCanceled(symbol)
		}
		log.Info().
			Str("symbol", symbol).
			Str("broker_id", ord.BrokerID).
			Str("price", ord.LimitPrice.String()).
			Msg("order canceled")
	}
	return canceled, nil
}

func (r *Runner) placeOrders(ctx context.Context, symbol string, toPlace []core.TargetOrder) ([]core.OpenOrder, error) {
	placed := make([]core.OpenOrder, 0, len(toPlace))
	for _, ord := range toPlace {
		snapshot, err := r.Executor.PlaceOrder(ctx, ord)
		r.appendOrderEvent(store.OrderEvent{
			Symbol:   symbol,
			Action:   "place",
			BrokerID: snapshot.BrokerID,
			Side:     ord.Side,
			Price:    ord.LimitPrice.String(),
			Quantity: ord.Quantity,
			Error:    errText(err),
		})
		if err != nil {
			r.recordCycleError(symbol, "place")
			r.alertImportant("order_place_failed", map[string]string{
				"symbol": symbol,
				"side":   string(ord.Side),
				"price":  ord.LimitPrice.String(),
				"qty":    strconv.FormatInt(ord.Quantity, 10),
				"err":    err.Error(),
			})
			if errors.Is(err, safety.ErrCircuitOpen) {
				return placed, fmt.Errorf("%w: %v", ErrManualIntervention, err)
			}
			// Remaining legs stay unplaced so the partial book is
			// rebuilt cleanly next cycle.
			return placed, fmt.Errorf("place order %s: %w", ord.String(), err)
		}
		placed = append(placed, snapshot)
		if r.Metrics != nil {
			r.Metrics.RecordOrderPlaced(symbol, string(ord.Side))
		}
		log.Info().
			Str("symbol", symbol).
			Str("broker_id", snapshot.BrokerID).
			Str("side", string(ord.Side)).
			Str("price", ord.LimitPrice.String()).
			Int64("qty", ord.Quantity).
			Bool("partial", ord.PartialFilled).
			Msg("order placed")
	}
	return placed, nil
}

func (r *Runner) recordPoll(err error) error {
	if r.Breaker == nil {
		return err
	}
	if trip := r.Breaker.RecordPoll(err); trip != nil {
		return trip
	}
	return err
}

func (r *Runner) recordCycleError(symbol, stage string) {
	if r.Metrics != nil {
		r.Metrics.RecordCycleError(symbol, stage)
	}
}

func (r *Runner) saveSnapshot(symbol string, held int64, target []core.TargetOrder, open []core.OpenOrder, placed, canceled int) {
	if r.Store == nil {
		return
	}
	err := r.Store.SaveLadderSnapshot(store.LadderSnapshot{
		Symbol:     symbol,
		HeldShares: held,
		Target:     target,
		Open:       open,
		Placed:     placed,
		Canceled:   canceled,
	})
	if err != nil {
		log.Warn().Str("symbol", symbol).Err(err).Msg("snapshot write failed")
	}
}

func (r *Runner) appendOrderEvent(ev store.OrderEvent) {
	if r.Store == nil {
		return
	}
	if err := r.Store.AppendOrderEvent(ev); err != nil {
		log.Warn().Str("symbol", ev.Symbol).Err(err).Msg("order event write failed")
	}
}

func (r *Runner) persistRuntimeStatus(state string, lastErr error) {
	if r.Store == nil {
		return
	}
	symbols := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		symbols = append(symbols, it.Symbol)
	}
	status := store.RuntimeStatus{
		Mode:       r.Mode,
		InstanceID: r.InstanceID,
		PID:        os.Getpid(),
		State:      state,
		Symbols:    symbols,
		StartedAt:  r.startedAt,
		LastError:  errText(lastErr),
	}
	if err := r.Store.SaveRuntimeStatus(status); err != nil {
		log.Warn().Err(err).Msg("runtime status write failed")
	}
}

func (r *Runner) logMaxInvestment() {
	for _, it := range r.Items {
		investment, err := ladder.MaxInvestment(it)
		if err != nil {
			log.Warn().Str("symbol", it.Symbol).Err(err).Msg("max investment estimate failed")
			continue
		}
		log.Info().
			Str("symbol", it.Symbol).
			Str("max_investment", investment.String()).
			Msg("ladder sized")
	}
}

func (r *Runner) alertImportant(event string, fields map[string]string) {
	if r.Alerts == nil {
		return
	}
	r.Alerts.Important(event, fields)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
