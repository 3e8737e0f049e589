// Package safety trips circuit breakers on repeated broker failures so a
// misbehaving upstream cannot be hammered with orders.
package safety

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ladder-trading/internal/alert"
	"ladder-trading/internal/core"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type circuitState string

const (
	circuitClosed   circuitState = "closed"
	circuitOpen     circuitState = "open"
	circuitHalfOpen circuitState = "half_open"
)

const (
	defaultCooldown          = 30 * time.Second
	defaultHalfOpenSuccesses = 1
)

type circuit struct {
	name            string
	maxFailures     int
	failures        int
	state           circuitState
	openedAt        time.Time
	openErr         error
	halfOpenSuccess int
}

// Breaker keeps one circuit per broker action. Place and cancel circuits
// latch open until an operator intervenes; the poll circuit cools down and
// half-opens on its own since polling is read-only.
type Breaker struct {
	enabled bool

	mu     sync.Mutex
	place  circuit
	cancel circuit
	poll   circuit

	pollCooldown          time.Duration
	pollHalfOpenSuccesses int

	alerter alert.Alerter
}

func NewBreaker(enabled bool, maxPlaceFailures, maxCancelFailures, maxPollFailures int) *Breaker {
	return &Breaker{
		enabled: enabled,
		place: circuit{
			name:        "place order",
			maxFailures: maxPlaceFailures,
			state:       circuitClosed,
		},
		cancel: circuit{
			name:        "cancel order",
			maxFailures: maxCancelFailures,
			state:       circuitClosed,
		},
		poll: circuit{
			name:        "poll",
			maxFailures: maxPollFailures,
			state:       circuitClosed,
		},
		pollCooldown:          defaultCooldown,
		pollHalfOpenSuccesses: defaultHalfOpenSuccesses,
	}
}

func (b *Breaker) SetPollRecovery(cooldown time.Duration, halfOpenSuccesses int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if halfOpenSuccesses < 1 {
		halfOpenSuccesses = defaultHalfOpenSuccesses
	}
	b.pollCooldown = cooldown
	b.pollHalfOpenSuccesses = halfOpenSuccesses
}

func (b *Breaker) SetAlerter(alerter alert.Alerter) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerter = alerter
}

func (b *Breaker) RecordPlace(err error) error {
	if b == nil {
		return nil
	}
	return b.record(&b.place, err)
}

func (b *Breaker) RecordCancel(err error) error {
	if b == nil {
		return nil
	}
	return b.record(&b.cancel, err)
}

func (b *Breaker) RecordPoll(err error) error {
	if b == nil {
		return nil
	}
	return b.record(&b.poll, err)
}

// AllowPoll gates a polling pass. An open poll circuit transitions to
// half-open after the cooldown elapses, letting one pass probe the broker.
func (b *Breaker) AllowPoll() error {
	if b == nil || !b.enabled {
		return nil
	}
	b.mu.Lock()
	if b.poll.state != circuitOpen {
		b.mu.Unlock()
		return nil
	}
	now := time.Now().UTC()
	if b.pollCooldown > 0 && now.Sub(b.poll.openedAt) < b.pollCooldown {
		err := b.poll.openErr
		if err == nil {
			err = fmt.Errorf("%w: poll circuit is open", ErrCircuitOpen)
		}
		b.mu.Unlock()
		return err
	}
	b.poll.state = circuitHalfOpen
	b.poll.halfOpenSuccess = 0
	b.poll.failures = 0
	b.poll.openErr = nil
	alerter := b.alerter
	b.mu.Unlock()
	log.Info().
		Str("action", "poll").
		Int64("cooldown_sec", int64(b.pollCooldown/time.Second)).
		Msg("circuit breaker half-open")
	if alerter != nil {
		alerter.Important("circuit_breaker_half_open", map[string]string{
			"action":       "poll",
			"cooldown_sec": strconv.FormatInt(int64(b.pollCooldown/time.Second), 10),
		})
	}
	return nil
}

func (b *Breaker) PollCooldownRemaining() time.Duration {
	if b == nil || !b.enabled {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.poll.state != circuitOpen || b.pollCooldown <= 0 {
		return 0
	}
	elapsed := time.Since(b.poll.openedAt)
	if elapsed >= b.pollCooldown {
		return 0
	}
	return b.pollCooldown - elapsed
}

func (b *Breaker) record(c *circuit, err error) error {
	if b == nil || !b.enabled || c == nil {
		return nil
	}

	b.mu.Lock()
	if c.maxFailures < 1 {
		b.mu.Unlock()
		return nil
	}

	if err == nil {
		prevFailures := c.failures
		prevState := c.state
		recovered := false
		switch c.state {
		case circuitHalfOpen:
			c.halfOpenSuccess++
			if c.halfOpenSuccess >= b.pollHalfOpenSuccesses || c.name != "poll" {
				recovered = true
				c.state = circuitClosed
				c.failures = 0
				c.openErr = nil
				c.openedAt = time.Time{}
				c.halfOpenSuccess = 0
			}
		case circuitOpen:
			// Only the poll circuit probes while open; others stay latched.
		case circuitClosed:
			if c.failures > 0 {
				recovered = true
				c.failures = 0
			}
		}
		alerter := b.alerter
		b.mu.Unlock()
		if recovered {
			log.Info().
				Str("action", c.name).
				Int("previous_consecutive_failures", prevFailures).
				Str("from_state", string(prevState)).
				Msg("circuit breaker recovered")
			if alerter != nil {
				alerter.Important("circuit_breaker_recovered", map[string]string{
					"action":                        c.name,
					"previous_consecutive_failures": strconv.Itoa(prevFailures),
					"from_state":                    string(prevState),
				})
			}
		}
		return nil
	}

	if c.state == circuitOpen {
		openErr := c.openErr
		if openErr == nil {
			openErr = fmt.Errorf("%w: %s circuit is open", ErrCircuitOpen, c.name)
			c.openErr = openErr
		}
		b.mu.Unlock()
		return openErr
	}

	if c.state == circuitHalfOpen {
		openErr := b.tripLocked(c, err, 1, "half_open_probe_failed")
		alerter := b.alerter
		b.mu.Unlock()
		log.Error().
			Str("action", c.name).
			Str("phase", "half_open").
			Int("threshold", c.maxFailures).
			Err(err).
			Msg("circuit breaker trip")
		if alerter != nil {
			alerter.Important("circuit_breaker_trip", map[string]string{
				"action":     c.name,
				"phase":      "half_open",
				"threshold":  strconv.Itoa(c.maxFailures),
				"last_error": err.Error(),
			})
		}
		return openErr
	}

	c.failures++
	failures := c.failures
	limit := c.maxFailures
	alerter := b.alerter
	if failures < limit {
		nearTrip := shouldWarnNearTrip(c.name, failures, limit)
		b.mu.Unlock()
		if nearTrip {
			log.Warn().
				Str("action", c.name).
				Int("consecutive_failures", failures).
				Int("threshold", limit).
				Err(err).
				Msg("circuit breaker near trip")
			if alerter != nil {
				alerter.Important("circuit_breaker_near_trip", map[string]string{
					"action":               c.name,
					"consecutive_failures": strconv.Itoa(failures),
					"threshold":            strconv.Itoa(limit),
					"last_error":           err.Error(),
				})
			}
		}
		return nil
	}

	openErr := b.tripLocked(c, err, failures, "consecutive_failures")
	b.mu.Unlock()
	log.Error().
		Str("action", c.name).
		Int("consecutive_failures", failures).
		Int("threshold", limit).
		Err(err).
		Msg("circuit breaker trip")
	if alerter != nil {
		alerter.Important("circuit_breaker_trip", map[string]string{
			"action":               c.name,
			"consecutive_failures": strconv.Itoa(failures),
			"threshold":            strconv.Itoa(limit),
			"last_error":           err.Error(),
		})
	}
	return openErr
}

func (b *Breaker) tripLocked(c *circuit, err error, failures int, reason string) error {
	if failures < 1 {
		failures = c.maxFailures
	}
	c.state = circuitOpen
	c.openedAt = time.Now().UTC()
	c.halfOpenSuccess = 0
	c.failures = failures
	if c.name == "poll" && b.pollCooldown > 0 {
		c.openErr = fmt.Errorf("%w: %s failed %d consecutive times, cooldown=%s, reason=%s, last error: %v", ErrCircuitOpen, c.name, failures, b.pollCooldown.String(), reason, err)
	} else {
		c.openErr = fmt.Errorf("%w: %s failed %d consecutive times, reason=%s, last error: %v", ErrCircuitOpen, c.name, failures, reason, err)
	}
	return c.openErr
}

func shouldWarnNearTrip(action string, failures, limit int) bool {
	if limit <= 1 || failures != limit-1 {
		return false
	}
	return action == "place order" || action == "cancel order"
}

// Executor is the slice of the brokerage the guarded wrapper covers.
type Executor interface {
	PlaceOrder(ctx context.Context, order core.TargetOrder) (core.OpenOrder, error)
	CancelOrder(ctx context.Context, symbol, brokerID string) error
}

// GuardedExecutor records every place/cancel outcome on the breaker and
// substitutes the trip error once a circuit opens.
type GuardedExecutor struct {
	inner   Executor
	breaker *Breaker
}

func NewGuardedExecutor(inner Executor, breaker *Breaker) *GuardedExecutor {
	return &GuardedExecutor{
		inner:   inner,
		breaker: breaker,
	}
}

func (e *GuardedExecutor) PlaceOrder(ctx context.Context, order core.TargetOrder) (core.OpenOrder, error) {
	placed, err := e.inner.PlaceOrder(ctx, order)
	if trip := e.breaker.RecordPlace(err); trip != nil {
		return placed, trip
	}
	return placed, err
}

func (e *GuardedExecutor) CancelOrder(ctx context.Context, symbol, brokerID string) error {
	err := e.inner.CancelOrder(ctx, symbol, brokerID)
	if trip := e.breaker.RecordCancel(err); trip != nil {
		return trip
	}
	return err
}
