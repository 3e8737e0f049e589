// Package metrics exposes the trader's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the engine updates during operation.
type Registry struct {
	reg *prometheus.Registry

	Cycles        *prometheus.CounterVec
	CycleErrors   *prometheus.CounterVec
	CycleDuration *prometheus.HistogramVec

	OrdersPlaced   *prometheus.CounterVec
	OrdersCanceled *prometheus.CounterVec
	FullReplaces   *prometheus.CounterVec

	OpenOrders *prometheus.GaugeVec
	HeldShares *prometheus.GaugeVec

	CircuitOpen *prometheus.GaugeVec
}

// NewRegistry builds a fresh registry with all trader metrics registered.
func NewRegistry() *Registry {
	m := &Registry{
		reg: prometheus.NewRegistry(),

		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "laddertrader_cycles_total",
				Help: "Reconciliation cycles completed per symbol",
			},
			[]string{"symbol", "result"},
		),

		CycleErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "laddertrader_cycle_errors_total",
				Help: "Cycle failures split by stage",
			},
			[]string{"symbol", "stage"},
		),

		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "laddertrader_cycle_duration_seconds",
				Help:    "Wall time of one symbol's reconciliation cycle",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"symbol"},
		),

		OrdersPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "laddertrader_orders_placed_total",
				Help: "Limit orders handed to the broker",
			},
			[]string{"symbol", "side"},
		),

		OrdersCanceled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "laddertrader_orders_canceled_total",
				Help: "Open orders canceled during reconciliation",
			},
			[]string{"symbol"},
		),

		FullReplaces: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "laddertrader_full_replaces_total",
				Help: "Cycles where the whole resting book was torn down and rebuilt",
			},
			[]string{"symbol"},
		),

		OpenOrders: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "laddertrader_open_orders",
				Help: "Resting orders on the broker after the last cycle",
			},
			[]string{"symbol"},
		),

		HeldShares: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "laddertrader_held_shares",
				Help: "Verified position size from the last cycle",
			},
			[]string{"symbol"},
		),

		CircuitOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "laddertrader_circuit_open",
				Help: "1 while the named circuit refuses work",
			},
			[]string{"circuit"},
		),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Cycles,
		m.CycleErrors,
		m.CycleDuration,
		m.OrdersPlaced,
		m.OrdersCanceled,
		m.FullReplaces,
		m.OpenOrders,
		m.HeldShares,
		m.CircuitOpen,
	)
	return m
}

// Handler serves the registry in Prometheus text exposition format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Registry) RecordCycle(symbol string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Cycles.WithLabelValues(symbol, result).Inc()
}

func (m *Registry) RecordCycleError(symbol, stage string) {
	m.CycleErrors.WithLabelValues(symbol, stage).Inc()
}

func (m *Registry) ObserveCycleDuration(symbol string, seconds float64) {
	m.CycleDuration.WithLabelValues(symbol).Observe(seconds)
}

func (m *Registry) RecordOrderPlaced(symbol, side string) {
	m.OrdersPlaced.WithLabelValues(symbol, side).Inc()
}

func (m *Registry) RecordOrderCanceled(symbol string) {
	m.OrdersCanceled.WithLabelValues(symbol).Inc()
}

func (m *Registry) RecordFullReplace(symbol string) {
	m.FullReplaces.WithLabelValues(symbol).Inc()
}

func (m *Registry) SetOpenOrders(symbol string, n int) {
	m.OpenOrders.WithLabelValues(symbol).Set(float64(n))
}

func (m *Registry) SetHeldShares(symbol string, shares int64) {
	m.HeldShares.WithLabelValues(symbol).Set(float64(shares))
}

func (m *Registry) SetCircuitOpen(circuit string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	m.CircuitOpen.WithLabelValues(circuit).Set(v)
}
