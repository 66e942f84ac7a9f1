// Package metrics exposes the engine's Prometheus collectors.
//
// Primary metrics updated during operation:
//   - mm_rounds_total                 – MM rounds completed
//   - mm_fills_total{side}            – settled fills by side
//   - mm_orders_placed_total          – ladder orders accepted by the venue
//   - mm_inventory_amount             – current base-asset inventory (gauge)
//   - mm_quote_amount                 – current quote balance (gauge)
//   - mm_iqv_move_ratio               – current IQV move ratio (gauge)
//   - mm_effective_vol                – blended effective volatility (gauge)
//   - hedge_active_size               – standing active hedge size (gauge)
//   - hedge_passive_triggers_total{side} – passive trigger orders armed
//
// Served at /metrics in Prometheus text exposition format when enabled.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the engine collectors around one registry.
type Metrics struct {
	registry *prometheus.Registry

	rounds       prometheus.Counter
	fills        *prometheus.CounterVec
	ordersPlaced prometheus.Counter

	inventory    prometheus.Gauge
	quote        prometheus.Gauge
	iqvMove      prometheus.Gauge
	effectiveVol prometheus.Gauge

	activeHedge     prometheus.Gauge
	passiveTriggers *prometheus.CounterVec
}

// New creates and registers the engine collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mm_rounds_total",
			Help: "MM rounds completed",
		}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mm_fills_total",
			Help: "Settled fills by side",
		}, []string{"side"}),
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mm_orders_placed_total",
			Help: "Ladder orders accepted by the venue",
		}),
		inventory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mm_inventory_amount",
			Help: "Current base-asset inventory",
		}),
		quote: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mm_quote_amount",
			Help: "Current quote balance",
		}),
		iqvMove: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mm_iqv_move_ratio",
			Help: "Current IQV move ratio",
		}),
		effectiveVol: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mm_effective_vol",
			Help: "Blended effective volatility",
		}),
		activeHedge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hedge_active_size",
			Help: "Standing active hedge size (signed)",
		}),
		passiveTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hedge_passive_triggers_total",
			Help: "Passive trigger orders armed",
		}, []string{"side"}),
	}

	m.registry.MustRegister(
		m.rounds, m.fills, m.ordersPlaced,
		m.inventory, m.quote, m.iqvMove, m.effectiveVol,
		m.activeHedge, m.passiveTriggers,
	)
	return m
}

// ObserveRound records the state at the end of one MM round.
func (m *Metrics) ObserveRound(inventory, quote, iqvMove float64, ordersPlaced int) {
	m.rounds.Inc()
	m.inventory.Set(inventory)
	m.quote.Set(quote)
	m.iqvMove.Set(iqvMove)
	m.ordersPlaced.Add(float64(ordersPlaced))
}

// ObserveFill records one settled fill.
func (m *Metrics) ObserveFill(side string) {
	m.fills.WithLabelValues(side).Inc()
}

// SetEffectiveVol publishes the latest volatility estimate.
func (m *Metrics) SetEffectiveVol(v float64) {
	m.effectiveVol.Set(v)
}

// SetActiveHedgeSize publishes the standing active hedge.
func (m *Metrics) SetActiveHedgeSize(v float64) {
	m.activeHedge.Set(v)
}

// ObservePassiveTrigger counts one armed trigger order.
func (m *Metrics) ObservePassiveTrigger(side string) {
	m.passiveTriggers.WithLabelValues(side).Inc()
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts the metrics endpoint on the given port. Blocks.
func (m *Metrics) Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
