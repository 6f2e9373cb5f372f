// Package metrics exposes Prometheus instrumentation for the agent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records trading pipeline metrics with Prometheus.
type Recorder struct {
	signalsReceived *prometheus.CounterVec
	signalsRejected *prometheus.CounterVec
	tradesExecuted  *prometheus.CounterVec
	executionErrors *prometheus.CounterVec
	openPositions   prometheus.Gauge
	dailyPnL        prometheus.Gauge
	markPrice       *prometheus.GaugeVec
	executionTime   *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus
// registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on the given
// registerer. Tests pass a fresh registry to avoid duplicate
// registration.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		signalsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_signals_received_total",
				Help: "Total number of signals received",
			},
			[]string{"source", "symbol"},
		),
		signalsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_signals_rejected_total",
				Help: "Total number of signals rejected before execution",
			},
			[]string{"symbol", "reason"},
		),
		tradesExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_trades_executed_total",
				Help: "Total number of trades executed",
			},
			[]string{"symbol", "action"},
		),
		executionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_execution_errors_total",
				Help: "Total number of execution failures",
			},
			[]string{"symbol"},
		),
		openPositions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agent_open_positions",
				Help: "Number of currently open positions",
			},
		),
		dailyPnL: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agent_daily_realized_pnl",
				Help: "Realized P&L for the current UTC day",
			},
		),
		markPrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agent_mark_price",
				Help: "Last observed mark price for a symbol",
			},
			[]string{"symbol"},
		),
		executionTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_execution_duration_seconds",
				Help:    "Duration of trade executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"symbol"},
		),
	}
}

// RecordSignalReceived records an incoming signal.
func (r *Recorder) RecordSignalReceived(source, symbol string) {
	r.signalsReceived.WithLabelValues(source, symbol).Inc()
}

// RecordSignalRejected records a rejected signal with its rejection
// rule.
func (r *Recorder) RecordSignalRejected(symbol, reason string) {
	r.signalsRejected.WithLabelValues(symbol, reason).Inc()
}

// RecordTradeExecuted records a completed execution.
func (r *Recorder) RecordTradeExecuted(symbol, action string) {
	r.tradesExecuted.WithLabelValues(symbol, action).Inc()
}

// RecordExecutionError records an execution failure.
func (r *Recorder) RecordExecutionError(symbol string) {
	r.executionErrors.WithLabelValues(symbol).Inc()
}

// SetOpenPositions updates the open position count gauge.
func (r *Recorder) SetOpenPositions(count int) {
	r.openPositions.Set(float64(count))
}

// SetDailyPnL updates the daily realized P&L gauge.
func (r *Recorder) SetDailyPnL(pnl float64) {
	r.dailyPnL.Set(pnl)
}

// RecordMarkPrice records the last mark price for a symbol.
func (r *Recorder) RecordMarkPrice(symbol string, price float64) {
	r.markPrice.WithLabelValues(symbol).Set(price)
}

// RecordExecutionTime records how long an execution took.
func (r *Recorder) RecordExecutionTime(symbol string, seconds float64) {
	r.executionTime.WithLabelValues(symbol).Observe(seconds)
}
