package market

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the market's instrumentation, registered against the
// injected registry.
type Metrics struct {
	operationsTotal *prometheus.CounterVec
	accrualsTotal   prometheus.Counter
	accrualDuration *prometheus.HistogramVec
	utilization     prometheus.Gauge
}

// NewMetrics creates and registers the market metrics.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_operations_total",
				Help: "Market operations processed, by operation and result.",
			},
			[]string{"operation", "result"},
		),
		accrualsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "market_accruals_total",
				Help: "Accruals that moved nonzero interest.",
			},
		),
		accrualDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "market_accrual_duration_seconds",
				Help:    "Time spent advancing the interest accumulator.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{},
		),
		utilization: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "market_utilization_ratio",
				Help: "Borrowed liquidity over total liquidity.",
			},
		),
	}

	registry.MustRegister(m.operationsTotal, m.accrualsTotal, m.accrualDuration, m.utilization)
	return m
}

func (m *Metrics) setUtilization(u float64) {
	m.utilization.Set(u)
}
