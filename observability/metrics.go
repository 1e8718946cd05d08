package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stakingMetricsOnce sync.Once
	stakingRegistry    *StakingMetrics
)

// StakingMetrics captures metrics for the stake/accrual/settlement engine.
type StakingMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	errors     *prometheus.CounterVec

	stakedAssets      prometheus.Gauge
	inflight          prometheus.Gauge
	sweepResolved     *prometheus.CounterVec
	rewardsPaidUnits  prometheus.Counter
	settlementRetries prometheus.Counter
}

// Staking returns the singleton metrics registry for the staking engine.
func Staking() *StakingMetrics {
	stakingMetricsOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ravenstake",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Count of engine operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ravenstake",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ravenstake",
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Count of engine errors segmented by operation and error kind.",
			}, []string{"operation", "kind"}),
			stakedAssets: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "ravenstake",
				Subsystem: "engine",
				Name:      "staked_assets",
				Help:      "Number of currently staked assets.",
			}),
			inflight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "ravenstake",
				Subsystem: "engine",
				Name:      "settlements_in_flight",
				Help:      "Number of reward transfers currently awaiting confirmation.",
			}),
			sweepResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ravenstake",
				Subsystem: "sweep",
				Name:      "resolved_total",
				Help:      "Indeterminate settlements resolved by the maintenance sweep, by resolution.",
			}, []string{"resolution"}),
			rewardsPaidUnits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ravenstake",
				Subsystem: "engine",
				Name:      "rewards_paid_units_total",
				Help:      "Cumulative reward units confirmed transferred, in smallest units.",
			}),
			settlementRetries: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ravenstake",
				Subsystem: "engine",
				Name:      "settlement_retries_total",
				Help:      "Settlements refused because a prior attempt was still pending.",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.latency,
			stakingRegistry.errors,
			stakingRegistry.stakedAssets,
			stakingRegistry.inflight,
			stakingRegistry.sweepResolved,
			stakingRegistry.rewardsPaidUnits,
			stakingRegistry.settlementRetries,
		)
	})
	return stakingRegistry
}

// Observe records the latency and outcome of an engine operation.
func (m *StakingMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordError counts a classified engine error.
func (m *StakingMetrics) RecordError(operation, kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(operation, kind).Inc()
}

// SetStakedAssets updates the staked-asset gauge.
func (m *StakingMetrics) SetStakedAssets(n int) {
	if m == nil {
		return
	}
	m.stakedAssets.Set(float64(n))
}

// SettlementStarted increments the in-flight gauge.
func (m *StakingMetrics) SettlementStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

// SettlementFinished decrements the in-flight gauge.
func (m *StakingMetrics) SettlementFinished() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}

// RecordSweepResolution counts a sweep resolution outcome.
func (m *StakingMetrics) RecordSweepResolution(resolution string) {
	if m == nil {
		return
	}
	m.sweepResolved.WithLabelValues(resolution).Inc()
}

// AddRewardsPaid accumulates confirmed payout volume. Amounts beyond the
// float64 mantissa are clamped; the counter is indicative, the journal is
// authoritative.
func (m *StakingMetrics) AddRewardsPaid(units float64) {
	if m == nil || units <= 0 {
		return
	}
	m.rewardsPaidUnits.Add(units)
}

// RecordPendingRefusal counts settlements refused while a prior attempt was pending.
func (m *StakingMetrics) RecordPendingRefusal() {
	if m == nil {
		return
	}
	m.settlementRetries.Inc()
}
