// Package metrics exposes Prometheus collectors for exchange flows.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/larriantoniy/tg_license_bot/internal/domain"
)

const namespace = "license_exchange"

type Flow struct {
	started  prometheus.Counter
	outcomes *prometheus.CounterVec
	duration prometheus.Histogram
	exchange *prometheus.HistogramVec
}

// NewFlow registers the collectors on reg. A nil reg leaves them unregistered.
func NewFlow(reg prometheus.Registerer) *Flow {
	f := promauto.With(reg)
	return &Flow{
		started: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_started_total",
			Help:      "Exchange flows that acquired their session key.",
		}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_outcomes_total",
			Help:      "Terminal outcomes of exchange flows, including refused starts.",
		}, []string{"state"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flow_duration_seconds",
			Help:      "Time from trigger to terminal state.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		exchange: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_request_duration_seconds",
			Help:      "Latency of calls to the license service.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}
}

func (f *Flow) Started() { f.started.Inc() }

func (f *Flow) Outcome(state domain.State) {
	f.outcomes.WithLabelValues(string(state)).Inc()
}

func (f *Flow) ObserveFlow(d time.Duration) { f.duration.Observe(d.Seconds()) }

func (f *Flow) ObserveExchange(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	f.exchange.WithLabelValues(result).Observe(d.Seconds())
}
