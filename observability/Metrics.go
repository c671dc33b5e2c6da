package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "distlearn"

// Metrics records the runtime counters of actors, the policy authority
// and policy managers. A nil *Metrics records nothing.
type Metrics struct {
	roundTrips       *prometheus.CounterVec
	roundTripSeconds *prometheus.HistogramVec
	experiences      *prometheus.CounterVec
	ignored          *prometheus.CounterVec
	updates          *prometheus.CounterVec
	version          prometheus.Gauge
	stale            prometheus.Counter
	doneActors       prometheus.Gauge
}

// NewMetrics registers the metrics with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		roundTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "round_trips_total",
			Help:      "Number of message round trips by tag and outcome",
		}, []string{"tag", "outcome"}),
		roundTripSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_trip_seconds",
			Help:      "Latency of message round trips by tag",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tag"}),
		experiences: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "manager",
			Name:      "experiences_total",
			Help:      "Number of records buffered by policy",
		}, []string{"policy"}),
		ignored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "manager",
			Name:      "ignored_experiences_total",
			Help:      "Number of records addressed to policies that do not buffer",
		}, []string{"policy"}),
		updates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "manager",
			Name:      "updates_total",
			Help:      "Number of policy updates by policy",
		}, []string{"policy"}),
		version: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "policy_version",
			Help:      "Current policy version of the authority",
		}),
		stale: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "stale_experiences_total",
			Help:      "Number of records discarded for lagging behind the current version",
		}),
		doneActors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "done_actors",
			Help:      "Number of actors that finished their run",
		}),
	}
}

// ObserveRoundTrip records a round trip of tag taking d
func (m *Metrics) ObserveRoundTrip(tag string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.roundTrips.WithLabelValues(tag, outcome).Inc()
	m.roundTripSeconds.WithLabelValues(tag).Observe(d.Seconds())
}

// AddExperiences records n records buffered by policy
func (m *Metrics) AddExperiences(policy string, n int) {
	if m == nil {
		return
	}
	m.experiences.WithLabelValues(policy).Add(float64(n))
}

// AddIgnored records n records dropped for policy
func (m *Metrics) AddIgnored(policy string, n int) {
	if m == nil {
		return
	}
	m.ignored.WithLabelValues(policy).Add(float64(n))
}

// IncUpdates records an update of policy
func (m *Metrics) IncUpdates(policy string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(policy).Inc()
}

// SetVersion records the current policy version
func (m *Metrics) SetVersion(v int64) {
	if m == nil {
		return
	}
	m.version.Set(float64(v))
}

// AddStale records n stale records discarded
func (m *Metrics) AddStale(n int) {
	if m == nil {
		return
	}
	m.stale.Add(float64(n))
}

// SetDoneActors records the number of finished actors
func (m *Metrics) SetDoneActors(n int) {
	if m == nil {
		return
	}
	m.doneActors.Set(float64(n))
}
