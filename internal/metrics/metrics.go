// Package metrics exposes the consensus engine's operational counters via a
// private prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Reports        *prometheus.CounterVec // outcome label: applied|duplicate|outlier|rejected|degraded
	PointsAwarded  prometheus.Counter
	ActiveBuses    prometheus.Gauge
	OpenSessions   prometheus.Gauge
	SessionsOpened prometheus.Counter
	SessionsClosed *prometheus.CounterVec // reason label: disembark|idle
	Evictions      prometheus.Counter
	MergeDuration  prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buspulse_reports_total",
			Help: "Location reports processed, by outcome.",
		}, []string{"outcome"}),
		PointsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buspulse_reward_points_awarded_total",
			Help: "Total reward points credited to riders.",
		}),
		ActiveBuses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "buspulse_active_buses",
			Help: "Buses currently holding a consensus estimate.",
		}),
		OpenSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "buspulse_open_sessions",
			Help: "Tracking sessions currently open.",
		}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buspulse_sessions_opened_total",
			Help: "Tracking sessions opened.",
		}),
		SessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buspulse_sessions_closed_total",
			Help: "Tracking sessions closed, by reason.",
		}, []string{"reason"}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buspulse_estimates_evicted_total",
			Help: "Idle bus estimates removed by the eviction sweep.",
		}),
		MergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "buspulse_merge_duration_seconds",
			Help:    "Duration of one report merge into the consensus estimate.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
	}

	reg.MustRegister(
		c.Reports, c.PointsAwarded,
		c.ActiveBuses, c.OpenSessions,
		c.SessionsOpened, c.SessionsClosed,
		c.Evictions, c.MergeDuration,
	)

	return c
}

// Handler serves the collector's registry; mount it at /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// The mutators below are nil-safe so the engine can run without metrics.

func (c *Collector) ReportInc(outcome string) {
	if c == nil {
		return
	}
	c.Reports.WithLabelValues(outcome).Inc()
}

func (c *Collector) PointsAdd(points int64) {
	if c == nil {
		return
	}
	c.PointsAwarded.Add(float64(points))
}

func (c *Collector) SetActiveBuses(n int) {
	if c == nil {
		return
	}
	c.ActiveBuses.Set(float64(n))
}

func (c *Collector) SetOpenSessions(n int) {
	if c == nil {
		return
	}
	c.OpenSessions.Set(float64(n))
}

func (c *Collector) SessionOpenedInc() {
	if c == nil {
		return
	}
	c.SessionsOpened.Inc()
}

func (c *Collector) SessionsClosedAdd(reason string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.SessionsClosed.WithLabelValues(reason).Add(float64(n))
}

func (c *Collector) EvictionsAdd(n int) {
	if c == nil || n == 0 {
		return
	}
	c.Evictions.Add(float64(n))
}

func (c *Collector) MergeObserve(d time.Duration) {
	if c == nil {
		return
	}
	c.MergeDuration.Observe(d.Seconds())
}
