package tracker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Tick outcomes
const (
	TickTrimmed  = "trimmed"
	TickRefetch  = "refetch"
	TickSkipped  = "skipped"
	TickInFlight = "in_flight"
)

// Metrics holds the route tracker's Prometheus collectors
type Metrics struct {
	activeRoutes prometheus.Gauge
	ticksTotal   *prometheus.CounterVec
	pathRequests *prometheus.CounterVec
	pathLatency  prometheus.Histogram
	staleResults prometheus.Counter
	rejections   *prometheus.CounterVec
}

// NewMetrics creates the collectors without registering them
func NewMetrics() *Metrics {
	return &Metrics{
		activeRoutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "route_tracker_active_routes",
			Help: "Number of routes currently tracked",
		}),
		ticksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "route_tracker_ticks_total",
				Help: "Route refresh ticks by outcome",
			},
			[]string{"outcome"},
		),
		pathRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "route_tracker_path_requests_total",
				Help: "Path-finding requests by status",
			},
			[]string{"status"},
		),
		pathLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "route_tracker_path_request_seconds",
			Help:    "Path-finding request latency in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		staleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "route_tracker_stale_results_total",
			Help: "Path-finding results discarded because their route was removed",
		}),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "route_tracker_create_rejections_total",
				Help: "Route creation attempts rejected, by code",
			},
			[]string{"code"},
		),
	}
}

// Register adds every collector to reg
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.activeRoutes, m.ticksTotal, m.pathRequests, m.pathLatency, m.staleResults, m.rejections)
}

func (m *Metrics) recordTick(outcome string) {
	m.ticksTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordPathRequest(err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.pathRequests.WithLabelValues(status).Inc()
	m.pathLatency.Observe(d.Seconds())
}

func (m *Metrics) recordRejection(code string) {
	m.rejections.WithLabelValues(code).Inc()
}
