// Package obsmetrics exports Prometheus collectors for the HTTP
// facade, the sandbox, and the installation/execution coordinators.
package obsmetrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector registered by this service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// SandboxActiveBoxes and SandboxInitTotal are registered and
	// exported, but no package updates them.
	SandboxActiveBoxes prometheus.Gauge
	SandboxInitTotal   *prometheus.CounterVec

	SubmissionsTotal   *prometheus.CounterVec
	InstallationsTotal *prometheus.CounterVec
}

var (
	once     sync.Once
	instance *Metrics
)

// Get returns the process-wide singleton, registering collectors on
// first use.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coderunner",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route, method, and status",
		},
		[]string{"route", "method", "status"},
	)

	m.HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coderunner",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"route", "method"},
	)

	m.HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "coderunner",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being processed",
		},
	)

	m.SandboxActiveBoxes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "coderunner",
			Subsystem: "sandbox",
			Name:      "active_boxes",
			Help:      "Number of sandbox boxes currently initialized",
		},
	)

	m.SandboxInitTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coderunner",
			Subsystem: "sandbox",
			Name:      "init_total",
			Help:      "Total sandbox init attempts by outcome",
		},
		[]string{"outcome"},
	)

	m.SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coderunner",
			Subsystem: "execution",
			Name:      "submissions_total",
			Help:      "Total submissions by final outcome",
		},
		[]string{"outcome"},
	)

	m.InstallationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coderunner",
			Subsystem: "installation",
			Name:      "installations_total",
			Help:      "Total runtime installation attempts by outcome",
		},
		[]string{"outcome"},
	)

	return m
}
