// Package metrics keeps processing counters for the occupancy monitor and
// exposes them through a private Prometheus registry.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ironsheep/parkwatch-mcp/internal/logger"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame counters
	FramesRead     atomic.Uint64
	FramesSampled  atomic.Uint64
	FramesRejected atomic.Uint64
	FramesSkipped  atomic.Uint64 // timed out or aborted

	// Classification counters
	Classifications    atomic.Uint64
	ClassifierFailures atomic.Uint64
	StatusChanges      atomic.Uint64

	// Current occupancy
	SpotsTotal     atomic.Uint64
	SpotsAvailable atomic.Uint64
	SpotsOccupied  atomic.Uint64
	SpotsUnknown   atomic.Uint64

	// Latency of the last sampled frame
	SampleLatencyMs atomic.Uint64

	// Persistence
	StoreErrors atomic.Uint64

	registry *prometheus.Registry
	server   *http.Server
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

type metricDef struct {
	name    string
	help    string
	counter bool
	value   *atomic.Uint64
}

func (m *Metrics) definitions() []metricDef {
	return []metricDef{
		{"parkwatch_frames_read_total", "Total frames submitted to the engine", true, &m.FramesRead},
		{"parkwatch_frames_sampled_total", "Total frames that triggered a classification pass", true, &m.FramesSampled},
		{"parkwatch_frames_rejected_total", "Total frames rejected for a size mismatch", true, &m.FramesRejected},
		{"parkwatch_frames_skipped_total", "Total sampling passes aborted by timeout or cancellation", true, &m.FramesSkipped},
		{"parkwatch_classifications_total", "Total spot classifications", true, &m.Classifications},
		{"parkwatch_classifier_failures_total", "Total spot classifications that failed and defaulted to occupied", true, &m.ClassifierFailures},
		{"parkwatch_status_changes_total", "Total spot status transitions", true, &m.StatusChanges},
		{"parkwatch_store_errors_total", "Total history store write errors", true, &m.StoreErrors},
		{"parkwatch_spots", "Number of tracked spots", false, &m.SpotsTotal},
		{"parkwatch_spots_available", "Spots currently empty", false, &m.SpotsAvailable},
		{"parkwatch_spots_occupied", "Spots currently occupied", false, &m.SpotsOccupied},
		{"parkwatch_spots_unknown", "Spots not yet classified", false, &m.SpotsUnknown},
		{"parkwatch_sample_latency_ms", "Duration of the last classification pass in milliseconds", false, &m.SampleLatencyMs},
	}
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	for _, d := range m.definitions() {
		v := d.value
		fn := func() float64 { return float64(v.Load()) }
		if d.counter {
			m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{Name: d.name, Help: d.help}, fn))
		} else {
			m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: d.name, Help: d.help}, fn))
		}
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "parkwatch_availability_ratio",
			Help: "Available spots divided by total spots",
		},
		func() float64 {
			total := m.SpotsTotal.Load()
			if total == 0 {
				return 0
			}
			return float64(m.SpotsAvailable.Load()) / float64(total)
		},
	))
}

// UpdateOccupancy stores the current spot counts.
func (m *Metrics) UpdateOccupancy(total, available, occupied, unknown int) {
	m.SpotsTotal.Store(uint64(total))
	m.SpotsAvailable.Store(uint64(available))
	m.SpotsOccupied.Store(uint64(occupied))
	m.SpotsUnknown.Store(uint64(unknown))
}

// UpdateSampleLatency records how long the last sampling pass took.
func (m *Metrics) UpdateSampleLatency(d time.Duration) {
	m.SampleLatencyMs.Store(uint64(d.Milliseconds()))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// StartServer serves /metrics on addr in the background and returns the bound
// address (useful with ":0"). Call Shutdown to stop it.
func (m *Metrics) StartServer(addr string, log *logger.Logger) (string, error) {
	if log == nil {
		log = logger.Discard()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()
	log.Infof("metrics listening on %s", ln.Addr())
	return ln.Addr().String(), nil
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
